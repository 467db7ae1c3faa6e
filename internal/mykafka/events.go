package mykafka

import "time"

const (
	EventUserRegistered      = "user_registered"
	EventUserLoggedIn        = "user_logged_in"
	EventTokenRefreshed      = "token_refreshed"
	EventRefreshTokenRevoked = "refresh_token_invalidated"
	EventPageElementCreated  = "page_element_created"
	EventPageElementUpdated  = "page_element_updated"
	EventPageElementDeleted  = "page_element_deleted"
)

type Event struct {
	Type   string    `json:"type"`
	UserID string    `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	ID     string    `json:"id,omitempty"`
	At     time.Time `json:"at"`
}
