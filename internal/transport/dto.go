package transport

import "github.com/google/uuid"

type UserRegistrationRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserLoginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	Token        string `json:"token"        validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,uuid"`
}

type AuthSuccessResponse struct {
	Token        string    `json:"token"`
	RefreshToken uuid.UUID `json:"refreshToken"`
}

type AuthFailedResponse struct {
	Errors []string `json:"errors"`
}

type CreatePageElementRequest struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	Content   string     `json:"content"`
	Classname string     `json:"classname" validate:"required,classname"`
}

type UpdatePageElementRequest struct {
	Content   string `json:"content"`
	Classname string `json:"classname" validate:"required,classname"`
}

type PageElementResponse struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Classname string    `json:"classname"`
}

type ErrorModel struct {
	FieldName string `json:"fieldName"`
	Message   string `json:"message"`
}

type ValidationErrorResponse struct {
	Errors []ErrorModel `json:"errors"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

type SearchResponse struct {
	Data []PageElementResponse `json:"data"`
	Meta PageMeta              `json:"meta"`
}
