package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"           json:"id"`
	Email           string    `gorm:"not null"                       json:"email"`
	NormalizedEmail string    `gorm:"uniqueIndex;not null"           json:"-"`
	PasswordHash    string    `gorm:"not null"                       json:"-"`
	CreatedAt       time.Time `gorm:"not null"                       json:"created_at"`
}

type UserClaim struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	UserID     uuid.UUID `gorm:"type:uuid;index;not null"`
	ClaimType  string    `gorm:"not null"`
	ClaimValue string    `gorm:"not null"`
}

// Claim is a single key/value pair attached to a user and copied into access tokens.
type Claim struct {
	Type  string
	Value string
}

type RefreshToken struct {
	Token          uuid.UUID `gorm:"type:uuid;primaryKey"    json:"token"`
	JwtID          string    `gorm:"index;not null"          json:"jwt_id"`
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	CreationDate   time.Time `gorm:"not null"                json:"creation_date"`
	ExpirationDate time.Time `gorm:"index;not null"          json:"expiration_date"`
	Used           bool      `gorm:"not null;default:false"  json:"used"`
	Invalidated    bool      `gorm:"not null;default:false"  json:"invalidated"`
	Version        int64     `gorm:"not null;default:1"      json:"-"`
}

type PageElement struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"    json:"id"`
	Content   string    `json:"content"`
	Classname string    `json:"classname"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
}

// All lists every model the service migrates.
func All() []any {
	return []any{&User{}, &UserClaim{}, &RefreshToken{}, &PageElement{}}
}
