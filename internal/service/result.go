package service

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("already exists")
)

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindDuplicateUser
	KindInvalidCredentialFormat
	KindUserNotFound
	KindBadCredentials
	KindInvalidToken
	KindTokenNotExpired
	KindRefreshTokenNotFound
	KindRefreshTokenExpired
	KindRefreshTokenInvalidated
	KindRefreshTokenUsed
	KindRefreshTokenMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDuplicateUser:
		return "duplicate_user"
	case KindInvalidCredentialFormat:
		return "invalid_credential_format"
	case KindUserNotFound:
		return "user_not_found"
	case KindBadCredentials:
		return "bad_credentials"
	case KindInvalidToken:
		return "invalid_token"
	case KindTokenNotExpired:
		return "token_not_expired"
	case KindRefreshTokenNotFound:
		return "refresh_token_not_found"
	case KindRefreshTokenExpired:
		return "refresh_token_expired"
	case KindRefreshTokenInvalidated:
		return "refresh_token_invalidated"
	case KindRefreshTokenUsed:
		return "refresh_token_used"
	case KindRefreshTokenMismatch:
		return "refresh_token_mismatch"
	default:
		return "unknown"
	}
}

const (
	MsgDuplicateUser           = "User with this email address already exists"
	MsgUserNotFound            = "User does not exist"
	MsgBadCredentials          = "User/password combination is not correct"
	MsgInvalidToken            = "Invalid Token"
	MsgTokenNotExpired         = "This token hasn't expired yet"
	MsgRefreshTokenNotFound    = "This refresh token does not exist"
	MsgRefreshTokenExpired     = "This refresh token has expired"
	MsgRefreshTokenInvalidated = "This refresh token has been invalidated"
	MsgRefreshTokenUsed        = "This refresh token has been used"
	MsgRefreshTokenMismatch    = "This refresh token does not match this JWT"
)

// AuthenticationResult is the outcome of every identity operation that
// did not hit an infrastructure failure.
type AuthenticationResult struct {
	Success      bool
	Token        string
	RefreshToken uuid.UUID
	Errors       []string
	Kind         ErrorKind
}

func failure(kind ErrorKind, messages ...string) AuthenticationResult {
	return AuthenticationResult{Errors: messages, Kind: kind}
}
