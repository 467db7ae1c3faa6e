package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/eventbook/internal/models"
)

const (
	ClaimSubject   = "sub"
	ClaimID        = "jti"
	ClaimEmail     = "email"
	ClaimUserID    = "id"
	ClaimExpires   = "exp"
	ClaimIssuedAt  = "iat"
	ClaimNotBefore = "nbf"
)

var reserved = map[string]struct{}{
	ClaimSubject:   {},
	ClaimID:        {},
	ClaimEmail:     {},
	ClaimUserID:    {},
	ClaimExpires:   {},
	ClaimIssuedAt:  {},
	ClaimNotBefore: {},
}

var ErrUnexpectedSignMethod = errors.New("unexpected sign method")

type AccessClaims struct {
	Subject string
	ID      string
	Email   string
	UserID  string
	// ExpiresAt is nil when the token carries no exp claim.
	ExpiresAt *time.Time
	Extra     map[string][]string
}

// Has reports whether the claim typ carries value.
func (c *AccessClaims) Has(typ, value string) bool {
	for _, v := range c.Extra[typ] {
		if v == value {
			return true
		}
	}
	return false
}

type Signer struct {
	Secret        []byte
	TokenLifetime time.Duration
	now           func() time.Time
}

func NewSigner(secret []byte, lifetime time.Duration) *Signer {
	return &Signer{Secret: secret, TokenLifetime: lifetime, now: time.Now}
}

// WithClock swaps the time source used for issuing and verifying.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// Sign issues an HS256 access token for user and returns it with its jti.
func (s *Signer) Sign(user *models.User, extra []models.Claim) (string, string, error) {
	now := s.clock()
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		ClaimSubject:   user.Email,
		ClaimID:        jti,
		ClaimEmail:     user.Email,
		ClaimUserID:    user.ID.String(),
		ClaimIssuedAt:  jwt.NewNumericDate(now),
		ClaimNotBefore: jwt.NewNumericDate(now),
		ClaimExpires:   jwt.NewNumericDate(now.Add(s.TokenLifetime)),
	}

	for _, c := range extra {
		if _, ok := reserved[c.Type]; ok {
			continue
		}
		switch prev := claims[c.Type].(type) {
		case nil:
			claims[c.Type] = c.Value
		case string:
			claims[c.Type] = []string{prev, c.Value}
		case []string:
			claims[c.Type] = append(prev, c.Value)
		}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	return token, jti, nil
}

func (s *Signer) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, ErrUnexpectedSignMethod
	}
	return s.Secret, nil
}

// ParseIgnoringLifetime checks the signature and algorithm but not exp, nbf or iat.
func (s *Signer) ParseIgnoringLifetime(tokenStr string) (*AccessClaims, error) {
	mc := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, mc, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return fromMap(mc)
}

// Verify fully validates the token against the signer clock with zero leeway.
func (s *Signer) Verify(tokenStr string) (*AccessClaims, error) {
	mc := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, mc, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return fromMap(mc)
}

func fromMap(mc jwt.MapClaims) (*AccessClaims, error) {
	out := &AccessClaims{Extra: map[string][]string{}}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp != nil {
		t := exp.Time.UTC()
		out.ExpiresAt = &t
	}

	out.Subject, _ = mc[ClaimSubject].(string)
	out.ID, _ = mc[ClaimID].(string)
	out.Email, _ = mc[ClaimEmail].(string)
	out.UserID, _ = mc[ClaimUserID].(string)

	for k, v := range mc {
		if _, ok := reserved[k]; ok {
			continue
		}
		switch val := v.(type) {
		case string:
			out.Extra[k] = []string{val}
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					out.Extra[k] = append(out.Extra[k], s)
				}
			}
		default:
			out.Extra[k] = []string{fmt.Sprint(val)}
		}
	}

	return out, nil
}
