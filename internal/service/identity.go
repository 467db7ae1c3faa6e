package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/eventbook/internal/logging"
	"github.com/Skotchmaster/eventbook/internal/models"
	"github.com/Skotchmaster/eventbook/internal/mykafka"
	"github.com/Skotchmaster/eventbook/internal/repo"
	"github.com/Skotchmaster/eventbook/internal/tokens"
)

const (
	ClaimDeleteEnabled = "delete.enabled"

	eventTimeout = 5 * time.Second
)

type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User, password string) (repo.CreateResult, error)
	CheckPassword(ctx context.Context, user *models.User, password string) (bool, error)
	AddClaim(ctx context.Context, user *models.User, claim models.Claim) error
	GetClaims(ctx context.Context, user *models.User) ([]models.Claim, error)
}

type RefreshTokenLedger interface {
	FindRefreshToken(ctx context.Context, token uuid.UUID) (*models.RefreshToken, error)
	AddRefreshToken(ctx context.Context, rt *models.RefreshToken) error
	UpdateRefreshToken(ctx context.Context, rt *models.RefreshToken) error
	RemoveExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// Transactor runs fn atomically; store calls made with the ctx it receives
// take part in the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TokenSigner interface {
	Sign(user *models.User, claims []models.Claim) (token string, jti string, err error)
	ParseIgnoringLifetime(token string) (*tokens.AccessClaims, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type IdentityService struct {
	Users                CredentialStore
	Ledger               RefreshTokenLedger
	Signer               TokenSigner
	RefreshTokenLifetime time.Duration
	Events               Publisher
	// Tx scopes the writes of Register and RefreshToken. Nil runs them
	// without a transaction.
	Tx Transactor

	now func() time.Time
}

func NewIdentityService(users CredentialStore, ledger RefreshTokenLedger, signer TokenSigner, refreshLifetime time.Duration, events Publisher) *IdentityService {
	if events == nil {
		events = mykafka.NopProducer{}
	}
	s := &IdentityService{
		Users:                users,
		Ledger:               ledger,
		Signer:               signer,
		RefreshTokenLifetime: refreshLifetime,
		Events:               events,
		now:                  time.Now,
	}
	if tx, ok := users.(Transactor); ok {
		s.Tx = tx
	}
	return s
}

func (s *IdentityService) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Tx == nil {
		return fn(ctx)
	}
	return s.Tx.InTx(ctx, fn)
}

func (s *IdentityService) WithClock(now func() time.Time) *IdentityService {
	s.now = now
	return s
}

func (s *IdentityService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *IdentityService) Register(ctx context.Context, email, password string) (AuthenticationResult, error) {
	l := logging.FromContext(ctx).With("svc", "identity.register")

	existing, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot look up user", "error", err)
		return AuthenticationResult{}, err
	}
	if existing != nil {
		l.Warn("register_failed", "status", 400, "reason", KindDuplicateUser.String())
		return failure(KindDuplicateUser, MsgDuplicateUser), nil
	}

	user := &models.User{ID: uuid.New(), Email: email}

	// user row, claim and first token pair commit together or not at all
	var out AuthenticationResult
	err = s.inTx(ctx, func(ctx context.Context) error {
		res, err := s.Users.Create(ctx, user, password)
		if err != nil {
			l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
			return err
		}
		if !res.Succeeded {
			for _, e := range res.Errors {
				if e.Code == "DuplicateEmail" {
					l.Warn("register_failed", "status", 400, "reason", KindDuplicateUser.String())
					out = failure(KindDuplicateUser, MsgDuplicateUser)
					return nil
				}
			}
			l.Warn("register_failed", "status", 400, "reason", KindInvalidCredentialFormat.String(), "violations", len(res.Errors))
			out = failure(KindInvalidCredentialFormat, res.Messages()...)
			return nil
		}

		if err := s.Users.AddClaim(ctx, user, models.Claim{Type: ClaimDeleteEnabled, Value: "true"}); err != nil {
			l.Error("register_error", "status", 500, "reason", "cannot add claim", "error", err)
			return err
		}

		out, err = s.issue(ctx, user)
		return err
	})
	if err != nil {
		return AuthenticationResult{}, err
	}
	if !out.Success {
		return out, nil
	}

	s.publish(ctx, mykafka.TopicIdentity, user.ID.String(), mykafka.Event{
		Type:   mykafka.EventUserRegistered,
		UserID: user.ID.String(),
		Email:  user.Email,
		At:     s.clock(),
	})

	l.Info("register_success", "user_id", user.ID)
	return out, nil
}

func (s *IdentityService) Login(ctx context.Context, email, password string) (AuthenticationResult, error) {
	l := logging.FromContext(ctx).With("svc", "identity.login")

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		l.Error("login_error", "status", 500, "reason", "cannot look up user", "error", err)
		return AuthenticationResult{}, err
	}
	if user == nil {
		l.Warn("login_failed", "status", 400, "reason", KindUserNotFound.String())
		return failure(KindUserNotFound, MsgUserNotFound), nil
	}

	ok, err := s.Users.CheckPassword(ctx, user, password)
	if err != nil {
		l.Error("login_error", "status", 500, "reason", "cannot check password", "error", err)
		return AuthenticationResult{}, err
	}
	if !ok {
		l.Warn("login_failed", "status", 400, "reason", KindBadCredentials.String(), "user_id", user.ID)
		return failure(KindBadCredentials, MsgBadCredentials), nil
	}

	s.publish(ctx, mykafka.TopicIdentity, user.ID.String(), mykafka.Event{
		Type:   mykafka.EventUserLoggedIn,
		UserID: user.ID.String(),
		At:     s.clock(),
	})

	l.Info("login_success", "user_id", user.ID)
	return s.issue(ctx, user)
}

// RefreshToken exchanges an expired access token and its unused refresh
// token for a new pair. Checks run in a fixed order and the first failure wins.
func (s *IdentityService) RefreshToken(ctx context.Context, token string, refreshToken uuid.UUID) (AuthenticationResult, error) {
	l := logging.FromContext(ctx).With("svc", "identity.refresh")

	claims, err := s.Signer.ParseIgnoringLifetime(token)
	if err != nil || claims == nil || claims.ExpiresAt == nil {
		l.Warn("refresh_failed", "status", 400, "reason", KindInvalidToken.String(), "error", err)
		return failure(KindInvalidToken, MsgInvalidToken), nil
	}

	now := s.clock()
	if claims.ExpiresAt.After(now) {
		l.Warn("refresh_failed", "status", 400, "reason", KindTokenNotExpired.String())
		return failure(KindTokenNotExpired, MsgTokenNotExpired), nil
	}

	stored, err := s.Ledger.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		l.Error("refresh_error", "status", 500, "reason", "cannot read refresh token", "error", err)
		return AuthenticationResult{}, err
	}

	// marking the old token used and storing the new pair commit together
	var (
		out  AuthenticationResult
		user *models.User
	)
	err = s.inTx(ctx, func(ctx context.Context) error {
		var err error
		out, user, err = s.redeem(ctx, l, claims, refreshToken, stored, now)
		return err
	})
	if err != nil {
		return AuthenticationResult{}, err
	}
	if !out.Success {
		return out, nil
	}

	s.publish(ctx, mykafka.TopicIdentity, user.ID.String(), mykafka.Event{
		Type:   mykafka.EventTokenRefreshed,
		UserID: user.ID.String(),
		ID:     refreshToken.String(),
		At:     now,
	})

	l.Info("refresh_success", "user_id", user.ID)
	return out, nil
}

// redeem checks the stored token, marks it used and issues the next pair.
// On a concurrent change the row is re-read once and checked again.
func (s *IdentityService) redeem(ctx context.Context, l *slog.Logger, claims *tokens.AccessClaims, refreshToken uuid.UUID, stored *models.RefreshToken, now time.Time) (AuthenticationResult, *models.User, error) {
	for attempt := 0; ; attempt++ {
		if stored == nil {
			l.Warn("refresh_failed", "status", 400, "reason", KindRefreshTokenNotFound.String())
			return failure(KindRefreshTokenNotFound, MsgRefreshTokenNotFound), nil, nil
		}
		if kind, msg := checkStoredToken(stored, claims.ID, now); kind != KindNone {
			l.Warn("refresh_failed", "status", 400, "reason", kind.String(), "user_id", stored.UserID)
			return failure(kind, msg), nil, nil
		}

		stored.Used = true
		err := s.Ledger.UpdateRefreshToken(ctx, stored)
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrConcurrentUpdate) || attempt > 0 {
			l.Error("refresh_error", "status", 500, "reason", "cannot mark refresh token used", "error", err)
			return AuthenticationResult{}, nil, err
		}

		l.Info("refresh_conflict", "reason", "refresh token changed concurrently, re-reading")
		stored, err = s.Ledger.FindRefreshToken(ctx, refreshToken)
		if err != nil {
			l.Error("refresh_error", "status", 500, "reason", "cannot re-read refresh token", "error", err)
			return AuthenticationResult{}, nil, err
		}
	}

	user, err := s.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		l.Error("refresh_error", "status", 500, "reason", "cannot look up user", "error", err)
		return AuthenticationResult{}, nil, err
	}
	if user == nil {
		l.Warn("refresh_failed", "status", 400, "reason", KindUserNotFound.String())
		return failure(KindUserNotFound, MsgUserNotFound), nil, nil
	}

	out, err := s.issue(ctx, user)
	if err != nil {
		return AuthenticationResult{}, nil, err
	}
	return out, user, nil
}

func checkStoredToken(stored *models.RefreshToken, jti string, now time.Time) (ErrorKind, string) {
	switch {
	case now.After(stored.ExpirationDate):
		return KindRefreshTokenExpired, MsgRefreshTokenExpired
	case stored.Invalidated:
		return KindRefreshTokenInvalidated, MsgRefreshTokenInvalidated
	case stored.Used:
		return KindRefreshTokenUsed, MsgRefreshTokenUsed
	case stored.JwtID != jti:
		return KindRefreshTokenMismatch, MsgRefreshTokenMismatch
	default:
		return KindNone, ""
	}
}

// Logout invalidates one of the caller's own refresh tokens.
func (s *IdentityService) Logout(ctx context.Context, userID, refreshToken uuid.UUID) error {
	l := logging.FromContext(ctx).With("svc", "identity.logout", "user_id", userID)

	for attempt := 0; ; attempt++ {
		stored, err := s.Ledger.FindRefreshToken(ctx, refreshToken)
		if err != nil {
			l.Error("logout_error", "status", 500, "reason", "cannot read refresh token", "error", err)
			return err
		}
		if stored == nil || stored.UserID != userID {
			l.Warn("logout_failed", "status", 404, "reason", "refresh token not found")
			return ErrNotFound
		}
		if stored.Invalidated {
			return nil
		}

		stored.Invalidated = true
		err = s.Ledger.UpdateRefreshToken(ctx, stored)
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrConcurrentUpdate) || attempt > 0 {
			l.Error("logout_error", "status", 500, "reason", "cannot invalidate refresh token", "error", err)
			return err
		}
	}

	s.publish(ctx, mykafka.TopicIdentity, userID.String(), mykafka.Event{
		Type:   mykafka.EventRefreshTokenRevoked,
		UserID: userID.String(),
		ID:     refreshToken.String(),
		At:     s.clock(),
	})

	l.Info("logout_success")
	return nil
}

// issue signs an access token, purges expired refresh tokens and stores the new one.
func (s *IdentityService) issue(ctx context.Context, user *models.User) (AuthenticationResult, error) {
	l := logging.FromContext(ctx).With("svc", "identity.issue", "user_id", user.ID)

	claims, err := s.Users.GetClaims(ctx, user)
	if err != nil {
		l.Error("issue_error", "status", 500, "reason", "cannot load claims", "error", err)
		return AuthenticationResult{}, err
	}

	token, jti, err := s.Signer.Sign(user, claims)
	if err != nil {
		l.Error("issue_error", "status", 500, "reason", "cannot sign token", "error", err)
		return AuthenticationResult{}, err
	}

	now := s.clock()
	rt := &models.RefreshToken{
		Token:          uuid.New(),
		JwtID:          jti,
		UserID:         user.ID,
		CreationDate:   now,
		ExpirationDate: now.Add(s.RefreshTokenLifetime),
	}

	if n, err := s.Ledger.RemoveExpiredRefreshTokens(ctx, now); err != nil {
		l.Warn("purge_expired_failed", "error", err)
	} else if n > 0 {
		l.Debug("purge_expired", "removed", n)
	}

	if err := s.Ledger.AddRefreshToken(ctx, rt); err != nil {
		l.Error("issue_error", "status", 500, "reason", "cannot store refresh token", "error", err)
		return AuthenticationResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	return AuthenticationResult{Success: true, Token: token, RefreshToken: rt.Token}, nil
}

func (s *IdentityService) publish(ctx context.Context, topic, key string, event any) {
	publishEvent(ctx, s.Events, topic, key, event)
}

// publishEvent is best effort: failures are logged and never returned.
func publishEvent(ctx context.Context, p Publisher, topic, key string, event any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	if err := p.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka_publish_failed", "topic", topic, "key", key, "error", err)
	}
}
