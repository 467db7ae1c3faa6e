package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/eventbook/internal/models"
	"github.com/Skotchmaster/eventbook/internal/mykafka"
	"github.com/Skotchmaster/eventbook/internal/repo"
	"github.com/Skotchmaster/eventbook/internal/tokens"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "Passw0rd!"

	tokenLifetime   = 5 * time.Minute
	refreshLifetime = 7 * 24 * time.Hour
)

var testSecret = []byte("test-jwt-secret-which-is-long-enough")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type publishedEvent struct {
	topic string
	key   string
	event mykafka.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	ev, _ := event.(mykafka.Event)
	p.events = append(p.events, publishedEvent{topic: topic, key: key, event: ev})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

type fixture struct {
	svc    *IdentityService
	repo   *repo.GormRepo
	signer *tokens.Signer
	clock  *testClock
	events *recordingPublisher
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	r := repo.New(newTestDB(t), repo.PasswordPolicy{
		RequiredLength:         6,
		RequiredUniqueChars:    1,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	})
	clock := &testClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	signer := tokens.NewSigner(testSecret, tokenLifetime).WithClock(clock.Now)
	events := &recordingPublisher{}

	svc := NewIdentityService(r, r, signer, refreshLifetime, events).WithClock(clock.Now)
	return &fixture{svc: svc, repo: r, signer: signer, clock: clock, events: events}
}

func (f *fixture) ledgerCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.repo.DB.Model(&models.RefreshToken{}).Count(&n).Error)
	return n
}

func (f *fixture) register(t *testing.T) AuthenticationResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, res.Success, res.Errors)
	return res
}

func assertFailure(t *testing.T, res AuthenticationResult, kind ErrorKind, msg string) {
	t.Helper()
	assert.False(t, res.Success)
	assert.Empty(t, res.Token)
	assert.Equal(t, uuid.Nil, res.RefreshToken)
	assert.Equal(t, kind, res.Kind)
	assert.Equal(t, []string{msg}, res.Errors)
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)

	res := f.register(t)
	assert.NotEmpty(t, res.Token)
	assert.NotEqual(t, uuid.Nil, res.RefreshToken)
	assert.Equal(t, KindNone, res.Kind)
	assert.Empty(t, res.Errors)

	claims, err := f.signer.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, testEmail, claims.Subject)
	assert.True(t, claims.Has(ClaimDeleteEnabled, "true"))

	stored, err := f.repo.FindRefreshToken(context.Background(), res.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, claims.ID, stored.JwtID)
	assert.Equal(t, claims.UserID, stored.UserID.String())
	assert.True(t, f.clock.Now().Equal(stored.CreationDate))
	assert.True(t, f.clock.Now().Add(refreshLifetime).Equal(stored.ExpirationDate))
	assert.False(t, stored.Used)
	assert.False(t, stored.Invalidated)

	assert.Equal(t, []string{mykafka.EventUserRegistered}, f.events.types())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	res, err := f.svc.Register(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assertFailure(t, res, KindDuplicateUser, "User with this email address already exists")

	res, err = f.svc.Register(context.Background(), "ALICE@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, KindDuplicateUser, res.Kind)
}

func TestRegister_PasswordPolicyAccumulates(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Register(context.Background(), testEmail, "abc")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, KindInvalidCredentialFormat, res.Kind)
	assert.Equal(t, []string{
		"Passwords must be at least 6 characters.",
		"Passwords must have at least one non alphanumeric character.",
		"Passwords must have at least one digit ('0'-'9').",
		"Passwords must have at least one uppercase ('A'-'Z').",
	}, res.Errors)
	assert.Zero(t, f.ledgerCount(t))

	user, err := f.repo.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		res, err := f.svc.Login(ctx, "nobody@example.com", testPassword)
		require.NoError(t, err)
		assertFailure(t, res, KindUserNotFound, "User does not exist")
	})

	t.Run("wrong password", func(t *testing.T) {
		res, err := f.svc.Login(ctx, testEmail, "Wr0ng!pass")
		require.NoError(t, err)
		assertFailure(t, res, KindBadCredentials, "User/password combination is not correct")
	})

	t.Run("success", func(t *testing.T) {
		res, err := f.svc.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.NotEmpty(t, res.Token)
		assert.NotEqual(t, uuid.Nil, res.RefreshToken)
	})
}

func TestRegisterLogin_AddExactlyOneLedgerEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t)
	assert.Equal(t, int64(1), f.ledgerCount(t))

	_, err := f.svc.Login(ctx, testEmail, "Wr0ng!pass")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.ledgerCount(t))

	first, err := f.svc.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Equal(t, int64(2), f.ledgerCount(t))

	stored, err := f.repo.FindRefreshToken(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.False(t, stored.Used)
	assert.Equal(t, int64(1), stored.Version)
}

func TestRefreshToken_BeforeExpiry(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)

	out, err := f.svc.RefreshToken(context.Background(), res.Token, res.RefreshToken)
	require.NoError(t, err)
	assertFailure(t, out, KindTokenNotExpired, "This token hasn't expired yet")
}

func TestRefreshToken_AfterExpiry(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	ctx := context.Background()

	f.clock.Advance(tokenLifetime + time.Second)

	out, err := f.svc.RefreshToken(ctx, res.Token, res.RefreshToken)
	require.NoError(t, err)
	require.True(t, out.Success, out.Errors)
	assert.NotEmpty(t, out.Token)
	assert.NotEqual(t, res.Token, out.Token)
	assert.NotEqual(t, res.RefreshToken, out.RefreshToken)

	old, err := f.repo.FindRefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.True(t, old.Used)

	claims, err := f.signer.Verify(out.Token)
	require.NoError(t, err)
	assert.True(t, claims.Has(ClaimDeleteEnabled, "true"))

	assert.Equal(t, []string{mykafka.EventUserRegistered, mykafka.EventTokenRefreshed}, f.events.types())
}

func TestRefreshToken_UsedTwice(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	ctx := context.Background()
	f.clock.Advance(tokenLifetime + time.Second)

	first, err := f.svc.RefreshToken(ctx, res.Token, res.RefreshToken)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := f.svc.RefreshToken(ctx, res.Token, res.RefreshToken)
	require.NoError(t, err)
	assertFailure(t, second, KindRefreshTokenUsed, "This refresh token has been used")

	f.clock.Advance(tokenLifetime + time.Second)
	third, err := f.svc.RefreshToken(ctx, first.Token, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, KindRefreshTokenUsed, third.Kind)
}

func TestRefreshToken_UnknownRefreshToken(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.clock.Advance(tokenLifetime + time.Second)

	out, err := f.svc.RefreshToken(context.Background(), res.Token, uuid.New())
	require.NoError(t, err)
	assertFailure(t, out, KindRefreshTokenNotFound, "This refresh token does not exist")
}

func TestRefreshToken_TamperedJwtID(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.clock.Advance(tokenLifetime + time.Second)

	require.NoError(t, f.repo.DB.Model(&models.RefreshToken{}).
		Where("token = ?", res.RefreshToken).
		Update("jwt_id", "tampered").Error)

	out, err := f.svc.RefreshToken(context.Background(), res.Token, res.RefreshToken)
	require.NoError(t, err)
	assertFailure(t, out, KindRefreshTokenMismatch, "This refresh token does not match this JWT")
}

func TestRefreshToken_RefreshTokenExpired(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.clock.Advance(refreshLifetime + time.Second)

	out, err := f.svc.RefreshToken(context.Background(), res.Token, res.RefreshToken)
	require.NoError(t, err)
	assertFailure(t, out, KindRefreshTokenExpired, "This refresh token has expired")
}

func TestRefreshToken_InvalidToken(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.clock.Advance(tokenLifetime + time.Second)
	ctx := context.Background()

	otherSigner := tokens.NewSigner([]byte("another-secret"), tokenLifetime).WithClock(func() time.Time {
		return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	})
	user, err := f.repo.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	forged, _, err := otherSigner.Sign(user, nil)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testEmail,
		"jti": uuid.NewString(),
		"id":  user.ID.String(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": testEmail,
		"exp": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong secret":    forged,
		"missing exp":     noExp,
		"wrong algorithm": hs512,
		"garbage":         "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			out, err := f.svc.RefreshToken(ctx, token, res.RefreshToken)
			require.NoError(t, err)
			assertFailure(t, out, KindInvalidToken, "Invalid Token")
		})
	}

	stored, err := f.repo.FindRefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.False(t, stored.Used)
}

func TestRefreshToken_CheckOrder(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	ctx := context.Background()

	// invalidated, used and mismatched at once
	require.NoError(t, f.repo.DB.Model(&models.RefreshToken{}).
		Where("token = ?", res.RefreshToken).
		Updates(map[string]any{"used": true, "invalidated": true, "jwt_id": "x"}).Error)

	f.clock.Advance(tokenLifetime + time.Second)
	out, err := f.svc.RefreshToken(ctx, res.Token, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, KindRefreshTokenInvalidated, out.Kind)

	f.clock.Advance(refreshLifetime)
	out, err = f.svc.RefreshToken(ctx, res.Token, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, KindRefreshTokenExpired, out.Kind)
}

func TestLogout_InvalidatesRefreshToken(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	ctx := context.Background()

	claims, err := f.signer.Verify(res.Token)
	require.NoError(t, err)
	userID := uuid.MustParse(claims.UserID)

	require.ErrorIs(t, f.svc.Logout(ctx, uuid.New(), res.RefreshToken), ErrNotFound)
	require.ErrorIs(t, f.svc.Logout(ctx, userID, uuid.New()), ErrNotFound)

	require.NoError(t, f.svc.Logout(ctx, userID, res.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, userID, res.RefreshToken))

	f.clock.Advance(tokenLifetime + time.Second)
	out, err := f.svc.RefreshToken(ctx, res.Token, res.RefreshToken)
	require.NoError(t, err)
	assertFailure(t, out, KindRefreshTokenInvalidated, "This refresh token has been invalidated")

	assert.Contains(t, f.events.types(), mykafka.EventRefreshTokenRevoked)
}

func TestIssue_PurgesExpiredRefreshTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t)

	stale := &models.RefreshToken{
		Token:          uuid.New(),
		JwtID:          "old",
		UserID:         uuid.New(),
		CreationDate:   f.clock.Now().Add(-30 * 24 * time.Hour),
		ExpirationDate: f.clock.Now().Add(-time.Hour),
	}
	require.NoError(t, f.repo.AddRefreshToken(ctx, stale))
	assert.Equal(t, int64(2), f.ledgerCount(t))

	res, err := f.svc.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, res.Success)

	got, err := f.repo.FindRefreshToken(ctx, stale.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(2), f.ledgerCount(t))
}

// racingLedger lets another request consume the token between our read and our update.
type racingLedger struct {
	*repo.GormRepo
	once sync.Once
}

func (l *racingLedger) UpdateRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	l.once.Do(func() {
		other, err := l.GormRepo.FindRefreshToken(ctx, rt.Token)
		if err == nil && other != nil {
			other.Used = true
			_ = l.GormRepo.UpdateRefreshToken(ctx, other)
		}
	})
	return l.GormRepo.UpdateRefreshToken(ctx, rt)
}

func TestRefreshToken_ConcurrentUpdateRereads(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.clock.Advance(tokenLifetime + time.Second)

	f.svc.Ledger = &racingLedger{GormRepo: f.repo}

	out, err := f.svc.RefreshToken(context.Background(), res.Token, res.RefreshToken)
	require.NoError(t, err)
	assertFailure(t, out, KindRefreshTokenUsed, "This refresh token has been used")
}

func TestRefreshToken_ParallelRedemption(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.clock.Advance(tokenLifetime + time.Second)

	const n = 4
	results := make([]AuthenticationResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.RefreshToken(context.Background(), res.Token, res.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].Success {
			successes++
			continue
		}
		assert.Equal(t, KindRefreshTokenUsed, results[i].Kind)
	}
	assert.Equal(t, 1, successes)
}

type failingLedger struct {
	*repo.GormRepo
	findErr   error
	removeErr error
	addErr    error
}

func (l *failingLedger) FindRefreshToken(ctx context.Context, token uuid.UUID) (*models.RefreshToken, error) {
	if l.findErr != nil {
		return nil, l.findErr
	}
	return l.GormRepo.FindRefreshToken(ctx, token)
}

func (l *failingLedger) RemoveExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	if l.removeErr != nil {
		return 0, l.removeErr
	}
	return l.GormRepo.RemoveExpiredRefreshTokens(ctx, before)
}

func (l *failingLedger) AddRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	if l.addErr != nil {
		return l.addErr
	}
	return l.GormRepo.AddRefreshToken(ctx, rt)
}

type failingUsers struct {
	*repo.GormRepo
	claimErr error
}

func (u *failingUsers) AddClaim(ctx context.Context, user *models.User, claim models.Claim) error {
	if u.claimErr != nil {
		return u.claimErr
	}
	return u.GormRepo.AddClaim(ctx, user, claim)
}

func TestRefreshToken_LedgerFailurePropagates(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)
	f.clock.Advance(tokenLifetime + time.Second)

	boom := errors.New("db down")
	f.svc.Ledger = &failingLedger{GormRepo: f.repo, findErr: boom}

	_, err := f.svc.RefreshToken(context.Background(), res.Token, res.RefreshToken)
	require.ErrorIs(t, err, boom)
}

func TestLogin_PurgeFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	f.svc.Ledger = &failingLedger{GormRepo: f.repo, removeErr: errors.New("locked")}

	res, err := f.svc.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(2), f.ledgerCount(t))
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	res, err := f.svc.Register(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "none", KindNone.String())
	assert.Equal(t, "refresh_token_used", KindRefreshTokenUsed.String())
	assert.Equal(t, "unknown", ErrorKind(99).String())
}

func TestRefreshToken_FailedIssueKeepsOldPairRedeemable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t)
	f.clock.Advance(tokenLifetime + time.Second)

	boom := errors.New("disk full")
	f.svc.Ledger = &failingLedger{GormRepo: f.repo, addErr: boom}

	_, err := f.svc.RefreshToken(ctx, res.Token, res.RefreshToken)
	require.ErrorIs(t, err, boom)

	stored, err := f.repo.FindRefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Used)
	assert.Equal(t, int64(1), f.ledgerCount(t))
	assert.NotContains(t, f.events.types(), mykafka.EventTokenRefreshed)

	f.svc.Ledger = f.repo

	out, err := f.svc.RefreshToken(ctx, res.Token, res.RefreshToken)
	require.NoError(t, err)
	require.True(t, out.Success, out.Errors)
	assert.NotEqual(t, res.RefreshToken, out.RefreshToken)
}

func TestRegister_FailedIssueLeavesNoUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("disk full")
	f.svc.Ledger = &failingLedger{GormRepo: f.repo, addErr: boom}

	_, err := f.svc.Register(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, boom)

	user, err := f.repo.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NotContains(t, f.events.types(), mykafka.EventUserRegistered)

	f.svc.Ledger = f.repo
	res := f.register(t)
	assert.NotEmpty(t, res.Token)

	user, err = f.repo.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	require.NotNil(t, user)
	claims, err := f.repo.GetClaims(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []models.Claim{{Type: ClaimDeleteEnabled, Value: "true"}}, claims)
}

func TestRegister_FailedClaimLeavesNoUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boom := errors.New("constraint")
	f.svc.Users = &failingUsers{GormRepo: f.repo, claimErr: boom}

	_, err := f.svc.Register(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, boom)

	user, err := f.repo.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Zero(t, f.ledgerCount(t))
}
