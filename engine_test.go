package tokengate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	testAccessSecret  = []byte("engine-test-access-secret-0123456789")
	testRefreshSecret = []byte("engine-test-refresh-secret-01234567a")
)

type mockUserProvider struct {
	mu           sync.Mutex
	users        map[string]UserRecord
	byIdentifier map[string]string
	failLookups  bool
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{
		users:        map[string]UserRecord{},
		byIdentifier: map[string]string{},
	}
}

func (p *mockUserProvider) GetUserByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failLookups {
		return UserRecord{}, errors.New("backend down")
	}
	id, ok := p.byIdentifier[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return p.users[id], nil
}

func (p *mockUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failLookups {
		return UserRecord{}, errors.New("backend down")
	}
	record, ok := p.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return record, nil
}

func (p *mockUserProvider) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byIdentifier[input.Identifier]; exists {
		return UserRecord{}, ErrProviderDuplicateIdentifier
	}
	record := UserRecord{
		UserID:       uuid.NewString(),
		Identifier:   input.Identifier,
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	p.users[record.UserID] = record
	p.byIdentifier[record.Identifier] = record.UserID
	return record, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = testAccessSecret
	cfg.JWT.RefreshSecret = testRefreshSecret
	// Cheap argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *miniredis.Miniredis, *mockUserProvider) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	provider := newMockUserProvider()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr, provider
}

func TestLifecycle(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	registered, err := engine.Register(ctx, "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registered.Identity.UserID == "" || registered.Identity.Identifier != "alice@example.com" {
		t.Fatalf("bad identity: %+v", registered.Identity)
	}
	if registered.Tokens.AccessToken == "" || registered.Tokens.RefreshToken == "" {
		t.Fatal("register returned empty tokens")
	}

	auth, err := engine.ValidateAccess(ctx, registered.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if auth.UserID != registered.Identity.UserID {
		t.Fatalf("UserID = %q, want %q", auth.UserID, registered.Identity.UserID)
	}

	login, err := engine.Login(ctx, "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.UserID != registered.Identity.UserID {
		t.Fatalf("login UserID = %q", login.UserID)
	}

	// Rotation: the old token dies the moment the new pair exists.
	pair, err := engine.Refresh(ctx, login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("refresh did not rotate the token")
	}
	if _, err := engine.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("replayed refresh err = %v, want ErrRefreshNotFound", err)
	}

	// The rotated token chains.
	pair2, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}

	revoked, err := engine.Logout(ctx, pair2.RefreshToken)
	if err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !revoked {
		t.Fatal("live record not revoked")
	}
	if _, err := engine.Refresh(ctx, pair2.RefreshToken); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("refresh after logout err = %v, want ErrRefreshNotFound", err)
	}

	// Logout is idempotent.
	revoked, err = engine.Logout(ctx, pair2.RefreshToken)
	if err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if revoked {
		t.Fatal("second logout reported a live record")
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	for _, tc := range []struct{ identifier, secret string }{
		{"", "a strong secret"},
		{"alice@example.com", ""},
	} {
		if _, err := engine.Register(ctx, tc.identifier, tc.secret); !errors.Is(err, ErrValidation) {
			t.Fatalf("(%q, %q) err = %v, want ErrValidation", tc.identifier, tc.secret, err)
		}
	}

	if _, err := engine.Register(ctx, "alice@example.com", "a strong secret"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := engine.Register(ctx, "alice@example.com", "other secret"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("duplicate register err = %v, want ErrAccountExists", err)
	}
}

func TestLoginFailuresIndistinguishable(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := engine.Register(ctx, "alice@example.com", "a strong secret"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, unknownErr := engine.Login(ctx, "ghost@example.com", "whatever secret")
	_, wrongErr := engine.Login(ctx, "alice@example.com", "wrong password")

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown identifier err = %v, want ErrInvalidCredentials", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", wrongErr)
	}
}

func TestLoginRateLimited(t *testing.T) {
	cfg := engineTestConfig()
	cfg.RateLimit.MaxLoginAttempts = 2
	cfg.RateLimit.LoginCooldownDuration = time.Minute
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	if _, err := engine.Register(ctx, "alice@example.com", "a strong secret"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v", i+1, err)
		}
	}

	// Budget spent: even the correct password is refused.
	if _, err := engine.Login(ctx, "alice@example.com", "a strong secret"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("err = %v, want ErrLoginRateLimited", err)
	}
}

func TestRefreshMissingAndUnknown(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := engine.Refresh(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty token err = %v, want ErrMissingToken", err)
	}
	if _, err := engine.Refresh(ctx, "never.issued.token"); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("unknown token err = %v, want ErrRefreshNotFound", err)
	}
}

func TestRefreshExpiredTokenDropsRecord(t *testing.T) {
	cfg := engineTestConfig()
	cfg.JWT.AccessTTL = 10 * time.Millisecond
	cfg.JWT.RefreshTTL = 50 * time.Millisecond
	cfg.JWT.Leeway = 0
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	registered, err := engine.Register(ctx, "alice@example.com", "a strong secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// miniredis only expires keys on FastForward, so the record outlives the
	// signature and the expiry path is reachable.
	time.Sleep(120 * time.Millisecond)

	if _, err := engine.Refresh(ctx, registered.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expired token err = %v, want ErrTokenInvalid", err)
	}

	// The dead record was dropped, so the second attempt reads as unknown.
	if _, err := engine.Refresh(ctx, registered.Tokens.RefreshToken); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("second attempt err = %v, want ErrRefreshNotFound", err)
	}
}

func TestValidateAccessIsLocal(t *testing.T) {
	engine, mr, _ := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	registered, err := engine.Register(ctx, "alice@example.com", "a strong secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Access verification must survive a dead store; refresh must not.
	mr.Close()

	if _, err := engine.ValidateAccess(ctx, registered.Tokens.AccessToken); err != nil {
		t.Fatalf("ValidateAccess with store down: %v", err)
	}
	if _, err := engine.Refresh(ctx, registered.Tokens.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Refresh with store down err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := engine.Logout(ctx, registered.Tokens.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Logout with store down err = %v, want ErrStoreUnavailable", err)
	}
}

func TestValidateAccessRejects(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	registered, err := engine.Register(ctx, "alice@example.com", "a strong secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"refresh token as access", registered.Tokens.RefreshToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.ValidateAccess(ctx, tc.token); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestProviderFailureMapsToStoreUnavailable(t *testing.T) {
	engine, _, provider := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	if _, err := engine.Register(ctx, "alice@example.com", "a strong secret"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	provider.mu.Lock()
	provider.failLookups = true
	provider.mu.Unlock()

	if _, err := engine.Login(ctx, "alice@example.com", "a strong secret"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestAuditEvents(t *testing.T) {
	_, rdb := newTestRedis(t)
	provider := newMockUserProvider()
	sink := NewChannelSink(32)

	engine, err := New().
		WithConfig(engineTestConfig()).
		WithRedis(rdb).
		WithUserProvider(provider).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := engine.Register(ctx, "alice@example.com", "a strong secret"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login err = %v", err)
	}

	engine.Close() // drains the dispatcher

	seen := map[string]AuditEvent{}
	for {
		select {
		case event := <-sink.Events():
			seen[event.EventType] = event
			continue
		default:
		}
		break
	}

	success, ok := seen[EventRegisterSuccess]
	if !ok {
		t.Fatalf("no register_success event, got %v", seen)
	}
	if !success.Success || success.UserID == "" || success.IP != "203.0.113.7" {
		t.Fatalf("bad register event: %+v", success)
	}

	failure, ok := seen[EventLoginFailure]
	if !ok {
		t.Fatalf("no login_failure event, got %v", seen)
	}
	if failure.Success || failure.Metadata["reason"] != "password_mismatch" {
		t.Fatalf("bad login failure event: %+v", failure)
	}
}

func TestMetricsCounters(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	registered, err := engine.Register(ctx, "alice@example.com", "a strong secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, _ = engine.Login(ctx, "alice@example.com", "wrong password")
	_, _ = engine.Refresh(ctx, registered.Tokens.RefreshToken)
	_, _ = engine.ValidateAccess(ctx, "garbage")

	for _, tc := range []struct {
		id   MetricID
		want uint64
	}{
		{MetricRegisterSuccess, 1},
		{MetricLoginFailure, 1},
		{MetricRefreshSuccess, 1},
		{MetricValidateFailure, 1},
		{MetricLoginSuccess, 0},
	} {
		if got := engine.MetricValue(tc.id); got != tc.want {
			t.Fatalf("%s = %d, want %d", MetricName(tc.id), got, tc.want)
		}
	}

	snapshot := engine.MetricsSnapshot()
	if snapshot.Counters[MetricRegisterSuccess] != 1 {
		t.Fatalf("snapshot register = %d", snapshot.Counters[MetricRegisterSuccess])
	}
}
