package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"sso-identity-provider/internal/exchange/repository"
	identitydomain "sso-identity-provider/internal/identity/domain"
	"sso-identity-provider/internal/security"
	sessiondomain "sso-identity-provider/internal/session/domain"
	sessionrepo "sso-identity-provider/internal/session/repository"
	sessionservice "sso-identity-provider/internal/session/service"
	systemdomain "sso-identity-provider/internal/system/domain"
	userdomain "sso-identity-provider/internal/user/domain"
)

type memSystems struct {
	mu sync.Mutex
	m  map[string]*systemdomain.System
}

func (r *memSystems) GetByID(ctx context.Context, id string) (*systemdomain.System, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

type memUsers struct {
	mu sync.Mutex
	m  map[string]*userdomain.User
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

type countingIssuer struct {
	calls int32
}

func (p *countingIssuer) IssueSystemPair(ctx context.Context, u *userdomain.User, sys *systemdomain.System, scope, ip, device string) (*identitydomain.TokenPair, error) {
	atomic.AddInt32(&p.calls, 1)
	return &identitydomain.TokenPair{AccessToken: "access-for-" + u.ID + "@" + sys.Name, Kind: security.KindAccess, RefreshToken: "refresh", UserID: u.ID}, nil
}

type fixture struct {
	m        *Manager
	codes    *repository.MemoryRepository
	users    *memUsers
	systems  *memSystems
	sessions *sessionrepo.MemoryRepository
	issuer   *countingIssuer
	now      time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		codes:    repository.NewMemoryRepository(),
		users:    &memUsers{m: map[string]*userdomain.User{"u1": {ID: "u1", Status: userdomain.UserStatusActive}}},
		systems:  &memSystems{m: map[string]*systemdomain.System{"sys-1": {ID: "sys-1", Code: "PAY", Name: "payroll", Secret: "s3cret", Enabled: true}}},
		sessions: sessionrepo.NewMemoryRepository(),
		issuer:   &countingIssuer{},
		now:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	ledger := sessionservice.NewLedger(f.sessions, sessionservice.WithClock(f.clock))
	f.m = NewManager(f.codes, f.systems, f.users, ledger, WithClock(f.clock))
	f.m.SetPairIssuer(f.issuer)
	err := f.sessions.Create(context.Background(), &sessiondomain.Session{
		ID: "rec-1", UserID: "u1", TokenID: "jti-1", Kind: security.KindSession,
		IssuedAt: f.now, ExpiresAt: f.now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return f
}

func (f *fixture) code(t *testing.T) string {
	t.Helper()
	c, err := f.m.GenerateCode(context.Background(), "u1", "sys-1", "rec-1", "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return c
}

func TestManager_GenerateCode(t *testing.T) {
	f := newFixture(t)
	c := f.code(t)
	if _, err := uuid.Parse(c); err != nil {
		t.Fatalf("code %q is not a uuid: %v", c, err)
	}
	stored := f.codes.Get(c)
	if stored == nil {
		t.Fatal("code not persisted")
	}
	if !stored.ExpiresAt.Equal(f.now.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want now+%v", stored.ExpiresAt, DefaultTTL)
	}
	if stored.SessionID != "rec-1" || stored.SystemID != "sys-1" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestManager_RedeemAtMostOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.code(t)

	pair, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", "")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if pair.AccessToken != "access-for-u1@payroll" {
		t.Errorf("AccessToken = %q", pair.AccessToken)
	}
	if _, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", ""); !errors.Is(err, ErrCodeInvalidUsedOrExpired) {
		t.Errorf("second redeem: err = %v, want ErrCodeInvalidUsedOrExpired", err)
	}
	if f.issuer.calls != 1 {
		t.Errorf("issuer calls = %d, want 1", f.issuer.calls)
	}
}

func TestManager_RedeemExpired(t *testing.T) {
	f := newFixture(t)
	c := f.code(t)
	f.now = f.now.Add(DefaultTTL)
	if _, err := f.m.Redeem(context.Background(), c, "sys-1", "s3cret", "", ""); !errors.Is(err, ErrCodeInvalidUsedOrExpired) {
		t.Errorf("err = %v, want ErrCodeInvalidUsedOrExpired", err)
	}
}

func TestManager_RedeemWrongSecretDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.code(t)

	if _, err := f.m.Redeem(ctx, c, "sys-1", "wrong", "", ""); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("err = %v, want ErrInvalidSecret", err)
	}
	if stored := f.codes.Get(c); stored.UsedAt != nil {
		t.Fatal("wrong secret consumed the code")
	}
	if _, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", ""); err != nil {
		t.Fatalf("retry with correct secret: %v", err)
	}
}

func TestManager_RedeemWrongSystem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.systems.m["sys-2"] = &systemdomain.System{ID: "sys-2", Name: "crm", Secret: "other", Enabled: true}
	c := f.code(t)
	if _, err := f.m.Redeem(ctx, c, "sys-2", "other", "", ""); !errors.Is(err, ErrCodeInvalidUsedOrExpired) {
		t.Errorf("code for sys-1 redeemed by sys-2: err = %v", err)
	}
	if _, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", ""); err != nil {
		t.Errorf("code should still be redeemable by its own system: %v", err)
	}
}

func TestManager_RedeemStepErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.m.Redeem(ctx, "not-a-uuid", "sys-1", "s3cret", "", ""); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("err = %v, want ErrInvalidCode", err)
		}
	})
	t.Run("unknown system", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.m.Redeem(ctx, f.code(t), "nope", "s3cret", "", ""); !errors.Is(err, ErrSystemNotFound) {
			t.Errorf("err = %v, want ErrSystemNotFound", err)
		}
	})
	t.Run("disabled system", func(t *testing.T) {
		f := newFixture(t)
		c := f.code(t)
		f.systems.m["sys-1"].Enabled = false
		if _, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", ""); !errors.Is(err, ErrSystemNotFound) {
			t.Errorf("err = %v, want ErrSystemNotFound", err)
		}
	})
	t.Run("unknown code", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.m.Redeem(ctx, uuid.New().String(), "sys-1", "s3cret", "", ""); !errors.Is(err, ErrCodeInvalidUsedOrExpired) {
			t.Errorf("err = %v, want ErrCodeInvalidUsedOrExpired", err)
		}
	})
	t.Run("user missing", func(t *testing.T) {
		f := newFixture(t)
		c := f.code(t)
		delete(f.users.m, "u1")
		if _, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", ""); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("err = %v, want ErrUserNotFound", err)
		}
	})
	t.Run("user disabled", func(t *testing.T) {
		f := newFixture(t)
		c := f.code(t)
		f.users.m["u1"].Status = userdomain.UserStatusDisabled
		if _, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", ""); !errors.Is(err, ErrUserDisabled) {
			t.Errorf("err = %v, want ErrUserDisabled", err)
		}
	})
	t.Run("session revoked", func(t *testing.T) {
		f := newFixture(t)
		c := f.code(t)
		_, _ = f.sessions.Revoke(ctx, "u1", "", f.now)
		if _, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", ""); !errors.Is(err, ErrSessionInvalid) {
			t.Errorf("err = %v, want ErrSessionInvalid", err)
		}
	})
}

func TestManager_ConcurrentRedeemOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.code(t)

	const n = 20
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.m.Redeem(ctx, c, "sys-1", "s3cret", "", ""); err == nil {
				atomic.AddInt32(&wins, 1)
			} else if !errors.Is(err, ErrCodeInvalidUsedOrExpired) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}
