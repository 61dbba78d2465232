package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dukaanpos/backend/internal/domain"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func newUserStoreStub(users ...domain.UserAccount) *userStoreStub {
	stub := &userStoreStub{users: make(map[string]domain.UserAccount)}
	for _, u := range users {
		stub.users[u.Username] = u
	}
	return stub
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[username]
	u.Password = password
	s.users[username] = u
	return nil
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func TestLoginAndParseToken(t *testing.T) {
	store := newUserStoreStub(domain.UserAccount{
		Username: "admin",
		Password: mustHashPassword(t, "admin123"),
		Role:     "admin",
		Active:   true,
	})
	manager := NewAuthManager("auth-test-secret-0123456789012345", time.Hour, store)

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("role = %q, want admin", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestLoginRejectsWrongPasswordAndInactive(t *testing.T) {
	store := newUserStoreStub(
		domain.UserAccount{Username: "admin", Password: mustHashPassword(t, "admin123"), Role: "admin", Active: true},
		domain.UserAccount{Username: "gone", Password: mustHashPassword(t, "gone123"), Role: "cashier", Active: false},
	)
	manager := NewAuthManager("auth-test-secret-0123456789012345", time.Hour, store)

	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "gone", Password: "gone123"}); err == nil {
		t.Fatalf("expected inactive account to fail")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "nobody", Password: "x"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	store := newUserStoreStub(domain.UserAccount{
		Username: "legacy",
		Password: "plain-secret",
		Role:     "cashier",
		Active:   true,
	})
	manager := NewAuthManager("auth-test-secret-0123456789012345", time.Hour, store)

	if _, err := manager.Login(domain.LoginRequest{Username: "legacy", Password: "plain-secret"}); err != nil {
		t.Fatalf("login with legacy plaintext password: %v", err)
	}

	store.mu.Lock()
	stored := store.users["legacy"].Password
	store.mu.Unlock()
	if !isPasswordHash(stored) {
		t.Fatalf("expected stored password to be upgraded to a bcrypt hash, got %q", stored)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "legacy", Password: "plain-secret"}); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	store := newUserStoreStub(domain.UserAccount{
		Username: "admin", Password: mustHashPassword(t, "admin123"), Role: "admin", Active: true,
	})
	manager := NewAuthManager("auth-test-secret-0123456789012345", time.Hour, store)
	other := NewAuthManager("different-secret-98765432109876543", time.Hour, store)

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}
	if _, err := manager.ParseToken(resp.AccessToken + "x"); err == nil {
		t.Fatalf("expected corrupted token to fail")
	}
	if _, err := manager.ParseToken(""); err == nil {
		t.Fatalf("expected empty token to fail")
	}
}

func TestCreateCashierValidation(t *testing.T) {
	store := newUserStoreStub()
	manager := NewAuthManager("auth-test-secret-0123456789012345", time.Hour, store)

	cases := []struct {
		name string
		req  domain.CashierCreateRequest
	}{
		{"short username", domain.CashierCreateRequest{Username: "ab", Password: "secret99"}},
		{"username with space", domain.CashierCreateRequest{Username: "asha k", Password: "secret99"}},
		{"short password", domain.CashierCreateRequest{Username: "asha", Password: "abc"}},
	}
	for _, tc := range cases {
		if _, err := manager.CreateCashier(tc.req); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}

	cashier, err := manager.CreateCashier(domain.CashierCreateRequest{Username: "asha", Password: "secret99"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if cashier.Role != "cashier" || !cashier.Active {
		t.Fatalf("cashier = %+v", cashier)
	}

	if _, err := manager.CreateCashier(domain.CashierCreateRequest{Username: "asha", Password: "another9"}); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}

	stored := store.users["asha"]
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("persisted cashier password not hashed: %q", stored.Password)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "asha", Password: "secret99"}); err != nil {
		t.Fatalf("new cashier login: %v", err)
	}
}

func TestCSRFTokenWindow(t *testing.T) {
	api := &API{csrfSecret: []byte("csrf-unit-test-secret")}

	current := api.generateCSRFToken()
	if !api.validateCSRFToken(current) {
		t.Fatalf("current-hour token rejected")
	}

	prevBucket := time.Now().UTC().Truncate(time.Hour).Unix() - 3600
	previous := api.csrfTokenForHour(prevBucket)
	if !api.validateCSRFToken(previous) {
		t.Fatalf("previous-hour token rejected")
	}

	stale := api.csrfTokenForHour(prevBucket - 3600)
	if api.validateCSRFToken(stale) {
		t.Fatalf("two-hour-old token accepted")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("empty token accepted")
	}
}

func TestAttemptLimiter(t *testing.T) {
	limiter := newAttemptLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("attempt %d unexpectedly blocked", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("fourth attempt should be blocked")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("other client should not be affected")
	}
}
