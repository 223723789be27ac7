package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/registry"
)

func seedStore(t *testing.T) (*registry.InMemory, registry.User) {
	t.Helper()
	store := registry.NewInMemory()
	ctx := context.Background()
	company, err := store.CreateCompany(ctx, registry.Company{
		Name:        "Climate Ministry",
		CompanyRole: registry.CompanyRoleMinistry,
		State:       registry.CompanyStateActive,
	})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user, err := store.CreateUser(ctx, registry.User{
		Name:         "Admin",
		Email:        "admin@ministry.example",
		Role:         registry.RoleAdmin,
		CompanyID:    company.CompanyID,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return store, user
}

func TestLoginAndAuthenticate(t *testing.T) {
	store, user := seedStore(t)
	svc, err := NewService(store, WithTokenSecret("test-secret"), WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	token, session, err := svc.Login(ctx, "  ADMIN@ministry.example ", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token.AccessToken == "" || token.TokenType != "Bearer" {
		t.Fatalf("unexpected token: %+v", token)
	}
	if session.User.ID != user.ID || session.Ability == nil {
		t.Fatalf("unexpected session: %+v", session)
	}

	claims, err := svc.ParseToken(token.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Issuer != "test-issuer" || claims.Role != registry.RoleAdmin || claims.CompanyRole != registry.CompanyRoleMinistry {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	authed, err := svc.Authenticate(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !authed.Ability.Can(ability.ActionUpdate, &registry.Company{CompanyID: user.CompanyID}) {
		t.Fatalf("ministry admin should update own company")
	}
}

func TestAuthenticateReflectsSuspension(t *testing.T) {
	store, user := seedStore(t)
	svc, err := NewService(store, WithTokenSecret("test-secret"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()
	token, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	suspended := registry.CompanyStateSuspended
	if _, err := store.UpdateCompany(ctx, user.CompanyID, registry.CompanyUpdate{State: &suspended}); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	session, err := svc.Authenticate(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if session.Ability.Can(ability.ActionUpdate, &registry.Company{CompanyID: user.CompanyID}) {
		t.Fatalf("suspended company must not update")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	store, _ := seedStore(t)
	svc, _ := NewService(store, WithTokenSecret("test-secret"))
	ctx := context.Background()

	for _, tc := range []struct{ email, password string }{
		{"admin@ministry.example", "wrong-pass"},
		{"nobody@example.org", "s3cret-pass"},
		{"", ""},
	} {
		if _, _, err := svc.Login(ctx, tc.email, tc.password); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Login(%q): expected ErrUnauthorized, got %v", tc.email, err)
		}
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	store, user := seedStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc, _ := NewService(store, WithTokenSecret("test-secret"), WithClock(clock), WithAccessTTL(time.Minute))

	token, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	other, _ := NewService(store, WithTokenSecret("other-secret"), WithClock(clock))
	if _, err := other.ParseToken(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}
	foreign, _ := NewService(store, WithTokenSecret("test-secret"), WithIssuer("someone-else"), WithClock(clock))
	if _, err := foreign.ParseToken(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer failure, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.ParseToken(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry failure, got %v", err)
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(registry.NewInMemory()); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := HashPassword("short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := SessionFromContext(ctx); ok {
		t.Fatal("unexpected session")
	}
	if AbilityFromContext(ctx).Can(ability.ActionRead, registry.SubjectCompany) {
		t.Fatal("anonymous ability must deny")
	}
	user := registry.User{ID: 3, Role: registry.RoleManager, CompanyRole: registry.CompanyRoleCertifier, CompanyState: registry.CompanyStateActive}
	ctx = ContextWithSession(ctx, Session{User: user, Ability: ability.ForUser(&user)})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != 3 {
		t.Fatalf("unexpected user id %d", id)
	}
	if !AbilityFromContext(ctx).Can(ability.ActionRead, registry.SubjectCompany) {
		t.Fatal("expected read on companies")
	}
}
