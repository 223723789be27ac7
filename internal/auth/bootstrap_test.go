package auth

import (
	"context"
	"errors"
	"testing"

	"ghginventory.org/internal/registry"
)

func TestEnsureRootIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := registry.NewInMemory()
	acct := RootAccount{Email: "Root@Example.org", Password: "correct-horse", Name: "Root", CompanyName: "Registry"}

	first, created, err := EnsureRoot(ctx, store, acct)
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	if !created {
		t.Fatalf("expected the root account to be created")
	}
	if first.Role != registry.RoleRoot || first.CompanyRole != registry.CompanyRoleGovernment {
		t.Fatalf("unexpected root user: %+v", first)
	}
	if err := VerifyPassword(first.PasswordHash, "correct-horse"); err != nil {
		t.Fatalf("password not stored: %v", err)
	}

	second, created, err := EnsureRoot(ctx, store, acct)
	if err != nil {
		t.Fatalf("second EnsureRoot: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected existing user %d, got %d (created=%v)", first.ID, second.ID, created)
	}
	companies, _ := store.ListCompanies(ctx)
	if len(companies) != 1 {
		t.Fatalf("expected one company, got %d", len(companies))
	}
}

func TestEnsureRootRejectsNonGovernmentCompany(t *testing.T) {
	ctx := context.Background()
	store := registry.NewInMemory()
	if _, err := store.CreateCompany(ctx, registry.Company{Name: "Registry", CompanyRole: registry.CompanyRoleCertifier, State: registry.CompanyStateActive}); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}

	_, _, err := EnsureRoot(ctx, store, RootAccount{Email: "root@example.org", Password: "correct-horse", CompanyName: "Registry"})
	if !errors.Is(err, registry.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestEnsureRootRequiresEmail(t *testing.T) {
	_, _, err := EnsureRoot(context.Background(), registry.NewInMemory(), RootAccount{Password: "correct-horse"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
