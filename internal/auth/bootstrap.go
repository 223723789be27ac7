package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ghginventory.org/internal/registry"
)

// RootAccount describes the first Root user and the government company that
// hosts it.
type RootAccount struct {
	Email       string
	Password    string
	Name        string
	CompanyName string
}

// EnsureRoot creates the Root account when no user with its email exists yet.
// The returned flag reports whether anything was created.
func EnsureRoot(ctx context.Context, store registry.Store, acct RootAccount) (registry.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(acct.Email))
	if email == "" {
		return registry.User{}, false, fmt.Errorf("%w: root email is required", ErrInvalidInput)
	}
	existing, err := store.FindUserByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return registry.User{}, false, err
	}

	hash, err := HashPassword(acct.Password)
	if err != nil {
		return registry.User{}, false, err
	}
	company, err := governmentCompany(ctx, store, acct.CompanyName, email)
	if err != nil {
		return registry.User{}, false, err
	}
	user, err := store.CreateUser(ctx, registry.User{
		Name:         acct.Name,
		Email:        email,
		Role:         registry.RoleRoot,
		CompanyID:    company.CompanyID,
		PasswordHash: hash,
	})
	if err != nil {
		return registry.User{}, false, fmt.Errorf("create root user: %w", err)
	}
	return user, true, nil
}

func governmentCompany(ctx context.Context, store registry.Store, name, email string) (registry.Company, error) {
	if name == "" {
		name = "National Registry"
	}
	companies, err := store.ListCompanies(ctx)
	if err != nil {
		return registry.Company{}, err
	}
	for _, c := range companies {
		if strings.EqualFold(c.Name, name) {
			if c.CompanyRole != registry.CompanyRoleGovernment {
				return registry.Company{}, fmt.Errorf("%w: company %q is not a government company", registry.ErrConflict, name)
			}
			return c, nil
		}
	}
	c, err := store.CreateCompany(ctx, registry.Company{
		Name:        name,
		Email:       email,
		CompanyRole: registry.CompanyRoleGovernment,
		State:       registry.CompanyStateActive,
	})
	if err != nil {
		return registry.Company{}, fmt.Errorf("create government company: %w", err)
	}
	return c, nil
}
