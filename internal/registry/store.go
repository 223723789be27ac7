package registry

import "context"

// Store describes persistence operations required by the registry.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateCompany(ctx context.Context, c Company) (Company, error)
	GetCompany(ctx context.Context, id int64) (Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
	UpdateCompany(ctx context.Context, id int64, upd CompanyUpdate) (Company, error)
	DeleteCompany(ctx context.Context, id int64) error

	CreateProgramme(ctx context.Context, p Programme) (Programme, error)
	GetProgramme(ctx context.Context, id string) (Programme, error)
	ListProgrammes(ctx context.Context) ([]Programme, error)
	SaveProgramme(ctx context.Context, p Programme) (Programme, error)

	// CreateTransfer fails with *CreditShortfallError when t asks for more
	// than the programme's issued credits less retired and committed ones.
	CreateTransfer(ctx context.Context, t ProgrammeTransfer) (ProgrammeTransfer, error)
	// ListTransfers returns the transfers of programmeID, or all of them when
	// programmeID is empty, oldest first.
	ListTransfers(ctx context.Context, programmeID string) ([]ProgrammeTransfer, error)
	CreateCertification(ctx context.Context, c ProgrammeCertify) (ProgrammeCertify, error)

	// InventoryYears lists the years that have a record for menuID, ascending.
	InventoryYears(ctx context.Context, menuID string) ([]int, error)
	GetInventoryRecord(ctx context.Context, menuID string, year int) (InventoryRecord, error)
	// SaveInventoryRecord inserts or replaces the record keyed by its menu and year.
	SaveInventoryRecord(ctx context.Context, r InventoryRecord) (InventoryRecord, error)
	UpdateInventoryStatus(ctx context.Context, menuID string, year int, upd InventoryStatusUpdate) (InventoryRecord, error)
}

// UserUpdate carries the optional fields of a user update. A nil pointer leaves
// the column untouched.
type UserUpdate struct {
	Name         *string
	Email        *string
	Role         *Role
	PasswordHash *string
	APIKey       *string
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Role == nil && u.PasswordHash == nil && u.APIKey == nil
}

// CompanyUpdate carries the optional fields of a company update.
type CompanyUpdate struct {
	Name        *string
	Email       *string
	CompanyRole *CompanyRole
	State       *CompanyState
}
