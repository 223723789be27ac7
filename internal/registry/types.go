package registry

import "time"

// Role is the capability tier of a user inside its company.
type Role string

const (
	RoleRoot     Role = "Root"
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleViewOnly Role = "ViewOnly"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleRoot, RoleAdmin, RoleManager, RoleViewOnly:
		return true
	}
	return false
}

// CompanyRole is the sector role of a company.
type CompanyRole string

const (
	CompanyRoleGovernment         CompanyRole = "Government"
	CompanyRoleMinistry           CompanyRole = "Ministry"
	CompanyRoleProgrammeDeveloper CompanyRole = "ProgrammeDeveloper"
	CompanyRoleCertifier          CompanyRole = "Certifier"
	CompanyRoleMRV                CompanyRole = "MRV"
	CompanyRoleAPI                CompanyRole = "API"
)

// Valid reports whether c is a known company role.
func (c CompanyRole) Valid() bool {
	switch c {
	case CompanyRoleGovernment, CompanyRoleMinistry, CompanyRoleProgrammeDeveloper,
		CompanyRoleCertifier, CompanyRoleMRV, CompanyRoleAPI:
		return true
	}
	return false
}

// CompanyState gates every company scoped action. Zero means suspended.
type CompanyState int

const (
	CompanyStateSuspended CompanyState = 0
	CompanyStateActive    CompanyState = 1
)

// ProgrammeStage is the workflow stage of a programme.
type ProgrammeStage string

const (
	StageAwaitingAuthorization ProgrammeStage = "AwaitingAuthorization"
	StageAuthorised            ProgrammeStage = "Authorised"
	StageRejected              ProgrammeStage = "Rejected"
)

// Field names that field-level rules refer to.
const (
	FieldRole        = "role"
	FieldAPIKey      = "apiKey"
	FieldPassword    = "password"
	FieldCompanyRole = "companyRole"
	FieldEmail       = "email"
	FieldName        = "name"
	FieldStatus      = "status"
)

// User is both the authenticated actor and the User subject.
type User struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Role         Role         `json:"role"`
	CompanyID    int64        `json:"companyId"`
	CompanyRole  CompanyRole  `json:"companyRole"`
	CompanyState CompanyState `json:"companyState"`
	APIKey       string       `json:"-"`
	PasswordHash string       `json:"-"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Company is an organisation participating in the registry.
type Company struct {
	CompanyID   int64        `json:"companyId"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	CompanyRole CompanyRole  `json:"companyRole"`
	State       CompanyState `json:"state"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Active reports whether the company is not suspended.
func (c *Company) Active() bool { return c.State != CompanyStateSuspended }

// Programme is a mitigation programme. CompanyID holds the owning developers and
// CertifierID the companies that certified it.
type Programme struct {
	ProgrammeID   string         `json:"programmeId"`
	Title         string         `json:"title"`
	Sector        string         `json:"sector"`
	CurrentStage  ProgrammeStage `json:"currentStage"`
	CompanyID     []int64        `json:"companyId"`
	CertifierID   []int64        `json:"certifierId"`
	CreditEst     int64          `json:"creditEst"`
	CreditIssued  int64          `json:"creditIssued"`
	CreditRetired int64          `json:"creditRetired"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// TransferStatus tracks a credit transfer request.
type TransferStatus string

const (
	TransferPending  TransferStatus = "Pending"
	TransferAccepted TransferStatus = "Accepted"
	TransferRejected TransferStatus = "Rejected"
)

// ProgrammeTransfer is a request to move credits between companies.
type ProgrammeTransfer struct {
	RequestID     string         `json:"requestId"`
	ProgrammeID   string         `json:"programmeId"`
	InitiatorID   int64          `json:"initiator"`
	FromCompanyID int64          `json:"fromCompanyId"`
	ToCompanyID   int64          `json:"toCompanyId"`
	Credits       int64          `json:"creditAmount"`
	Comment       string         `json:"comment,omitempty"`
	Status        TransferStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Committed reports whether the transfer holds credits of its programme.
// Rejected requests release them.
func (t *ProgrammeTransfer) Committed() bool {
	return t.Status == TransferPending || t.Status == TransferAccepted
}

// ProgrammeCertify is a certification (or revocation) of a programme by a certifier.
type ProgrammeCertify struct {
	ProgrammeID string    `json:"programmeId"`
	CertifierID int64     `json:"certifierId"`
	Comment     string    `json:"comment,omitempty"`
	Revoke      bool      `json:"revoke,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
