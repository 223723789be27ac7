package ability

import (
	"slices"

	"ghginventory.org/internal/registry"
)

const (
	User              = registry.SubjectUser
	Company           = registry.SubjectCompany
	Programme         = registry.SubjectProgramme
	ProgrammeTransfer = registry.SubjectProgrammeTransfer
	ProgrammeCertify  = registry.SubjectProgrammeCertify
	InventoryRecord   = registry.SubjectInventoryRecord
	All               = registry.SubjectAll
)

// Reasons attached to deny rules.
const (
	ReasonProtectedField   = "protected profile field"
	ReasonForeignUser      = "user belongs to another company"
	ReasonForeignCompany   = "company is not your own"
	ReasonCompanyRoleFixed = "company role cannot be changed"
	ReasonPeerCompany      = "cannot delete a company of your own role"
	ReasonOwnCompany       = "cannot delete your own company"
	ReasonGovernment       = "government company cannot be deleted"
	ReasonNotAdmin         = "only administrators can create users"
	ReasonOtherUser        = "can only change your own profile"
	ReasonCreateCompany    = "not allowed to create companies"
	ReasonSuspended        = "company is suspended"
	ReasonRootRole         = "only root can assign the root role"
	ReasonInventoryReview  = "only government users review inventory records"
	ReasonInventoryLocked  = "approved inventory records are locked"
)

var protectedUserFields = []string{
	registry.FieldRole,
	registry.FieldAPIKey,
	registry.FieldPassword,
	registry.FieldCompanyRole,
	registry.FieldEmail,
}

func userWhere(fn func(*registry.User) bool) Condition {
	return func(e registry.Entity) bool {
		u, ok := e.(*registry.User)
		return ok && u != nil && fn(u)
	}
}

func companyWhere(fn func(*registry.Company) bool) Condition {
	return func(e registry.Entity) bool {
		c, ok := e.(*registry.Company)
		return ok && c != nil && fn(c)
	}
}

func programmeWhere(fn func(*registry.Programme) bool) Condition {
	return func(e registry.Entity) bool {
		p, ok := e.(*registry.Programme)
		return ok && p != nil && fn(p)
	}
}

func inventoryWhere(fn func(*registry.InventoryRecord) bool) Condition {
	return func(e registry.Entity) bool {
		r, ok := e.(*registry.InventoryRecord)
		return ok && r != nil && fn(r)
	}
}

// BuildRules compiles the registry policy for user. A nil user gets no rules,
// so every query is denied. The order of the statements below is significant.
func BuildRules(user *registry.User) []Rule {
	b := NewBuilder()
	if user == nil {
		return b.Rules()
	}

	var (
		ownID          = user.ID
		ownCompany     = user.CompanyID
		ownCompanyRole = user.CompanyRole

		isSelf         = userWhere(func(u *registry.User) bool { return u.ID == ownID })
		notSelf        = userWhere(func(u *registry.User) bool { return u.ID != ownID })
		userNotRoot    = userWhere(func(u *registry.User) bool { return u.Role != registry.RoleRoot })
		userInCompany  = userWhere(func(u *registry.User) bool { return u.CompanyID == ownCompany })
		userOutside    = userWhere(func(u *registry.User) bool { return u.CompanyID != ownCompany })
		companyOwn     = companyWhere(func(c *registry.Company) bool { return c.CompanyID == ownCompany })
		companyForeign = companyWhere(func(c *registry.Company) bool { return c.CompanyID != ownCompany })
	)

	role := user.Role
	companyRole := user.CompanyRole
	governmentLike := companyRole == registry.CompanyRoleGovernment || companyRole == registry.CompanyRoleMinistry

	switch {
	case role == registry.RoleRoot:
		b.Can(All, ActionManage)
		b.Cannot(User, ActionUpdate).OnFields(protectedUserFields...).
			When("id == self", isSelf).Because(ReasonProtectedField)
		b.Cannot(User, ActionUpdate).When("companyId != own", userOutside).Because(ReasonForeignUser)
		b.Cannot(Company, ActionUpdate).Because(ReasonForeignCompany)
		b.Can(Company, ActionDelete)
		b.Can(Company, ActionCreate)
		b.Can(Company, ActionUpdate).When("companyId == own", companyOwn)

	case role == registry.RoleAdmin && governmentLike:
		b.Can(User, ActionManage).When("role != Root", userNotRoot)
		b.Cannot(User, ActionUpdate).OnFields(protectedUserFields...).
			When("id == self", isSelf).Because(ReasonProtectedField)
		b.Cannot(User, ActionUpdate, ActionDelete).When("companyId != own", userOutside).Because(ReasonForeignUser)
		b.Can(Company, ActionUpdate).When("companyId == own", companyOwn)
		b.Cannot(Company, ActionUpdate).When("companyId != own", companyForeign).Because(ReasonForeignCompany)
		b.Cannot(Company, ActionUpdate).OnFields(registry.FieldCompanyRole).Because(ReasonCompanyRoleFixed)
		b.Can(Company, ActionDelete)
		b.Can(Company, ActionCreate)
		if companyRole == registry.CompanyRoleMinistry {
			b.Can(User, ActionRead)
			b.Cannot(User, ActionUpdate, ActionDelete, ActionRead).
				When("companyId != own", userOutside).Because(ReasonForeignUser)
			b.Cannot(Company, ActionDelete).
				When("companyRole == own", companyWhere(func(c *registry.Company) bool {
					return c.CompanyRole == ownCompanyRole
				})).Because(ReasonPeerCompany)
			b.Cannot(Company, ActionDelete).When("companyId == own", companyOwn).Because(ReasonOwnCompany)
		}

	case role == registry.RoleAdmin && companyRole != registry.CompanyRoleGovernment:
		// Never true: Ministry admins match the case above.
		if companyRole == registry.CompanyRoleMinistry {
			b.Can(Company, ActionCreate)
		}
		b.Can(User, ActionManage).When("role != Root", userNotRoot)
		b.Cannot(User, ActionUpdate, ActionDelete, ActionRead).
			When("companyId != own", userOutside).Because(ReasonForeignUser)
		b.Cannot(User, ActionUpdate).OnFields(protectedUserFields...).
			When("id == self", isSelf).Because(ReasonProtectedField)
		b.Can(Company, ActionRead)
		b.Can(Company, ActionUpdate).When("companyId == own", companyOwn)
		b.Cannot(Company, ActionUpdate).When("companyId != own", companyForeign).Because(ReasonForeignCompany)
		b.Cannot(Company, ActionUpdate).OnFields(registry.FieldCompanyRole).Because(ReasonCompanyRoleFixed)
		b.Cannot(Company, ActionCreate).Because(ReasonCreateCompany)

	default:
		if governmentLike {
			b.Can(User, ActionRead)
		} else {
			b.Can(User, ActionRead).When("companyId == own", userInCompany)
		}
		b.Can(User, ActionUpdate).When("id == self", isSelf)
		b.Cannot(User, ActionUpdate).OnFields(
			registry.FieldEmail,
			registry.FieldRole,
			registry.FieldAPIKey,
			registry.FieldPassword,
			registry.FieldCompanyRole,
		).Because(ReasonProtectedField)
		b.Can(Company, ActionRead)
	}

	if role == registry.RoleManager && companyRole == registry.CompanyRoleGovernment {
		b.Can(Company, ActionDelete)
	}

	if role != registry.RoleViewOnly && companyRole == registry.CompanyRoleProgrammeDeveloper {
		b.Can(ProgrammeTransfer, ActionManage)
	}

	if role != registry.RoleViewOnly && companyRole == registry.CompanyRoleGovernment {
		b.Can(ProgrammeTransfer, ActionManage)
		b.Can(Programme, ActionManage)
	}

	if role != registry.RoleViewOnly && companyRole == registry.CompanyRoleCertifier {
		b.Can(ProgrammeCertify, ActionManage)
	}

	authorised := programmeWhere(func(p *registry.Programme) bool {
		return p.CurrentStage == registry.StageAuthorised
	})
	switch {
	case role == registry.RoleAdmin && companyRole == registry.CompanyRoleMRV:
		b.Can(Programme, ActionCreate, ActionRead)
	case companyRole == registry.CompanyRoleCertifier:
		b.Can(Programme, ActionRead).When("currentStage == Authorised", authorised)
		b.Can(Programme, ActionRead).When("certifierId contains own", programmeWhere(func(p *registry.Programme) bool {
			return slices.Contains(p.CertifierID, ownCompany)
		}))
	case companyRole == registry.CompanyRoleProgrammeDeveloper:
		b.Can(Programme, ActionRead).When("currentStage == Authorised", authorised)
		b.Can(Programme, ActionRead).When("companyId contains own", programmeWhere(func(p *registry.Programme) bool {
			return slices.Contains(p.CompanyID, ownCompany)
		}))
	}

	switch {
	case governmentLike && role != registry.RoleViewOnly:
		b.Can(InventoryRecord, ActionManage)
	case companyRole == registry.CompanyRoleMRV && role != registry.RoleViewOnly:
		b.Can(InventoryRecord, ActionCreate, ActionRead, ActionUpdate)
		b.Cannot(InventoryRecord, ActionUpdate).OnFields(registry.FieldStatus).Because(ReasonInventoryReview)
		b.Cannot(InventoryRecord, ActionUpdate).When("status == Approved", inventoryWhere(func(r *registry.InventoryRecord) bool {
			return r.Status == registry.InventoryApproved
		})).Because(ReasonInventoryLocked)
	case governmentLike || companyRole == registry.CompanyRoleMRV:
		b.Can(InventoryRecord, ActionRead)
	}

	b.Cannot(User, ActionUpdate).OnFields(registry.FieldCompanyRole).Because(ReasonCompanyRoleFixed)
	b.Cannot(Company, ActionDelete).When("companyRole == Government", companyWhere(func(c *registry.Company) bool {
		return c.CompanyRole == registry.CompanyRoleGovernment
	})).Because(ReasonGovernment)

	if role == registry.RoleAdmin || role == registry.RoleRoot {
		b.Can(User, ActionCreate)
	} else {
		b.Cannot(User, ActionCreate).Because(ReasonNotAdmin)
		b.Cannot(User, ActionUpdate).When("id != self", notSelf).Because(ReasonOtherUser)
		b.Cannot(User, ActionDelete).When("id != self", notSelf).Because(ReasonOtherUser)
		b.Cannot(Company, ActionCreate).Because(ReasonCreateCompany)
	}

	if user.CompanyState == registry.CompanyStateSuspended {
		b.Cannot(All, ActionManage, ActionCreate, ActionDelete, ActionUpdate).Because(ReasonSuspended)
	}

	return b.Rules()
}
