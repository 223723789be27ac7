package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/audit"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/registry"
	"ghginventory.org/internal/stream"
)

type createUserRequest struct {
	Name      string        `json:"name" validate:"required,max=120"`
	Email     string        `json:"email" validate:"required,email"`
	Role      registry.Role `json:"role" validate:"required,oneof=Root Admin Manager ViewOnly"`
	CompanyID int64         `json:"companyId" validate:"required,gt=0"`
	Password  string        `json:"password" validate:"required,min=8"`
}

// updateUserRequest is a partial update; every present field is authorized on
// its own.
type updateUserRequest struct {
	Name        *string        `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Email       *string        `json:"email,omitempty" validate:"omitempty,email"`
	Role        *registry.Role `json:"role,omitempty" validate:"omitempty,oneof=Root Admin Manager ViewOnly"`
	Password    *string        `json:"password,omitempty" validate:"omitempty,min=8"`
	APIKey      *string        `json:"apiKey,omitempty" validate:"omitempty,min=16"`
	CompanyRole *string        `json:"companyRole,omitempty"`
}

func (req updateUserRequest) fields() []string {
	var out []string
	if req.Name != nil {
		out = append(out, registry.FieldName)
	}
	if req.Email != nil {
		out = append(out, registry.FieldEmail)
	}
	if req.Role != nil {
		out = append(out, registry.FieldRole)
	}
	if req.Password != nil {
		out = append(out, registry.FieldPassword)
	}
	if req.APIKey != nil {
		out = append(out, registry.FieldAPIKey)
	}
	if req.CompanyRole != nil {
		out = append(out, registry.FieldCompanyRole)
	}
	return out
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	ab := auth.AbilityFromContext(r.Context())
	visible := make([]registry.User, 0, len(users))
	for i := range users {
		if ab.Can(ability.ActionRead, &users[i]) {
			visible = append(visible, users[i])
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visible})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	company, err := a.store.GetCompany(r.Context(), req.CompanyID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	candidate := registry.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		Role:         req.Role,
		CompanyID:    company.CompanyID,
		CompanyRole:  company.CompanyRole,
		CompanyState: company.State,
	}
	if !authorize(w, r, ability.ActionCreate, &candidate) {
		return
	}
	if fe := guardUserWrite(r, &candidate, ability.ActionCreate, req.Role); fe != nil {
		writeForbidden(w, r, fe)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		handleError(w, r, err)
		return
	}
	candidate.PasswordHash = hash
	user, err := a.store.CreateUser(r.Context(), candidate)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserCreated, map[string]any{
		"target_user_id": user.ID,
		"company_id":     user.CompanyID,
		"role":           string(user.Role),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%d", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

// guardUserWrite checks what the rule list cannot see: the role being
// assigned and, on create, the company the new account lands in. Only Root
// hands out the Root role, and only Root or a Government/Ministry admin
// creates accounts outside its own company.
func guardUserWrite(r *http.Request, target *registry.User, action ability.Action, role registry.Role) *ability.ForbiddenError {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return &ability.ForbiddenError{Action: action, Subject: registry.SubjectUser}
	}
	caller := sess.User
	if role == registry.RoleRoot && caller.Role != registry.RoleRoot {
		return &ability.ForbiddenError{
			Action:  action,
			Subject: registry.SubjectUser,
			Field:   registry.FieldRole,
			Reason:  ability.ReasonRootRole,
		}
	}
	if action != ability.ActionCreate || target.CompanyID == caller.CompanyID {
		return nil
	}
	governmentAdmin := caller.Role == registry.RoleAdmin &&
		(caller.CompanyRole == registry.CompanyRoleGovernment || caller.CompanyRole == registry.CompanyRoleMinistry)
	if caller.Role == registry.RoleRoot || governmentAdmin {
		return nil
	}
	return &ability.ForbiddenError{
		Action:  action,
		Subject: registry.SubjectUser,
		Reason:  ability.ReasonForeignUser,
	}
}

// loadUser fetches the path user and checks action on it.
func (a *API) loadUser(w http.ResponseWriter, r *http.Request, action ability.Action, fields ...string) (registry.User, bool) {
	id, err := pathInt64(r, "id")
	if err != nil {
		handleError(w, r, err)
		return registry.User{}, false
	}
	user, err := a.store.GetUser(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return registry.User{}, false
	}
	if !authorize(w, r, action, &user, fields...) {
		return registry.User{}, false
	}
	return user, true
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	user, ok := a.loadUser(w, r, ability.ActionRead)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	fields := req.fields()
	if len(fields) == 0 {
		writeValidation(w, r, &ValidationError{Message: "no fields to update"})
		return
	}
	user, ok := a.loadUser(w, r, ability.ActionUpdate, fields...)
	if !ok {
		return
	}
	if req.CompanyRole != nil {
		writeValidation(w, r, fieldError(registry.FieldCompanyRole, "companyRole is derived from the company"))
		return
	}
	if req.Role != nil {
		if fe := guardUserWrite(r, &user, ability.ActionUpdate, *req.Role); fe != nil {
			writeForbidden(w, r, fe)
			return
		}
	}

	upd := registry.UserUpdate{Email: req.Email, Role: req.Role, APIKey: req.APIKey}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		upd.Name = &name
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			handleError(w, r, err)
			return
		}
		upd.PasswordHash = &hash
	}
	updated, err := a.store.UpdateUser(r.Context(), user.ID, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserUpdated, map[string]any{
		"target_user_id": updated.ID,
		"fields":         fields,
	})
	if req.Role != nil && *req.Role != user.Role {
		a.hub.Publish(stream.ProfileChanged{UserID: updated.ID, CompanyID: updated.CompanyID, Reason: "role"})
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	user, ok := a.loadUser(w, r, ability.ActionDelete)
	if !ok {
		return
	}
	if err := a.store.DeleteUser(r.Context(), user.ID); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserDeleted, map[string]any{
		"target_user_id": user.ID,
	})
	a.hub.Publish(stream.ProfileChanged{UserID: user.ID, CompanyID: user.CompanyID, Reason: "deleted"})
	w.WriteHeader(http.StatusNoContent)
}
