package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/audit"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/obs"
	"ghginventory.org/internal/registry"
	"ghginventory.org/internal/stream"
)

type createCompanyRequest struct {
	Name        string               `json:"name" validate:"required,max=120"`
	Email       string               `json:"email" validate:"required,email"`
	CompanyRole registry.CompanyRole `json:"companyRole" validate:"required,oneof=Government Ministry ProgrammeDeveloper Certifier MRV API"`
}

type updateCompanyRequest struct {
	Name        *string               `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Email       *string               `json:"email,omitempty" validate:"omitempty,email"`
	CompanyRole *registry.CompanyRole `json:"companyRole,omitempty" validate:"omitempty,oneof=Government Ministry ProgrammeDeveloper Certifier MRV API"`
}

func (a *API) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := a.store.ListCompanies(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	ab := auth.AbilityFromContext(r.Context())
	visible := make([]registry.Company, 0, len(companies))
	for i := range companies {
		if ab.Can(ability.ActionRead, &companies[i]) {
			visible = append(visible, companies[i])
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visible})
}

func (a *API) createCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	candidate := registry.Company{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		CompanyRole: req.CompanyRole,
		State:       registry.CompanyStateActive,
	}
	if !authorize(w, r, ability.ActionCreate, &candidate) {
		return
	}
	company, err := a.store.CreateCompany(r.Context(), candidate)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventCompanyCreated, map[string]any{
		"company_id":   company.CompanyID,
		"company_role": string(company.CompanyRole),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/companies/%d", company.CompanyID))
	writeJSON(w, http.StatusCreated, company)
}

func (a *API) loadCompany(w http.ResponseWriter, r *http.Request, action ability.Action, fields ...string) (registry.Company, bool) {
	id, err := pathInt64(r, "id")
	if err != nil {
		handleError(w, r, err)
		return registry.Company{}, false
	}
	company, err := a.store.GetCompany(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return registry.Company{}, false
	}
	if !authorize(w, r, action, &company, fields...) {
		return registry.Company{}, false
	}
	return company, true
}

func (a *API) getCompany(w http.ResponseWriter, r *http.Request) {
	company, ok := a.loadCompany(w, r, ability.ActionRead)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (a *API) updateCompany(w http.ResponseWriter, r *http.Request) {
	var req updateCompanyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	var fields []string
	upd := registry.CompanyUpdate{CompanyRole: req.CompanyRole}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		upd.Name = &name
		fields = append(fields, registry.FieldName)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		upd.Email = &email
		fields = append(fields, registry.FieldEmail)
	}
	if req.CompanyRole != nil {
		fields = append(fields, registry.FieldCompanyRole)
	}
	if len(fields) == 0 {
		writeValidation(w, r, &ValidationError{Message: "no fields to update"})
		return
	}
	company, ok := a.loadCompany(w, r, ability.ActionUpdate, fields...)
	if !ok {
		return
	}
	updated, err := a.store.UpdateCompany(r.Context(), company.CompanyID, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventCompanyUpdated, map[string]any{
		"company_id": updated.CompanyID,
		"fields":     fields,
	})
	if req.CompanyRole != nil && *req.CompanyRole != company.CompanyRole {
		a.notifyCompany(r, updated.CompanyID, "companyRole")
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteCompany(w http.ResponseWriter, r *http.Request) {
	company, ok := a.loadCompany(w, r, ability.ActionDelete)
	if !ok {
		return
	}
	if err := a.store.DeleteCompany(r.Context(), company.CompanyID); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventCompanyDeleted, map[string]any{
		"company_id": company.CompanyID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) suspendCompany(w http.ResponseWriter, r *http.Request) {
	a.setCompanyState(w, r, registry.CompanyStateSuspended)
}

func (a *API) activateCompany(w http.ResponseWriter, r *http.Request) {
	a.setCompanyState(w, r, registry.CompanyStateActive)
}

// setCompanyState suspends or reactivates a company. Suspension is the soft
// form of deletion, so it is gated by delete on the company.
func (a *API) setCompanyState(w http.ResponseWriter, r *http.Request, state registry.CompanyState) {
	company, ok := a.loadCompany(w, r, ability.ActionDelete)
	if !ok {
		return
	}
	updated, err := a.store.UpdateCompany(r.Context(), company.CompanyID, registry.CompanyUpdate{State: &state})
	if err != nil {
		handleError(w, r, err)
		return
	}
	event := audit.EventCompanyActivated
	if state == registry.CompanyStateSuspended {
		event = audit.EventCompanySuspended
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"company_id": updated.CompanyID,
	})
	if company.State != state {
		a.notifyCompany(r, updated.CompanyID, "companyState")
	}
	writeJSON(w, http.StatusOK, updated)
}

// notifyCompany publishes a profile change for every member of a company.
func (a *API) notifyCompany(r *http.Request, companyID int64, reason string) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		obs.Logger().Warn("company_notify_failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Int64("company_id", companyID),
			zap.Error(err),
		)
		return
	}
	for _, u := range users {
		if u.CompanyID == companyID {
			a.hub.Publish(stream.ProfileChanged{UserID: u.ID, CompanyID: companyID, Reason: reason})
		}
	}
}
