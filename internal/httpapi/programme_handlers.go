package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/audit"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/registry"
)

type createProgrammeRequest struct {
	Title     string  `json:"title" validate:"required,max=200"`
	Sector    string  `json:"sector" validate:"max=80"`
	CompanyID []int64 `json:"companyId" validate:"required,min=1,dive,gt=0"`
	CreditEst int64   `json:"creditEst" validate:"gte=0"`
}

type certifyRequest struct {
	Comment string `json:"comment" validate:"max=200"`
	Revoke  bool   `json:"revoke"`
}

// retireRequest retires the remaining issued credits of a programme.
type retireRequest struct {
	ProgrammeID string `json:"programmeId" validate:"required"`
	Comment     string `json:"comment" validate:"max=200"`
}

type transferRequest struct {
	ProgrammeID   string `json:"programmeId" validate:"required"`
	FromCompanyID int64  `json:"fromCompanyId" validate:"required,gt=0"`
	ToCompanyID   int64  `json:"toCompanyId" validate:"required,gt=0,nefield=FromCompanyID"`
	Credits       int64  `json:"creditAmount" validate:"required,gt=0"`
	Comment       string `json:"comment" validate:"max=200"`
}

func (a *API) readableProgrammes(r *http.Request) ([]registry.Programme, error) {
	programmes, err := a.store.ListProgrammes(r.Context())
	if err != nil {
		return nil, err
	}
	ab := auth.AbilityFromContext(r.Context())
	visible := make([]registry.Programme, 0, len(programmes))
	for i := range programmes {
		if ab.Can(ability.ActionRead, &programmes[i]) {
			visible = append(visible, programmes[i])
		}
	}
	return visible, nil
}

func (a *API) listProgrammes(w http.ResponseWriter, r *http.Request) {
	visible, err := a.readableProgrammes(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visible})
}

func (a *API) programmeStats(w http.ResponseWriter, r *http.Request) {
	visible, err := a.readableProgrammes(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	transfers, err := a.store.ListTransfers(r.Context(), "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"programmes": len(visible),
		"stats":      registry.CreditStats(visible, transfers),
	})
}

func (a *API) createProgramme(w http.ResponseWriter, r *http.Request) {
	var req createProgrammeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	companyIDs := append([]int64(nil), req.CompanyID...)
	slices.Sort(companyIDs)
	candidate := registry.Programme{
		Title:        strings.TrimSpace(req.Title),
		Sector:       strings.TrimSpace(req.Sector),
		CurrentStage: registry.StageAwaitingAuthorization,
		CompanyID:    slices.Compact(companyIDs),
		CreditEst:    req.CreditEst,
	}
	if !authorize(w, r, ability.ActionCreate, &candidate) {
		return
	}
	programme, err := a.store.CreateProgramme(r.Context(), candidate)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventProgrammeCreated, map[string]any{
		"programme_id": programme.ProgrammeID,
		"company_ids":  programme.CompanyID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/programmes/%s", programme.ProgrammeID))
	writeJSON(w, http.StatusCreated, programme)
}

func (a *API) getProgramme(w http.ResponseWriter, r *http.Request) {
	programme, err := a.store.GetProgramme(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !authorize(w, r, ability.ActionRead, &programme) {
		return
	}
	writeJSON(w, http.StatusOK, programme)
}

func (a *API) certifyProgramme(w http.ResponseWriter, r *http.Request) {
	var req certifyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	programme, err := a.store.GetProgramme(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	cert := registry.ProgrammeCertify{
		ProgrammeID: programme.ProgrammeID,
		CertifierID: sess.User.CompanyID,
		Comment:     strings.TrimSpace(req.Comment),
		Revoke:      req.Revoke,
	}
	if !authorize(w, r, ability.ActionCreate, &cert) {
		return
	}

	certified := slices.Contains(programme.CertifierID, cert.CertifierID)
	switch {
	case req.Revoke && !certified:
		writeError(w, r, http.StatusConflict, "programme is not certified by this company")
		return
	case !req.Revoke && certified:
		writeError(w, r, http.StatusConflict, "programme already certified by this company")
		return
	case req.Revoke:
		programme.CertifierID = slices.DeleteFunc(programme.CertifierID, func(id int64) bool { return id == cert.CertifierID })
	default:
		programme.CertifierID = append(programme.CertifierID, cert.CertifierID)
	}
	if _, err := a.store.SaveProgramme(r.Context(), programme); err != nil {
		handleError(w, r, err)
		return
	}
	stored, err := a.store.CreateCertification(r.Context(), cert)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventProgrammeCertify, map[string]any{
		"programme_id": stored.ProgrammeID,
		"certifier_id": stored.CertifierID,
		"revoke":       stored.Revoke,
	})
	writeJSON(w, http.StatusCreated, stored)
}

func (a *API) retireProgramme(w http.ResponseWriter, r *http.Request) {
	var req retireRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if req.ProgrammeID != id {
		writeValidation(w, r, fieldError("programmeId", "programmeId must match the path"))
		return
	}
	programme, err := a.store.GetProgramme(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !authorize(w, r, ability.ActionUpdate, &programme) {
		return
	}
	retired := programme.CreditIssued - programme.CreditRetired
	if retired <= 0 {
		writeError(w, r, http.StatusConflict, "no credits left to retire")
		return
	}
	programme.CreditRetired = programme.CreditIssued
	saved, err := a.store.SaveProgramme(r.Context(), programme)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventProgrammeRetired, map[string]any{
		"programme_id": saved.ProgrammeID,
		"credits":      retired,
		"comment":      strings.TrimSpace(req.Comment),
	})
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	transfer := registry.ProgrammeTransfer{
		ProgrammeID:   req.ProgrammeID,
		InitiatorID:   sess.User.ID,
		FromCompanyID: req.FromCompanyID,
		ToCompanyID:   req.ToCompanyID,
		Credits:       req.Credits,
		Comment:       strings.TrimSpace(req.Comment),
		Status:        registry.TransferPending,
	}
	if !authorize(w, r, ability.ActionCreate, &transfer) {
		return
	}
	stored, err := a.store.CreateTransfer(r.Context(), transfer)
	var short *registry.CreditShortfallError
	if errors.As(err, &short) {
		writeValidation(w, r, fieldError("creditAmount", fmt.Sprintf("creditAmount exceeds programme balance of %d", short.Available)))
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventTransferRequested, map[string]any{
		"transfer_id":     stored.RequestID,
		"programme_id":    stored.ProgrammeID,
		"from_company_id": stored.FromCompanyID,
		"to_company_id":   stored.ToCompanyID,
		"credits":         stored.Credits,
	})
	writeJSON(w, http.StatusCreated, stored)
}
