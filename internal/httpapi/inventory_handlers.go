package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/audit"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/registry"
)

const (
	minInventoryYear = 1990
	maxInventoryYear = 2100
)

type forestLandRow struct {
	ForestCategory string  `json:"forestCategory" validate:"required,max=120"`
	Area           float64 `json:"area" validate:"gte=0"`
	GHGEmissions   float64 `json:"ghgEmissions"`
	Reference      string  `json:"reference" validate:"max=200"`
}

type saveForestLandRequest struct {
	Sector              string          `json:"sector" validate:"max=120"`
	SubSector           string          `json:"subSector" validate:"max=120"`
	Category            string          `json:"category" validate:"max=120"`
	CalculationApproach string          `json:"calculationApproach" validate:"max=40"`
	ForestData          []forestLandRow `json:"forestData" validate:"required,min=1,max=50,dive"`
	Remark              string          `json:"remark" validate:"max=500"`
}

type inventoryStatusRequest struct {
	Status          registry.InventoryStatus `json:"status" validate:"required,oneof=Pending Approved Rejected"`
	ApproverComment string                   `json:"approverComment" validate:"max=500"`
}

func pathYear(r *http.Request) (int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < minInventoryYear || year > maxInventoryYear {
		return 0, fieldError("year", "year must be between 1990 and 2100")
	}
	return year, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func (a *API) inventoryYears(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, ability.ActionRead, ability.InventoryRecord) {
		return
	}
	years, err := a.store.InventoryYears(r.Context(), registry.MenuForestLand)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": years})
}

func (a *API) getForestLand(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	rec, err := a.store.GetInventoryRecord(r.Context(), registry.MenuForestLand, year)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !authorize(w, r, ability.ActionRead, &rec) {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// saveForestLand replaces the worksheet of a year. Every save goes back to
// review, so an earlier approval is cleared.
func (a *API) saveForestLand(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req saveForestLandRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	action, code := ability.ActionUpdate, http.StatusOK
	existing, err := a.store.GetInventoryRecord(r.Context(), registry.MenuForestLand, year)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		action, code = ability.ActionCreate, http.StatusCreated
		existing = registry.InventoryRecord{
			MenuID:        registry.MenuForestLand,
			InventoryYear: year,
			Status:        registry.InventoryPending,
		}
	case err != nil:
		handleError(w, r, err)
		return
	}
	if !authorize(w, r, action, &existing) {
		return
	}

	rows := make([]registry.ForestLandEntry, len(req.ForestData))
	for i, row := range req.ForestData {
		rows[i] = registry.ForestLandEntry{
			ForestCategory: strings.TrimSpace(row.ForestCategory),
			Area:           row.Area,
			GHGEmissions:   row.GHGEmissions,
			Reference:      strings.TrimSpace(row.Reference),
		}
	}
	if err := registry.CheckForestData(rows); err != nil {
		handleError(w, r, err)
		return
	}
	saved, err := a.store.SaveInventoryRecord(r.Context(), registry.InventoryRecord{
		MenuID:              registry.MenuForestLand,
		InventoryYear:       year,
		Sector:              orDefault(req.Sector, registry.ForestLandSector),
		SubSector:           orDefault(req.SubSector, registry.ForestLandSubSector),
		Category:            orDefault(req.Category, registry.ForestLandCategory),
		CalculationApproach: orDefault(req.CalculationApproach, registry.ForestLandCalculationApproach),
		ForestData:          rows,
		Remark:              strings.TrimSpace(req.Remark),
		Status:              registry.InventoryPending,
		UpdatedBy:           sess.User.ID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventInventorySaved, map[string]any{
		"menu_id":         saved.MenuID,
		"inventory_year":  saved.InventoryYear,
		"rows":            len(saved.ForestData),
		"total_emissions": saved.TotalEmissions(),
	})
	writeJSON(w, code, saved)
}

func (a *API) updateForestLandStatus(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req inventoryStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	rec, err := a.store.GetInventoryRecord(r.Context(), registry.MenuForestLand, year)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !authorize(w, r, ability.ActionUpdate, &rec, registry.FieldStatus) {
		return
	}

	upd := registry.InventoryStatusUpdate{
		Status:          req.Status,
		ApproverComment: strings.TrimSpace(req.ApproverComment),
	}
	if req.Status != registry.InventoryPending {
		upd.ApprovedBy = sess.User.ID
	}
	updated, err := a.store.UpdateInventoryStatus(r.Context(), registry.MenuForestLand, year, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventInventoryReviewed, map[string]any{
		"menu_id":        updated.MenuID,
		"inventory_year": updated.InventoryYear,
		"status":         string(updated.Status),
	})
	writeJSON(w, http.StatusOK, updated)
}
