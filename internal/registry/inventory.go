package registry

import (
	"fmt"
	"time"
)

// InventoryStatus is the review state of an inventory record.
type InventoryStatus string

const (
	InventoryPending  InventoryStatus = "Pending"
	InventoryApproved InventoryStatus = "Approved"
	InventoryRejected InventoryStatus = "Rejected"
)

// Valid reports whether s is a known status.
func (s InventoryStatus) Valid() bool {
	switch s {
	case InventoryPending, InventoryApproved, InventoryRejected:
		return true
	}
	return false
}

// MenuForestLand keys the forest land worksheet of the AFOLU sector.
const MenuForestLand = "GHG_AFOLU_Land_ForestLand"

// Worksheet defaults applied when a save leaves them blank.
const (
	ForestLandSector              = "3-Agriculture, Forestry, and Other Land Use"
	ForestLandSubSector           = "3.C.6-Indirect N2O emissions from manure management"
	ForestLandCategory            = "3.C-Aggregate sources and non-CO2 emissions sources on land"
	ForestLandCalculationApproach = "Tier I"
)

// ForestLandCategories are the IPCC land-use transitions a forest land
// worksheet starts with. Records may carry extra rows.
var ForestLandCategories = []string{
	"Forest land Remaining Forest land",
	"Cropland converted to Forest Land",
	"Grassland converted to Forest Land",
	"Wetlands converted to Forest Land",
	"Settlements converted to Forest Land",
	"Other Land converted to Forest Land",
}

// ForestLandEntry is one row of the forest land worksheet. Emissions are in
// tCO2 and go negative for net removals.
type ForestLandEntry struct {
	ForestCategory string  `json:"forestCategory"`
	Area           float64 `json:"area"`
	GHGEmissions   float64 `json:"ghgEmissions"`
	Reference      string  `json:"reference"`
}

// InventoryRecord is the worksheet of one menu for one inventory year.
type InventoryRecord struct {
	ID                  int64             `json:"id"`
	MenuID              string            `json:"menuId"`
	InventoryYear       int               `json:"inventoryYear"`
	Sector              string            `json:"sector"`
	SubSector           string            `json:"subSector"`
	Category            string            `json:"category"`
	CalculationApproach string            `json:"calculationApproach"`
	ForestData          []ForestLandEntry `json:"forestData"`
	Remark              string            `json:"remark,omitempty"`
	Status              InventoryStatus   `json:"status"`
	UpdatedBy           int64             `json:"updatedBy"`
	ApprovedBy          int64             `json:"approvedBy,omitempty"`
	ApproverComment     string            `json:"approverComment,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// TotalEmissions sums the rows of the worksheet.
func (r *InventoryRecord) TotalEmissions() float64 {
	var total float64
	for _, e := range r.ForestData {
		total += e.GHGEmissions
	}
	return total
}

// InventoryStatusUpdate records a review decision.
type InventoryStatusUpdate struct {
	Status          InventoryStatus
	ApprovedBy      int64
	ApproverComment string
}

// CheckForestData rejects blank or repeated categories.
func CheckForestData(rows []ForestLandEntry) error {
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		if row.ForestCategory == "" {
			return fmt.Errorf("%w: forestData[%d] has no forestCategory", ErrInvalidInput, i)
		}
		if seen[row.ForestCategory] {
			return fmt.Errorf("%w: forestCategory %q appears twice", ErrInvalidInput, row.ForestCategory)
		}
		seen[row.ForestCategory] = true
	}
	return nil
}

func cloneInventoryRecord(r InventoryRecord) InventoryRecord {
	r.ForestData = append([]ForestLandEntry(nil), r.ForestData...)
	return r
}
