package registry

import (
	"errors"
	"testing"
)

func TestDecodeEntity(t *testing.T) {
	e, err := DecodeEntity(SubjectCompany, []byte(`{"companyId":7,"companyRole":"Certifier"}`))
	if err != nil {
		t.Fatalf("decode company: %v", err)
	}
	c, ok := e.(*Company)
	if !ok || c.CompanyID != 7 || c.CompanyRole != CompanyRoleCertifier {
		t.Fatalf("unexpected entity: %#v", e)
	}

	e, err = DecodeEntity(SubjectProgramme, nil)
	if err != nil {
		t.Fatalf("decode type: %v", err)
	}
	if !IsType(e) || e.SubjectType() != SubjectProgramme {
		t.Fatalf("expected type-level subject, got %#v", e)
	}

	e, err = DecodeEntity(SubjectUser, []byte(" null "))
	if err != nil || !IsType(e) {
		t.Fatalf("null instance should yield type subject: %#v, %v", e, err)
	}

	if _, err := DecodeEntity("Account", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown subject, got %v", err)
	}
	if _, err := DecodeEntity(SubjectUser, []byte(`{"id":"x"}`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for malformed instance, got %v", err)
	}
}

func TestDecodeInventoryRecord(t *testing.T) {
	e, err := DecodeEntity(SubjectInventoryRecord, []byte(`{"inventoryYear":2021,"status":"Approved"}`))
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	rec, ok := e.(*InventoryRecord)
	if !ok || rec.InventoryYear != 2021 || rec.Status != InventoryApproved {
		t.Fatalf("unexpected entity: %#v", e)
	}
}

func TestCheckForestData(t *testing.T) {
	rows := []ForestLandEntry{{ForestCategory: ForestLandCategories[0]}, {ForestCategory: ForestLandCategories[1]}}
	if err := CheckForestData(rows); err != nil {
		t.Fatalf("distinct rows rejected: %v", err)
	}
	rows = append(rows, ForestLandEntry{ForestCategory: ForestLandCategories[0]})
	if err := CheckForestData(rows); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for repeated category, got %v", err)
	}
	if err := CheckForestData([]ForestLandEntry{{Area: 3}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank category, got %v", err)
	}
}
