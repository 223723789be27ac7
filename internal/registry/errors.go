package registry

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("registry: not found")
	ErrConflict     = errors.New("registry: resource conflict")
	ErrInvalidInput = errors.New("registry: invalid input")
)

// CreditShortfallError rejects a transfer larger than the credits a programme
// still has uncommitted.
type CreditShortfallError struct {
	ProgrammeID string
	Requested   int64
	Available   int64
}

func (e *CreditShortfallError) Error() string {
	return fmt.Sprintf("registry: programme %s has %d credits available, %d requested", e.ProgrammeID, e.Available, e.Requested)
}

func (e *CreditShortfallError) Unwrap() error { return ErrInvalidInput }
