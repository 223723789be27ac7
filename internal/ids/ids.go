package ids

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a lexicographically sortable identifier used for programme,
// transfer and request ids.
func New() string {
	return ulid.Make().String()
}

// Time returns the creation time encoded in an identifier produced by New.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	return ulid.Time(u.Time()).UTC(), nil
}
