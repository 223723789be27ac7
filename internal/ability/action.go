package ability

import (
	"fmt"
	"strings"

	"ghginventory.org/internal/registry"
)

// Action is what a user attempts to do with a subject.
type Action string

const (
	// ActionManage on a rule stands for every action.
	ActionManage Action = "manage"
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction resolves a wire name, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionManage, ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", registry.ErrInvalidInput, s)
}
