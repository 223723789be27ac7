package ability

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"ghginventory.org/internal/registry"
)

// ErrForbidden is matched by every *ForbiddenError.
var ErrForbidden = errors.New("ability: forbidden")

// ForbiddenError reports a denied query.
type ForbiddenError struct {
	Action  Action
	Subject registry.SubjectType
	Field   string
	Reason  string
}

func (e *ForbiddenError) Error() string {
	msg := fmt.Sprintf("cannot %s %s", e.Action, e.Subject)
	if e.Field != "" {
		msg += "." + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// Decision is reported to the observer for every evaluated query.
type Decision struct {
	Action  Action
	Subject registry.SubjectType
	Field   string
	Allowed bool
	Rule    *Rule
}

// Option configures an Ability.
type Option func(*Ability)

// WithObserver registers a callback invoked after every decision.
func WithObserver(fn func(Decision)) Option {
	return func(a *Ability) {
		a.observe = fn
	}
}

// Ability answers authorization queries over an immutable rule list.
type Ability struct {
	rules   []Rule
	observe func(Decision)
}

// New builds an ability over rules. The slice is copied.
func New(rules []Rule, opts ...Option) *Ability {
	a := &Ability{rules: slices.Clone(rules)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ForUser compiles the policy for user.
func ForUser(user *registry.User, opts ...Option) *Ability {
	return New(BuildRules(user), opts...)
}

// Rules returns a copy of the rule list in evaluation order.
func (a *Ability) Rules() []Rule {
	if a == nil {
		return nil
	}
	return slices.Clone(a.rules)
}

// RelevantRule returns the rule deciding the query, if any.
func (a *Ability) RelevantRule(action Action, subject registry.Entity, field string) (*Rule, bool) {
	if a == nil || subject == nil {
		return nil, false
	}
	st := subject.SubjectType()
	for i := len(a.rules) - 1; i >= 0; i-- {
		r := &a.rules[i]
		if !r.matchesAction(action) || !r.matchesSubject(st) {
			continue
		}
		if !r.matchesField(field) || !r.matchesConditions(subject) {
			continue
		}
		return r, true
	}
	return nil, false
}

// Can reports whether action is permitted on subject. With several fields every
// field must be permitted.
func (a *Ability) Can(action Action, subject registry.Entity, fields ...string) bool {
	if len(fields) == 0 {
		return a.decide(action, subject, "")
	}
	for _, f := range fields {
		if !a.decide(action, subject, f) {
			return false
		}
	}
	return true
}

// Cannot is the negation of Can.
func (a *Ability) Cannot(action Action, subject registry.Entity, fields ...string) bool {
	return !a.Can(action, subject, fields...)
}

// Authorize returns a *ForbiddenError naming the first denied field, or nil.
func (a *Ability) Authorize(action Action, subject registry.Entity, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{""}
	}
	for _, f := range fields {
		if a.decide(action, subject, f) {
			continue
		}
		fe := &ForbiddenError{Action: action, Field: f}
		if subject != nil {
			fe.Subject = subject.SubjectType()
		}
		if r, ok := a.RelevantRule(action, subject, f); ok {
			fe.Reason = r.Reason
		}
		return fe
	}
	return nil
}

func (a *Ability) decide(action Action, subject registry.Entity, field string) bool {
	r, ok := a.RelevantRule(action, subject, field)
	allowed := ok && !r.Inverted
	if a != nil && a.observe != nil {
		d := Decision{Action: action, Field: field, Allowed: allowed, Rule: r}
		if subject != nil {
			d.Subject = subject.SubjectType()
		}
		a.observe(d)
	}
	return allowed
}

// Holder publishes the active ability of a session. Readers never observe a
// partially built rule list.
type Holder struct {
	current atomic.Pointer[Ability]
	opts    []Option
}

// NewHolder returns a holder whose abilities are built with opts.
func NewHolder(opts ...Option) *Holder {
	return &Holder{opts: opts}
}

// Load returns the active ability; it denies everything until Update is called.
func (h *Holder) Load() *Ability {
	if a := h.current.Load(); a != nil {
		return a
	}
	return New(nil, h.opts...)
}

// Update rebuilds the ability for user and swaps it in.
func (h *Holder) Update(user *registry.User) *Ability {
	a := ForUser(user, h.opts...)
	h.current.Store(a)
	return a
}

// Reset drops the active ability, e.g. on logout.
func (h *Holder) Reset() {
	h.current.Store(nil)
}
