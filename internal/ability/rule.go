package ability

import (
	"slices"

	"ghginventory.org/internal/registry"
)

// Condition restricts a rule to the instances it returns true for.
type Condition func(registry.Entity) bool

// Rule is a single allow (or, when Inverted, deny) statement.
type Rule struct {
	Inverted  bool
	Actions   []Action
	Subject   registry.SubjectType
	Fields    []string
	Condition Condition
	// Where describes Condition for humans and for the rule snapshot sent to clients.
	Where  string
	Reason string
}

func (r *Rule) matchesAction(action Action) bool {
	for _, a := range r.Actions {
		if a == action || a == ActionManage {
			return true
		}
	}
	return false
}

func (r *Rule) matchesSubject(subject registry.SubjectType) bool {
	return r.Subject == registry.SubjectAll || r.Subject == subject
}

func (r *Rule) matchesField(field string) bool {
	if len(r.Fields) == 0 {
		return true
	}
	if field == "" {
		return !r.Inverted
	}
	return slices.Contains(r.Fields, field)
}

func (r *Rule) matchesConditions(subject registry.Entity) bool {
	if r.Condition == nil {
		return true
	}
	if registry.IsType(subject) {
		return !r.Inverted
	}
	return r.Condition(subject)
}

// Builder accumulates rules in the order they are declared. Order matters: a
// later rule overrides an earlier one for the queries both match.
type Builder struct {
	rules []*Rule
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Can appends an allow rule.
func (b *Builder) Can(subject registry.SubjectType, actions ...Action) *Rule {
	return b.add(false, subject, actions)
}

// Cannot appends a deny rule.
func (b *Builder) Cannot(subject registry.SubjectType, actions ...Action) *Rule {
	return b.add(true, subject, actions)
}

func (b *Builder) add(inverted bool, subject registry.SubjectType, actions []Action) *Rule {
	r := &Rule{
		Inverted: inverted,
		Actions:  slices.Clone(actions),
		Subject:  subject,
	}
	b.rules = append(b.rules, r)
	return r
}

// OnFields restricts the rule to the given fields.
func (r *Rule) OnFields(fields ...string) *Rule {
	r.Fields = append(r.Fields, fields...)
	return r
}

// When attaches a condition and its description.
func (r *Rule) When(where string, cond Condition) *Rule {
	r.Where = where
	r.Condition = cond
	return r
}

// Because sets the reason reported when the rule denies a query.
func (r *Rule) Because(reason string) *Rule {
	r.Reason = reason
	return r
}

// Rules returns the accumulated rules in declaration order.
func (b *Builder) Rules() []Rule {
	out := make([]Rule, len(b.rules))
	for i, r := range b.rules {
		out[i] = *r
	}
	return out
}
