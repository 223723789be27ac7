// Package ability decides what an authenticated user may do.
//
// A user's policy is compiled by BuildRules into an ordered list of allow and
// deny rules. An Ability evaluates a query (action, subject, optional field)
// against that list: the last rule matching the action, the subject type, the
// field and the rule's condition decides, and a query no rule matches is denied.
//
// Conditions are plain predicates over typed entities. Querying with a bare
// registry.SubjectType asks whether the action is possible on some instance of
// that type: conditional allow rules count, conditional deny rules do not.
// In the same way a deny rule restricted to fields only applies when the query
// names one of those fields.
package ability
