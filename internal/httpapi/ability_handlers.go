package httpapi

import (
	"encoding/json"
	"net/http"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/registry"
)

// ruleView is the wire form of a rule. Conditions travel as their description
// only; clients use the snapshot for advisory checks.
type ruleView struct {
	Inverted bool     `json:"inverted,omitempty"`
	Action   []string `json:"action"`
	Subject  string   `json:"subject"`
	Fields   []string `json:"fields,omitempty"`
	Where    string   `json:"conditions,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

func rulesView(ab *ability.Ability) []ruleView {
	rules := ab.Rules()
	out := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		actions := make([]string, len(rule.Actions))
		for i, act := range rule.Actions {
			actions[i] = string(act)
		}
		out = append(out, ruleView{
			Inverted: rule.Inverted,
			Action:   actions,
			Subject:  string(rule.Subject),
			Fields:   rule.Fields,
			Where:    rule.Where,
			Reason:   rule.Reason,
		})
	}
	return out
}

type checkRequest struct {
	Action   string          `json:"action" validate:"required"`
	Subject  string          `json:"subject" validate:"required"`
	Field    string          `json:"field,omitempty"`
	Instance json.RawMessage `json:"instance,omitempty"`
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func (a *API) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rulesView(auth.AbilityFromContext(r.Context())),
	})
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	resp, err := check(auth.AbilityFromContext(r.Context()), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// check answers a query without enforcing it.
func check(ab *ability.Ability, req checkRequest) (checkResponse, error) {
	action, err := ability.ParseAction(req.Action)
	if err != nil {
		return checkResponse{}, err
	}
	st, err := registry.ParseSubjectType(req.Subject)
	if err != nil {
		return checkResponse{}, err
	}
	subject, err := registry.DecodeEntity(st, req.Instance)
	if err != nil {
		return checkResponse{}, err
	}
	var fields []string
	if req.Field != "" {
		fields = append(fields, req.Field)
	}
	if ab.Can(action, subject, fields...) {
		return checkResponse{Allowed: true}, nil
	}
	resp := checkResponse{}
	if rule, ok := ab.RelevantRule(action, subject, req.Field); ok {
		resp.Reason = rule.Reason
	}
	return resp, nil
}
