package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/registry"
)

func TestRulesSnapshot(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/v1/abilities", nil, api.tokenFor("root"))
	expectStatus(t, resp, http.StatusOK)
	body := decode[struct {
		Rules []ruleView `json:"rules"`
	}](t, resp)
	if len(body.Rules) == 0 {
		t.Fatal("expected rules")
	}
	first := body.Rules[0]
	if first.Inverted || first.Subject != "all" || len(first.Action) != 1 || first.Action[0] != "manage" {
		t.Fatalf("unexpected first rule: %+v", first)
	}
	var sawCondition bool
	for _, r := range body.Rules {
		if r.Where != "" {
			sawCondition = true
		}
	}
	if !sawCondition {
		t.Fatal("expected condition descriptions in snapshot")
	}
}

func TestAbilityCheck(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("gov-admin")
	own := api.fx.companies["gov"].CompanyID
	foreign := api.fx.companies["dev"].CompanyID

	cases := []struct {
		name    string
		body    map[string]any
		allowed bool
		reason  string
	}{
		{"own company", map[string]any{"action": "update", "subject": "Company", "instance": map[string]any{"companyId": own}}, true, ""},
		{"foreign company", map[string]any{"action": "update", "subject": "Company", "instance": map[string]any{"companyId": foreign}}, false, ability.ReasonForeignCompany},
		{"company role field", map[string]any{"action": "update", "subject": "Company", "field": "companyRole", "instance": map[string]any{"companyId": own}}, false, ability.ReasonCompanyRoleFixed},
		{"type level", map[string]any{"action": "update", "subject": "Company"}, true, ""},
		{"manage all", map[string]any{"action": "manage", "subject": "all"}, false, ""},
	}
	for _, tc := range cases {
		resp := api.do(http.MethodPost, "/v1/abilities/check", tc.body, token)
		expectStatus(t, resp, http.StatusOK)
		got := decode[checkResponse](t, resp)
		if got.Allowed != tc.allowed || got.Reason != tc.reason {
			t.Fatalf("%s: expected allowed=%v reason=%q, got %+v", tc.name, tc.allowed, tc.reason, got)
		}
	}

	resp := api.do(http.MethodPost, "/v1/abilities/check", map[string]any{"action": "fly", "subject": "Company"}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/abilities/check", map[string]any{"action": "read", "subject": "Ledger"}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var evt sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if evt.name != "" {
				return evt
			}
		case strings.HasPrefix(line, "event: "):
			evt.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			evt.data = strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return evt
}

func TestAbilityStreamPushesOnSuspension(t *testing.T) {
	api := newTestAPI(t)
	dev := api.fx.companies["dev"].CompanyID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/abilities/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+api.tokenFor("dev-manager"))
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	first := readEvent(t, sc)
	if first.name != "rules" {
		t.Fatalf("expected initial rules event, got %q", first.name)
	}

	suspend := api.do(http.MethodPost, fmt.Sprintf("/v1/companies/%d/suspend", dev), nil, api.tokenFor("root"))
	expectStatus(t, suspend, http.StatusOK)
	suspend.Body.Close()

	next := readEvent(t, sc)
	if next.name != "rules" {
		t.Fatalf("expected rules event after suspension, got %q", next.name)
	}
	var payload rulesEvent
	if err := json.Unmarshal([]byte(next.data), &payload); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if payload.User.CompanyState != registry.CompanyStateSuspended {
		t.Fatalf("expected suspended state, got %+v", payload.User)
	}
	last := payload.Rules[len(payload.Rules)-1]
	if !last.Inverted || last.Subject != "all" || last.Reason != ability.ReasonSuspended {
		t.Fatalf("expected kill-switch rule last, got %+v", last)
	}
}

func TestAbilityStreamRevokesDeletedUser(t *testing.T) {
	api := newTestAPI(t)
	viewer := api.fx.users["gov-viewer"].ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/abilities/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+api.tokenFor("gov-viewer"))
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if first := readEvent(t, sc); first.name != "rules" {
		t.Fatalf("expected initial rules event, got %q", first.name)
	}

	del := api.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d", viewer), nil, api.tokenFor("gov-admin"))
	expectStatus(t, del, http.StatusNoContent)
	del.Body.Close()

	next := readEvent(t, sc)
	if next.name != "revoked" {
		t.Fatalf("expected revoked event, got %q", next.name)
	}
	var payload struct {
		UserID int64      `json:"userId"`
		Rules  []ruleView `json:"rules"`
	}
	if err := json.Unmarshal([]byte(next.data), &payload); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if payload.UserID != viewer || len(payload.Rules) != 0 {
		t.Fatalf("revoked session should carry no rules: %+v", payload)
	}
}
