package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/registry"
)

func TestCompanyUpdateOwnVsForeign(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("gov-admin")
	own := api.fx.companies["gov"].CompanyID
	foreign := api.fx.companies["dev"].CompanyID

	resp := api.do(http.MethodPatch, fmt.Sprintf("/v1/companies/%d", own), map[string]any{"name": "Climate Office"}, token)
	expectStatus(t, resp, http.StatusOK)
	updated := decode[registry.Company](t, resp)
	if updated.Name != "Climate Office" {
		t.Fatalf("name not updated: %+v", updated)
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/companies/%d", foreign), map[string]any{"name": "Taken"}, token)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["error"] != "forbidden" || body["reason"] != ability.ReasonForeignCompany {
		t.Fatalf("unexpected forbidden body: %v", body)
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/companies/%d", own), map[string]any{"companyRole": "MRV"}, token)
	expectStatus(t, resp, http.StatusForbidden)
	body = decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonCompanyRoleFixed {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}
}

func TestValidationIsDistinctFromForbidden(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("gov-admin")
	own := api.fx.companies["gov"].CompanyID

	resp := api.do(http.MethodPatch, fmt.Sprintf("/v1/companies/%d", own), map[string]any{"email": "nope"}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	body := decode[map[string]any](t, resp)
	if body["error"] != "validation_failed" {
		t.Fatalf("unexpected error: %v", body)
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/companies/%d", own), map[string]any{}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.do(http.MethodPatch, "/v1/companies/abc", map[string]any{"name": "x"}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.do(http.MethodPatch, "/v1/companies/999", map[string]any{"name": "x"}, token)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestUserPatchChecksEachField(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("gov-admin")
	self := api.fx.users["gov-admin"].ID
	viewer := api.fx.users["gov-viewer"].ID

	resp := api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", self), map[string]any{"role": "Root"}, token)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonProtectedField {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", self), map[string]any{"name": "Renamed"}, token)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", viewer), map[string]any{"role": "Manager"}, token)
	expectStatus(t, resp, http.StatusOK)
	promoted := decode[registry.User](t, resp)
	if promoted.Role != registry.RoleManager {
		t.Fatalf("role not updated: %+v", promoted)
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", viewer), map[string]any{"companyRole": "MRV"}, token)
	expectStatus(t, resp, http.StatusForbidden)
	body = decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonCompanyRoleFixed {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", viewer), map[string]any{"name": "ok", "role": "Emperor"}, token)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestRegularUserEditsOnlyOwnName(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("dev-manager")
	self := api.fx.users["dev-manager"].ID
	peer := api.fx.users["dev-admin"].ID

	resp := api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", self), map[string]any{"name": "Dev Lead"}, token)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", self), map[string]any{"email": "new@example.org"}, token)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", peer), map[string]any{"name": "Hijack"}, token)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonOtherUser {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}

	resp = api.do(http.MethodPost, "/v1/users", map[string]any{
		"name":      "New",
		"email":     "new@example.org",
		"role":      "ViewOnly",
		"companyId": api.fx.companies["dev"].CompanyID,
		"password":  "long-enough-password",
	}, token)
	expectStatus(t, resp, http.StatusForbidden)
	body = decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonNotAdmin {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}
}

func TestAdminCreatesAndDeletesUser(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("gov-admin")

	resp := api.do(http.MethodPost, "/v1/users", map[string]any{
		"name":      "Analyst",
		"email":     "analyst@example.org",
		"role":      "ViewOnly",
		"companyId": api.fx.companies["gov"].CompanyID,
		"password":  "long-enough-password",
	}, token)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[registry.User](t, resp)
	if created.ID == 0 || created.CompanyRole != registry.CompanyRoleGovernment {
		t.Fatalf("unexpected user: %+v", created)
	}

	resp = api.do(http.MethodPost, "/v1/users", map[string]any{
		"name":      "Duplicate",
		"email":     "analyst@example.org",
		"role":      "ViewOnly",
		"companyId": api.fx.companies["gov"].CompanyID,
		"password":  "long-enough-password",
	}, token)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d", created.ID), nil, token)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = api.do(http.MethodGet, fmt.Sprintf("/v1/users/%d", created.ID), nil, token)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestSuspendedCompanyKillSwitch(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("paused-manager")
	self := api.fx.users["paused-manager"].ID

	resp := api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", self), map[string]any{"name": "Still here"}, token)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonSuspended {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}

	resp = api.do(http.MethodGet, "/v1/programmes", nil, token)
	expectStatus(t, resp, http.StatusOK)
	list := decode[struct {
		Items []registry.Programme `json:"items"`
	}](t, resp)
	if len(list.Items) != 0 {
		t.Fatalf("suspended user should see no programmes, got %d", len(list.Items))
	}
}

func TestSuspensionTakesEffectImmediately(t *testing.T) {
	api := newTestAPI(t)
	rootToken := api.tokenFor("root")
	devToken := api.tokenFor("dev-manager")
	dev := api.fx.companies["dev"].CompanyID
	self := api.fx.users["dev-manager"].ID

	resp := api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", self), map[string]any{"name": "Before"}, devToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.do(http.MethodPost, fmt.Sprintf("/v1/companies/%d/suspend", dev), nil, rootToken)
	expectStatus(t, resp, http.StatusOK)
	company := decode[registry.Company](t, resp)
	if company.State != registry.CompanyStateSuspended {
		t.Fatalf("company not suspended: %+v", company)
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", self), map[string]any{"name": "After"}, devToken)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.do(http.MethodPost, fmt.Sprintf("/v1/companies/%d/activate", dev), nil, rootToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", self), map[string]any{"name": "Again"}, devToken)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestGovernmentCompanyCannotBeSuspended(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("root")
	gov := api.fx.companies["gov"].CompanyID

	resp := api.do(http.MethodPost, fmt.Sprintf("/v1/companies/%d/suspend", gov), nil, token)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonGovernment {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}
}

func TestDeleteCompanyWithMembersConflicts(t *testing.T) {
	api := newTestAPI(t)
	token := api.tokenFor("gov-admin")

	resp := api.do(http.MethodDelete, fmt.Sprintf("/v1/companies/%d", api.fx.companies["paused"].CompanyID), nil, token)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
}

func TestCompanyCreateByRole(t *testing.T) {
	api := newTestAPI(t)
	payload := map[string]any{"name": "New MRV", "email": "mrv@company.example", "companyRole": "MRV"}

	resp := api.do(http.MethodPost, "/v1/companies", payload, api.tokenFor("gov-admin"))
	expectStatus(t, resp, http.StatusCreated)
	created := decode[registry.Company](t, resp)
	if created.State != registry.CompanyStateActive {
		t.Fatalf("new company should be active: %+v", created)
	}

	payload["email"] = "mrv2@company.example"
	resp = api.do(http.MethodPost, "/v1/companies", payload, api.tokenFor("dev-admin"))
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonCreateCompany {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}
}

func newUserPayload(email, role string, companyID int64) map[string]any {
	return map[string]any{
		"name":      "New",
		"email":     email,
		"role":      role,
		"companyId": companyID,
		"password":  "long-enough-password",
	}
}

func TestOnlyRootCreatesRootUsers(t *testing.T) {
	api := newTestAPI(t)
	gov := api.fx.companies["gov"].CompanyID
	dev := api.fx.companies["dev"].CompanyID

	for _, tc := range []struct {
		caller  string
		company int64
	}{
		{"dev-admin", gov},
		{"dev-admin", dev},
		{"gov-admin", gov},
	} {
		resp := api.do(http.MethodPost, "/v1/users", newUserPayload("root-"+tc.caller+"@example.org", "Root", tc.company), api.tokenFor(tc.caller))
		expectStatus(t, resp, http.StatusForbidden)
		body := decode[map[string]any](t, resp)
		if body["reason"] != ability.ReasonRootRole {
			t.Fatalf("%s into %d: unexpected reason: %v", tc.caller, tc.company, body["reason"])
		}
	}

	resp := api.do(http.MethodPost, "/v1/users", newUserPayload("second-root@example.org", "Root", dev), api.tokenFor("root"))
	expectStatus(t, resp, http.StatusCreated)
	created := decode[registry.User](t, resp)
	if created.Role != registry.RoleRoot || created.CompanyID != dev {
		t.Fatalf("unexpected user: %+v", created)
	}
}

func TestAdminCannotPromoteToRoot(t *testing.T) {
	api := newTestAPI(t)
	viewer := api.fx.users["gov-viewer"].ID
	manager := api.fx.users["dev-manager"].ID

	resp := api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", viewer), map[string]any{"role": "Root"}, api.tokenFor("gov-admin"))
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonRootRole {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", manager), map[string]any{"role": "Root"}, api.tokenFor("dev-admin"))
	expectStatus(t, resp, http.StatusForbidden)
	body = decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonRootRole {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}

	stored, err := api.fx.store.GetUser(context.Background(), viewer)
	if err != nil || stored.Role != registry.RoleViewOnly {
		t.Fatalf("role changed: %+v, %v", stored, err)
	}

	resp = api.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", viewer), map[string]any{"role": "Root"}, api.tokenFor("root"))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestCrossCompanyCreateNeedsGovernmentAdmin(t *testing.T) {
	api := newTestAPI(t)
	gov := api.fx.companies["gov"].CompanyID
	dev := api.fx.companies["dev"].CompanyID
	cert := api.fx.companies["cert"].CompanyID

	resp := api.do(http.MethodPost, "/v1/users", newUserPayload("planted@example.org", "Admin", gov), api.tokenFor("dev-admin"))
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["reason"] != ability.ReasonForeignUser {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}

	resp = api.do(http.MethodPost, "/v1/users", newUserPayload("planted@example.org", "ViewOnly", dev), api.tokenFor("cert-admin"))
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/users", newUserPayload("colleague@example.org", "Manager", dev), api.tokenFor("dev-admin"))
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/users", newUserPayload("onboarded@example.org", "Admin", cert), api.tokenFor("gov-admin"))
	expectStatus(t, resp, http.StatusCreated)
	created := decode[registry.User](t, resp)
	if created.CompanyID != cert || created.CompanyRole != registry.CompanyRoleCertifier {
		t.Fatalf("unexpected user: %+v", created)
	}
}
