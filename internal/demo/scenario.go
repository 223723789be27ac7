// Package demo holds a sample registry population used for local runs and
// load generation.
package demo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/registry"
)

type Company struct {
	Name        string
	Email       string
	CompanyRole registry.CompanyRole
}

type User struct {
	Email   string
	Name    string
	Role    registry.Role
	Company string
}

type Programme struct {
	ID           string
	Title        string
	Sector       string
	Stage        registry.ProgrammeStage
	Developers   []string
	Certifiers   []string
	CreditEst    int64
	CreditIssued int64
}

type Scenario struct {
	Name       string
	Companies  []Company
	Users      []User
	Programmes []Programme
}

// RegistryScenario covers every company role and a spread of user roles.
func RegistryScenario() Scenario {
	return Scenario{
		Name: "NationalRegistry",
		Companies: []Company{
			{Name: "Climate Change Secretariat", Email: "ccs@example.gov", CompanyRole: registry.CompanyRoleGovernment},
			{Name: "Ministry of Energy", Email: "energy@example.gov", CompanyRole: registry.CompanyRoleMinistry},
			{Name: "Sunfield Developers", Email: "ops@sunfield.example", CompanyRole: registry.CompanyRoleProgrammeDeveloper},
			{Name: "Riverbend Hydro", Email: "ops@riverbend.example", CompanyRole: registry.CompanyRoleProgrammeDeveloper},
			{Name: "Verity Certification", Email: "audit@verity.example", CompanyRole: registry.CompanyRoleCertifier},
			{Name: "Measure Labs", Email: "mrv@measure.example", CompanyRole: registry.CompanyRoleMRV},
		},
		Users: []User{
			{Email: "root@ccs.example.gov", Name: "Registry Root", Role: registry.RoleRoot, Company: "Climate Change Secretariat"},
			{Email: "admin@ccs.example.gov", Name: "Gov Admin", Role: registry.RoleAdmin, Company: "Climate Change Secretariat"},
			{Email: "viewer@ccs.example.gov", Name: "Gov Viewer", Role: registry.RoleViewOnly, Company: "Climate Change Secretariat"},
			{Email: "admin@energy.example.gov", Name: "Ministry Admin", Role: registry.RoleAdmin, Company: "Ministry of Energy"},
			{Email: "admin@sunfield.example", Name: "Sunfield Admin", Role: registry.RoleAdmin, Company: "Sunfield Developers"},
			{Email: "manager@sunfield.example", Name: "Sunfield Manager", Role: registry.RoleManager, Company: "Sunfield Developers"},
			{Email: "manager@riverbend.example", Name: "Riverbend Manager", Role: registry.RoleManager, Company: "Riverbend Hydro"},
			{Email: "admin@verity.example", Name: "Verity Admin", Role: registry.RoleAdmin, Company: "Verity Certification"},
			{Email: "admin@measure.example", Name: "Measure Admin", Role: registry.RoleAdmin, Company: "Measure Labs"},
		},
		Programmes: []Programme{
			{ID: "SUN-001", Title: "Sunfield Solar Park", Sector: "Energy", Stage: registry.StageAuthorised,
				Developers: []string{"Sunfield Developers"}, Certifiers: []string{"Verity Certification"},
				CreditEst: 120_000, CreditIssued: 40_000},
			{ID: "SUN-002", Title: "Sunfield Rooftops", Sector: "Energy", Stage: registry.StageAwaitingAuthorization,
				Developers: []string{"Sunfield Developers"}, CreditEst: 30_000},
			{ID: "RIV-001", Title: "Riverbend Run-of-River", Sector: "Energy", Stage: registry.StageAwaitingAuthorization,
				Developers: []string{"Riverbend Hydro"}, CreditEst: 75_000},
			{ID: "RIV-002", Title: "Riverbend Reforestation", Sector: "Forestry", Stage: registry.StageRejected,
				Developers: []string{"Riverbend Hydro"}, CreditEst: 10_000},
		},
	}
}

// Loaded maps scenario names to the records created for them.
type Loaded struct {
	Companies map[string]registry.Company
	Users     map[string]registry.User
}

// Load writes the scenario into store. Every user gets password. Users that
// already exist are left untouched, so loading twice is harmless.
func Load(ctx context.Context, store registry.Store, sc Scenario, password string) (Loaded, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Loaded{}, err
	}
	out := Loaded{
		Companies: make(map[string]registry.Company, len(sc.Companies)),
		Users:     make(map[string]registry.User, len(sc.Users)),
	}

	existing, err := store.ListCompanies(ctx)
	if err != nil {
		return Loaded{}, err
	}
	for _, c := range existing {
		out.Companies[c.Name] = c
	}
	for _, c := range sc.Companies {
		if _, ok := out.Companies[c.Name]; ok {
			continue
		}
		created, err := store.CreateCompany(ctx, registry.Company{
			Name:        c.Name,
			Email:       c.Email,
			CompanyRole: c.CompanyRole,
			State:       registry.CompanyStateActive,
		})
		if err != nil {
			return Loaded{}, fmt.Errorf("company %q: %w", c.Name, err)
		}
		out.Companies[c.Name] = created
	}

	for _, u := range sc.Users {
		company, ok := out.Companies[u.Company]
		if !ok {
			return Loaded{}, fmt.Errorf("user %q: unknown company %q", u.Email, u.Company)
		}
		found, err := store.FindUserByEmail(ctx, u.Email)
		switch {
		case err == nil:
			out.Users[u.Email] = found
			continue
		case !errors.Is(err, registry.ErrNotFound):
			return Loaded{}, err
		}
		created, err := store.CreateUser(ctx, registry.User{
			Name:         u.Name,
			Email:        u.Email,
			Role:         u.Role,
			CompanyID:    company.CompanyID,
			PasswordHash: hash,
		})
		if err != nil {
			return Loaded{}, fmt.Errorf("user %q: %w", u.Email, err)
		}
		out.Users[u.Email] = created
	}

	for _, p := range sc.Programmes {
		_, err := store.GetProgramme(ctx, p.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, registry.ErrNotFound) {
			return Loaded{}, err
		}
		prog := registry.Programme{
			ProgrammeID:  p.ID,
			Title:        p.Title,
			Sector:       p.Sector,
			CurrentStage: p.Stage,
			CreditEst:    p.CreditEst,
			CreditIssued: p.CreditIssued,
		}
		for _, name := range p.Developers {
			prog.CompanyID = append(prog.CompanyID, out.Companies[name].CompanyID)
		}
		for _, name := range p.Certifiers {
			prog.CertifierID = append(prog.CertifierID, out.Companies[name].CompanyID)
		}
		if _, err := store.CreateProgramme(ctx, prog); err != nil {
			return Loaded{}, fmt.Errorf("programme %q: %w", p.ID, err)
		}
	}
	return out, nil
}

// Request is one generated API call.
type Request struct {
	Email  string
	Method string
	Path   string
	Body   map[string]any
}

// Generator draws random requests made by scenario users.
type Generator struct {
	scenario Scenario
	rnd      *rand.Rand
}

func NewGenerator(sc Scenario, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{scenario: sc, rnd: rand.New(rand.NewSource(seed))}
}

var checkActions = []string{"create", "read", "update", "delete", "manage"}
var checkSubjects = []string{"User", "Company", "Programme", "ProgrammeTransfer", "ProgrammeCertify", "InventoryRecord", "all"}

// Next returns a request. Not safe for concurrent use.
func (g *Generator) Next() Request {
	users := g.scenario.Users
	if len(users) == 0 {
		panic("scenario requires users")
	}
	u := users[g.rnd.Intn(len(users))]
	switch g.rnd.Intn(4) {
	case 0:
		return Request{Email: u.Email, Method: "GET", Path: "/v1/programmes"}
	case 1:
		progs := g.scenario.Programmes
		if len(progs) > 0 {
			p := progs[g.rnd.Intn(len(progs))]
			return Request{Email: u.Email, Method: "GET", Path: "/v1/programmes/" + p.ID}
		}
		return Request{Email: u.Email, Method: "GET", Path: "/v1/programmes"}
	case 2:
		return Request{Email: u.Email, Method: "GET", Path: "/v1/auth/profile"}
	default:
		return Request{Email: u.Email, Method: "POST", Path: "/v1/abilities/check", Body: map[string]any{
			"action":  checkActions[g.rnd.Intn(len(checkActions))],
			"subject": checkSubjects[g.rnd.Intn(len(checkSubjects))],
		}}
	}
}

// Emails lists the scenario's user logins.
func (s Scenario) Emails() []string {
	out := make([]string, 0, len(s.Users))
	for _, u := range s.Users {
		out = append(out, u.Email)
	}
	return out
}
