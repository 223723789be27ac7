package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ghginventory.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu          sync.RWMutex
	users       map[int64]*User
	companies   map[int64]*Company
	programmes  map[string]*Programme
	transfers   []ProgrammeTransfer
	certs       []ProgrammeCertify
	inventory   map[inventoryKey]*InventoryRecord
	nextUser    int64
	nextCompany int64
	nextRecord  int64
	now         func() time.Time
}

type inventoryKey struct {
	menu string
	year int
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty registry.
func NewInMemory() *InMemory {
	return &InMemory{
		users:      make(map[int64]*User),
		companies:  make(map[int64]*Company),
		programmes: make(map[string]*Programme),
		inventory:  make(map[inventoryKey]*InventoryRecord),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return User{}, ErrConflict
		}
	}
	if _, ok := s.companies[u.CompanyID]; !ok {
		return User{}, ErrNotFound
	}
	s.nextUser++
	u.ID = s.nextUser
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	stored := u
	s.users[u.ID] = &stored
	return s.withCompany(stored), nil
}

func (s *InMemory) GetUser(ctx context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.withCompany(*u), nil
}

func (s *InMemory) FindUserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return s.withCompany(*u), nil
		}
	}
	return User{}, ErrNotFound
}

func (s *InMemory) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, s.withCompany(*u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		for _, other := range s.users {
			if other.ID != id && other.Email == email {
				return User{}, ErrConflict
			}
		}
		u.Email = email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.APIKey != nil {
		u.APIKey = *upd.APIKey
	}
	u.UpdatedAt = s.now()
	return s.withCompany(*u), nil
}

func (s *InMemory) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *InMemory) CreateCompany(ctx context.Context, c Company) (Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.companies {
		if strings.EqualFold(existing.Name, c.Name) {
			return Company{}, ErrConflict
		}
	}
	s.nextCompany++
	c.CompanyID = s.nextCompany
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	stored := c
	s.companies[c.CompanyID] = &stored
	return stored, nil
}

func (s *InMemory) GetCompany(ctx context.Context, id int64) (Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemory) ListCompanies(ctx context.Context) ([]Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID < out[j].CompanyID })
	return out, nil
}

func (s *InMemory) UpdateCompany(ctx context.Context, id int64, upd CompanyUpdate) (Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.CompanyRole != nil {
		c.CompanyRole = *upd.CompanyRole
	}
	if upd.State != nil {
		c.State = *upd.State
	}
	c.UpdatedAt = s.now()
	return *c, nil
}

func (s *InMemory) DeleteCompany(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[id]; !ok {
		return ErrNotFound
	}
	for _, u := range s.users {
		if u.CompanyID == id {
			return ErrConflict
		}
	}
	delete(s.companies, id)
	return nil
}

func (s *InMemory) CreateProgramme(ctx context.Context, p Programme) (Programme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ProgrammeID == "" {
		p.ProgrammeID = ids.New()
	}
	if _, ok := s.programmes[p.ProgrammeID]; ok {
		return Programme{}, ErrConflict
	}
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	stored := cloneProgramme(p)
	s.programmes[p.ProgrammeID] = &stored
	return cloneProgramme(stored), nil
}

func (s *InMemory) GetProgramme(ctx context.Context, id string) (Programme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programmes[id]
	if !ok {
		return Programme{}, ErrNotFound
	}
	return cloneProgramme(*p), nil
}

func (s *InMemory) ListProgrammes(ctx context.Context) ([]Programme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Programme, 0, len(s.programmes))
	for _, p := range s.programmes {
		out = append(out, cloneProgramme(*p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProgrammeID < out[j].ProgrammeID })
	return out, nil
}

func (s *InMemory) SaveProgramme(ctx context.Context, p Programme) (Programme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.programmes[p.ProgrammeID]
	if !ok {
		return Programme{}, ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	stored := cloneProgramme(p)
	s.programmes[p.ProgrammeID] = &stored
	return cloneProgramme(stored), nil
}

func (s *InMemory) CreateTransfer(ctx context.Context, t ProgrammeTransfer) (ProgrammeTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programmes[t.ProgrammeID]
	if !ok {
		return ProgrammeTransfer{}, ErrNotFound
	}
	if t.Status == "" {
		t.Status = TransferPending
	}
	if t.Committed() {
		var committed int64
		for i := range s.transfers {
			if s.transfers[i].ProgrammeID == t.ProgrammeID && s.transfers[i].Committed() {
				committed += s.transfers[i].Credits
			}
		}
		if available := p.AvailableCredits(committed); t.Credits > available {
			return ProgrammeTransfer{}, &CreditShortfallError{ProgrammeID: t.ProgrammeID, Requested: t.Credits, Available: available}
		}
	}
	t.RequestID = ids.New()
	t.CreatedAt = s.now()
	s.transfers = append(s.transfers, t)
	return t, nil
}

func (s *InMemory) ListTransfers(ctx context.Context, programmeID string) ([]ProgrammeTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ProgrammeTransfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		if programmeID == "" || t.ProgrammeID == programmeID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *InMemory) CreateCertification(ctx context.Context, c ProgrammeCertify) (ProgrammeCertify, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.programmes[c.ProgrammeID]; !ok {
		return ProgrammeCertify{}, ErrNotFound
	}
	c.CreatedAt = s.now()
	s.certs = append(s.certs, c)
	return c, nil
}

func (s *InMemory) InventoryYears(ctx context.Context, menuID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	years := make([]int, 0, len(s.inventory))
	for key := range s.inventory {
		if key.menu == menuID {
			years = append(years, key.year)
		}
	}
	sort.Ints(years)
	return years, nil
}

func (s *InMemory) GetInventoryRecord(ctx context.Context, menuID string, year int) (InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.inventory[inventoryKey{menuID, year}]
	if !ok {
		return InventoryRecord{}, ErrNotFound
	}
	return cloneInventoryRecord(*r), nil
}

func (s *InMemory) SaveInventoryRecord(ctx context.Context, r InventoryRecord) (InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inventoryKey{r.MenuID, r.InventoryYear}
	now := s.now()
	if existing, ok := s.inventory[key]; ok {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	} else {
		s.nextRecord++
		r.ID = s.nextRecord
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	stored := cloneInventoryRecord(r)
	s.inventory[key] = &stored
	return cloneInventoryRecord(stored), nil
}

func (s *InMemory) UpdateInventoryStatus(ctx context.Context, menuID string, year int, upd InventoryStatusUpdate) (InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.inventory[inventoryKey{menuID, year}]
	if !ok {
		return InventoryRecord{}, ErrNotFound
	}
	r.Status = upd.Status
	r.ApprovedBy = upd.ApprovedBy
	r.ApproverComment = upd.ApproverComment
	r.UpdatedAt = s.now()
	return cloneInventoryRecord(*r), nil
}

// withCompany fills the company-derived attributes of a user. Caller holds the lock.
func (s *InMemory) withCompany(u User) User {
	if c, ok := s.companies[u.CompanyID]; ok {
		u.CompanyRole = c.CompanyRole
		u.CompanyState = c.State
	}
	return u
}

func cloneProgramme(p Programme) Programme {
	p.CompanyID = append([]int64(nil), p.CompanyID...)
	p.CertifierID = append([]int64(nil), p.CertifierID...)
	return p
}
