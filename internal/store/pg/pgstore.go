package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ghginventory.org/internal/ids"
	"ghginventory.org/internal/registry"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// PoolConfig tunes the database/sql connection pool. Zero fields keep the
// driver defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store persists the registry in PostgreSQL through the pgx stdlib driver.
type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

// Open connects using dsn and applies pool tuning.
func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const userColumns = `
	u.id, u.name, u.email, u.role, u.company_id, c.company_role, c.state,
	u.api_key, u.password_hash, u.created_at, u.updated_at
	from users u
	join companies c on c.company_id = u.company_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (registry.User, error) {
	var u registry.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CompanyID, &u.CompanyRole, &u.CompanyState,
		&u.APIKey, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u registry.User) (registry.User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		insert into users (name, email, role, company_id, api_key, password_hash)
		values ($1, $2, $3, $4, $5, $6)
		returning id
	`, u.Name, normalizeEmail(u.Email), u.Role, u.CompanyID, u.APIKey, u.PasswordHash).Scan(&id)
	if err != nil {
		return registry.User{}, mapError(err)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id int64) (registry.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` where u.id = $1`, id))
	if err != nil {
		return registry.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (registry.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` where u.email = $1`, normalizeEmail(email)))
	if err != nil {
		return registry.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]registry.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` order by u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd registry.UserUpdate) (registry.User, error) {
	var set setBuilder
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.Email != nil {
		set.add("email", normalizeEmail(*upd.Email))
	}
	if upd.Role != nil {
		set.add("role", *upd.Role)
	}
	if upd.PasswordHash != nil {
		set.add("password_hash", *upd.PasswordHash)
	}
	if upd.APIKey != nil {
		set.add("api_key", *upd.APIKey)
	}
	if err := s.update(ctx, "users", "id", id, set); err != nil {
		return registry.User{}, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.delete(ctx, `delete from users where id = $1`, id)
}

const companyColumns = `company_id, name, email, company_role, state, created_at, updated_at from companies`

func scanCompany(row scanner) (registry.Company, error) {
	var c registry.Company
	err := row.Scan(&c.CompanyID, &c.Name, &c.Email, &c.CompanyRole, &c.State, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) CreateCompany(ctx context.Context, c registry.Company) (registry.Company, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into companies (name, email, company_role, state)
		values ($1, $2, $3, $4)
		returning company_id, created_at, updated_at
	`, c.Name, c.Email, c.CompanyRole, c.State).Scan(&c.CompanyID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return registry.Company{}, mapError(err)
	}
	return c, nil
}

func (s *Store) GetCompany(ctx context.Context, id int64) (registry.Company, error) {
	c, err := scanCompany(s.db.QueryRowContext(ctx, `select `+companyColumns+` where company_id = $1`, id))
	if err != nil {
		return registry.Company{}, mapError(err)
	}
	return c, nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]registry.Company, error) {
	rows, err := s.db.QueryContext(ctx, `select `+companyColumns+` order by company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateCompany(ctx context.Context, id int64, upd registry.CompanyUpdate) (registry.Company, error) {
	var set setBuilder
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.Email != nil {
		set.add("email", *upd.Email)
	}
	if upd.CompanyRole != nil {
		set.add("company_role", *upd.CompanyRole)
	}
	if upd.State != nil {
		set.add("state", *upd.State)
	}
	if err := s.update(ctx, "companies", "company_id", id, set); err != nil {
		return registry.Company{}, err
	}
	return s.GetCompany(ctx, id)
}

// DeleteCompany refuses to drop a company that still has members.
func (s *Store) DeleteCompany(ctx context.Context, id int64) error {
	err := s.delete(ctx, `delete from companies where company_id = $1`, id)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return registry.ErrConflict
	}
	return err
}

const programmeColumns = `
	programme_id, title, sector, current_stage, company_id, certifier_id,
	credit_est, credit_issued, credit_retired, created_at, updated_at
	from programmes`

// scanProgramme decodes bigint[] columns through m, which is not safe for
// concurrent use and so is created per query.
func scanProgramme(m *pgtype.Map, row scanner) (registry.Programme, error) {
	var p registry.Programme
	err := row.Scan(&p.ProgrammeID, &p.Title, &p.Sector, &p.CurrentStage,
		m.SQLScanner(&p.CompanyID), m.SQLScanner(&p.CertifierID),
		&p.CreditEst, &p.CreditIssued, &p.CreditRetired, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreateProgramme(ctx context.Context, p registry.Programme) (registry.Programme, error) {
	if p.ProgrammeID == "" {
		p.ProgrammeID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into programmes (programme_id, title, sector, current_stage, company_id, certifier_id,
			credit_est, credit_issued, credit_retired)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, p.ProgrammeID, p.Title, p.Sector, p.CurrentStage, int64s(p.CompanyID), int64s(p.CertifierID),
		p.CreditEst, p.CreditIssued, p.CreditRetired).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return registry.Programme{}, mapError(err)
	}
	return p, nil
}

func (s *Store) GetProgramme(ctx context.Context, id string) (registry.Programme, error) {
	p, err := scanProgramme(pgtype.NewMap(), s.db.QueryRowContext(ctx, `select `+programmeColumns+` where programme_id = $1`, id))
	if err != nil {
		return registry.Programme{}, mapError(err)
	}
	return p, nil
}

func (s *Store) ListProgrammes(ctx context.Context) ([]registry.Programme, error) {
	rows, err := s.db.QueryContext(ctx, `select `+programmeColumns+` order by programme_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := pgtype.NewMap()
	var result []registry.Programme
	for rows.Next() {
		p, err := scanProgramme(m, rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SaveProgramme(ctx context.Context, p registry.Programme) (registry.Programme, error) {
	err := s.db.QueryRowContext(ctx, `
		update programmes
		set title = $2, sector = $3, current_stage = $4, company_id = $5, certifier_id = $6,
			credit_est = $7, credit_issued = $8, credit_retired = $9, updated_at = now()
		where programme_id = $1
		returning created_at, updated_at
	`, p.ProgrammeID, p.Title, p.Sector, p.CurrentStage, int64s(p.CompanyID), int64s(p.CertifierID),
		p.CreditEst, p.CreditIssued, p.CreditRetired).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return registry.Programme{}, mapError(err)
	}
	return p, nil
}

// CreateTransfer locks the programme row so concurrent requests see each
// other's committed credits before checking the balance.
func (s *Store) CreateTransfer(ctx context.Context, t registry.ProgrammeTransfer) (registry.ProgrammeTransfer, error) {
	t.RequestID = ids.New()
	if t.Status == "" {
		t.Status = registry.TransferPending
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return registry.ProgrammeTransfer{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var p registry.Programme
	err = tx.QueryRowContext(ctx, `
		select credit_issued, credit_retired from programmes where programme_id = $1 for update
	`, t.ProgrammeID).Scan(&p.CreditIssued, &p.CreditRetired)
	if err != nil {
		return registry.ProgrammeTransfer{}, mapError(err)
	}
	if t.Committed() {
		var committed int64
		err = tx.QueryRowContext(ctx, `
			select coalesce(sum(credits), 0) from programme_transfers
			where programme_id = $1 and status in ($2, $3)
		`, t.ProgrammeID, registry.TransferPending, registry.TransferAccepted).Scan(&committed)
		if err != nil {
			return registry.ProgrammeTransfer{}, err
		}
		if available := p.AvailableCredits(committed); t.Credits > available {
			return registry.ProgrammeTransfer{}, &registry.CreditShortfallError{
				ProgrammeID: t.ProgrammeID,
				Requested:   t.Credits,
				Available:   available,
			}
		}
	}
	err = tx.QueryRowContext(ctx, `
		insert into programme_transfers (request_id, programme_id, initiator_id, from_company_id,
			to_company_id, credits, comment, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at
	`, t.RequestID, t.ProgrammeID, t.InitiatorID, t.FromCompanyID, t.ToCompanyID, t.Credits, t.Comment, t.Status).
		Scan(&t.CreatedAt)
	if err != nil {
		return registry.ProgrammeTransfer{}, mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return registry.ProgrammeTransfer{}, err
	}
	return t, nil
}

func (s *Store) ListTransfers(ctx context.Context, programmeID string) ([]registry.ProgrammeTransfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		select request_id, programme_id, initiator_id, from_company_id, to_company_id,
			credits, comment, status, created_at
		from programme_transfers
		where $1 = '' or programme_id = $1
		order by created_at, request_id
	`, programmeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.ProgrammeTransfer
	for rows.Next() {
		var t registry.ProgrammeTransfer
		if err := rows.Scan(&t.RequestID, &t.ProgrammeID, &t.InitiatorID, &t.FromCompanyID, &t.ToCompanyID,
			&t.Credits, &t.Comment, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateCertification(ctx context.Context, c registry.ProgrammeCertify) (registry.ProgrammeCertify, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into programme_certifications (programme_id, certifier_id, comment, revoke)
		values ($1, $2, $3, $4)
		returning created_at
	`, c.ProgrammeID, c.CertifierID, c.Comment, c.Revoke).Scan(&c.CreatedAt)
	if err != nil {
		return registry.ProgrammeCertify{}, mapError(err)
	}
	return c, nil
}

const (
	inventoryFields = `
	id, menu_id, inventory_year, sector, sub_sector, category, calculation_approach,
	forest_data, remark, status, updated_by, approved_by, approver_comment, created_at, updated_at`
	inventoryColumns = inventoryFields + `
	from inventory_records`
)

func scanInventoryRecord(row scanner) (registry.InventoryRecord, error) {
	var (
		r   registry.InventoryRecord
		raw []byte
	)
	err := row.Scan(&r.ID, &r.MenuID, &r.InventoryYear, &r.Sector, &r.SubSector, &r.Category,
		&r.CalculationApproach, &raw, &r.Remark, &r.Status, &r.UpdatedBy, &r.ApprovedBy,
		&r.ApproverComment, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return registry.InventoryRecord{}, err
	}
	if err := json.Unmarshal(raw, &r.ForestData); err != nil {
		return registry.InventoryRecord{}, fmt.Errorf("decode forest_data of record %d: %w", r.ID, err)
	}
	return r, nil
}

func (s *Store) InventoryYears(ctx context.Context, menuID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select inventory_year from inventory_records where menu_id = $1 order by inventory_year
	`, menuID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	years := []int{}
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return years, nil
}

func (s *Store) GetInventoryRecord(ctx context.Context, menuID string, year int) (registry.InventoryRecord, error) {
	r, err := scanInventoryRecord(s.db.QueryRowContext(ctx,
		`select `+inventoryColumns+` where menu_id = $1 and inventory_year = $2`, menuID, year))
	if err != nil {
		return registry.InventoryRecord{}, mapError(err)
	}
	return r, nil
}

func (s *Store) SaveInventoryRecord(ctx context.Context, r registry.InventoryRecord) (registry.InventoryRecord, error) {
	rows := r.ForestData
	if rows == nil {
		rows = []registry.ForestLandEntry{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return registry.InventoryRecord{}, err
	}
	err = s.db.QueryRowContext(ctx, `
		insert into inventory_records (menu_id, inventory_year, sector, sub_sector, category,
			calculation_approach, forest_data, remark, status, updated_by, approved_by, approver_comment)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		on conflict (menu_id, inventory_year) do update
		set sector = excluded.sector, sub_sector = excluded.sub_sector, category = excluded.category,
			calculation_approach = excluded.calculation_approach, forest_data = excluded.forest_data,
			remark = excluded.remark, status = excluded.status, updated_by = excluded.updated_by,
			approved_by = excluded.approved_by, approver_comment = excluded.approver_comment,
			updated_at = now()
		returning id, created_at, updated_at
	`, r.MenuID, r.InventoryYear, r.Sector, r.SubSector, r.Category, r.CalculationApproach, raw,
		r.Remark, r.Status, r.UpdatedBy, r.ApprovedBy, r.ApproverComment).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return registry.InventoryRecord{}, mapError(err)
	}
	r.ForestData = rows
	return r, nil
}

func (s *Store) UpdateInventoryStatus(ctx context.Context, menuID string, year int, upd registry.InventoryStatusUpdate) (registry.InventoryRecord, error) {
	r, err := scanInventoryRecord(s.db.QueryRowContext(ctx, `
		update inventory_records
		set status = $3, approved_by = $4, approver_comment = $5, updated_at = now()
		where menu_id = $1 and inventory_year = $2
		returning `+inventoryFields,
		menuID, year, upd.Status, upd.ApprovedBy, upd.ApproverComment))
	if err != nil {
		return registry.InventoryRecord{}, mapError(err)
	}
	return r, nil
}

type setBuilder struct {
	clauses []string
	args    []any
}

func (b *setBuilder) add(column string, value any) {
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// update applies set to the row keyed by id. An empty set only checks existence.
func (s *Store) update(ctx context.Context, table, key string, id int64, set setBuilder) error {
	if len(set.clauses) == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, fmt.Sprintf(`select 1 from %s where %s = $1`, table, key), id).Scan(&one)
		return mapError(err)
	}
	set.clauses = append(set.clauses, "updated_at = now()")
	query := fmt.Sprintf(`update %s set %s where %s = $%d`, table, strings.Join(set.clauses, ", "), key, len(set.args)+1)
	res, err := s.db.ExecContext(ctx, query, append(set.args, id)...)
	if err != nil {
		return mapError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *Store) delete(ctx context.Context, query string, id int64) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// mapError translates driver errors into registry sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return registry.ErrNotFound
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", registry.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", registry.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// int64s keeps empty id lists from being sent as SQL null.
func int64s(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}
