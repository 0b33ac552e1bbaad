package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/entity"
)

// ErrCompanyNotFound indicates no company matches the lookup criteria.
var ErrCompanyNotFound = errors.New("company not found")

// ErrEmptyDomain is returned when an upsert lacks a normalized domain. The
// pipeline never persists companies it cannot deduplicate.
var ErrEmptyDomain = errors.New("normalized domain must not be empty")

// CompanyInput carries the fields accepted by company upserts.
type CompanyInput struct {
	PlaceID          *string
	Name             string
	RawWebsite       *string
	NormalizedDomain string
	Address          *string
	Phone            *string
	ScrapedAt        *time.Time
}

// BulkUpsertResult summarises how many rows a batch import inserted or updated.
type BulkUpsertResult struct {
	Inserted int
	Updated  int
	Total    int
}

// CompaniesRepository describes persistence operations for companies.
type CompaniesRepository interface {
	Upsert(ctx context.Context, input CompanyInput) (*entity.Company, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Company, error)
	List(ctx context.Context, filter dto.CompanyFilter) ([]entity.Company, error)
	BulkUpsert(ctx context.Context, records []CompanyInput) (BulkUpsertResult, error)
}

// PGXCompaniesRepository implements CompaniesRepository using pgx.
type PGXCompaniesRepository struct {
	pool pgxPool
}

// NewPGXCompaniesRepository wires a pgx backed repository.
func NewPGXCompaniesRepository(pool *pgxpool.Pool) *PGXCompaniesRepository {
	return &PGXCompaniesRepository{pool: pool}
}

var _ pgxPool = (*pgxpool.Pool)(nil)

const companyColumns = `id, place_id, name, raw_website, normalized_domain, address, phone, scraped_at, created_at, updated_at`

const upsertCompanySQL = `
        INSERT INTO companies (place_id, name, raw_website, normalized_domain, address, phone, scraped_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (normalized_domain) DO UPDATE SET
            place_id = COALESCE(EXCLUDED.place_id, companies.place_id),
            name = EXCLUDED.name,
            raw_website = COALESCE(EXCLUDED.raw_website, companies.raw_website),
            address = COALESCE(EXCLUDED.address, companies.address),
            phone = COALESCE(EXCLUDED.phone, companies.phone),
            scraped_at = COALESCE(EXCLUDED.scraped_at, companies.scraped_at),
            updated_at = NOW()
        RETURNING ` + companyColumns + `, (xmax = 0) AS inserted;
    `

// Upsert inserts or updates a company keyed by its normalized domain and
// returns the resolved row, whether it existed before or not.
func (r *PGXCompaniesRepository) Upsert(ctx context.Context, input CompanyInput) (*entity.Company, error) {
	company, _, err := r.upsertOne(ctx, r.pool, input)
	return company, err
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PGXCompaniesRepository) upsertOne(ctx context.Context, q pgxQuerier, input CompanyInput) (*entity.Company, bool, error) {
	if strings.TrimSpace(input.NormalizedDomain) == "" {
		return nil, false, ErrEmptyDomain
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, false, fmt.Errorf("company name must not be empty")
	}

	row := q.QueryRow(ctx, upsertCompanySQL,
		input.PlaceID,
		input.Name,
		input.RawWebsite,
		strings.ToLower(strings.TrimSpace(input.NormalizedDomain)),
		input.Address,
		input.Phone,
		input.ScrapedAt,
	)

	var (
		company  entity.Company
		inserted bool
	)
	if err := scanCompany(row, &company, &inserted); err != nil {
		return nil, false, fmt.Errorf("upsert company %q: %w", input.Name, err)
	}
	return &company, inserted, nil
}

// GetByID fetches a single company.
func (r *PGXCompaniesRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)

	var company entity.Company
	if err := scanCompany(row, &company, nil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("query company by id: %w", err)
	}
	return &company, nil
}

// GetByIDs fetches companies by identifier, preserving the order of the input
// slice. Missing identifiers are silently skipped.
func (r *PGXCompaniesRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id.String())
	}

	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ANY($1::uuid[])`, args)
	if err != nil {
		return nil, fmt.Errorf("query companies by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]entity.Company, len(ids))
	for rows.Next() {
		var company entity.Company
		if err := scanCompany(rows, &company, nil); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		byID[company.ID] = company
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}

	ordered := make([]entity.Company, 0, len(byID))
	for _, id := range ids {
		if company, ok := byID[id]; ok {
			ordered = append(ordered, company)
		}
	}
	return ordered, nil
}

// List retrieves companies matching the provided filter, newest first.
func (r *PGXCompaniesRepository) List(ctx context.Context, filter dto.CompanyFilter) ([]entity.Company, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + companyColumns + ` FROM companies`)

	var (
		clauses []string
		args    []any
		idx     = 1
	)

	if filter.Q != "" {
		pattern := fmt.Sprintf("%%%s%%", filter.Q)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR normalized_domain ILIKE $%d)", idx, idx+1))
		args = append(args, pattern, pattern)
		idx += 2
	}
	if filter.Domain != "" {
		clauses = append(clauses, fmt.Sprintf("normalized_domain = LOWER($%d)", idx))
		args = append(args, filter.Domain)
		idx++
	}

	if len(clauses) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(clauses, " AND "))
	}
	query.WriteString(" ORDER BY updated_at DESC, name ASC")

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	query.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1))
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var companies []entity.Company
	for rows.Next() {
		var company entity.Company
		if err := scanCompany(rows, &company, nil); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, company)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, nil
}

// BulkUpsert persists a batch of companies inside one transaction with
// idempotent semantics. Records without a normalized domain are rejected
// before the transaction starts.
func (r *PGXCompaniesRepository) BulkUpsert(ctx context.Context, records []CompanyInput) (BulkUpsertResult, error) {
	var result BulkUpsertResult
	if len(records) == 0 {
		return result, nil
	}

	for _, record := range records {
		if strings.TrimSpace(record.NormalizedDomain) == "" {
			return result, fmt.Errorf("company %q: %w", record.Name, ErrEmptyDomain)
		}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, fmt.Errorf("start bulk upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		_, inserted, err := r.upsertOne(ctx, tx, record)
		if err != nil {
			return result, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
		result.Total++
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit bulk upsert tx: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner, c *entity.Company, inserted *bool) error {
	var (
		placeID    sql.NullString
		rawWebsite sql.NullString
		address    sql.NullString
		phone      sql.NullString
		scrapedAt  sql.NullTime
	)

	dest := []any{
		&c.ID,
		&placeID,
		&c.Name,
		&rawWebsite,
		&c.NormalizedDomain,
		&address,
		&phone,
		&scrapedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if inserted != nil {
		dest = append(dest, inserted)
	}

	if err := row.Scan(dest...); err != nil {
		return err
	}

	c.PlaceID = nullStringToPtr(placeID)
	c.RawWebsite = nullStringToPtr(rawWebsite)
	c.Address = nullStringToPtr(address)
	c.Phone = nullStringToPtr(phone)
	if scrapedAt.Valid {
		ts := scrapedAt.Time
		c.ScrapedAt = &ts
	}
	return nil
}

func nullStringToPtr(value sql.NullString) *string {
	if value.Valid {
		val := value.String
		return &val
	}
	return nil
}
