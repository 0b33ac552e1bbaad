package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/leads-generator/miner/internal/entity"
)

// SearchRunInput carries the parameters of a maps search run.
type SearchRunInput struct {
	Query        string
	TypeBusiness string
	City         string
	Country      string
}

// SearchRunsRepository records search runs and their company links. Links use
// a composite-key upsert so re-running the same query tolerates replays.
type SearchRunsRepository interface {
	Create(ctx context.Context, input SearchRunInput) (*entity.SearchRun, error)
	LinkCompany(ctx context.Context, runID, companyID uuid.UUID) error
}

// PGXSearchRunsRepository implements SearchRunsRepository using pgx.
type PGXSearchRunsRepository struct {
	pool pgxPool
}

// NewPGXSearchRunsRepository wires a pgx backed repository.
func NewPGXSearchRunsRepository(pool *pgxpool.Pool) *PGXSearchRunsRepository {
	return &PGXSearchRunsRepository{pool: pool}
}

// Create inserts a search run row.
func (r *PGXSearchRunsRepository) Create(ctx context.Context, input SearchRunInput) (*entity.SearchRun, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}

	row := r.pool.QueryRow(ctx, `
        INSERT INTO search_runs (query, type_business, city, country)
        VALUES ($1, $2, $3, $4)
        RETURNING id, query, type_business, city, country, created_at
    `, input.Query, input.TypeBusiness, input.City, input.Country)

	var run entity.SearchRun
	err := row.Scan(&run.ID, &run.Query, &run.TypeBusiness, &run.City, &run.Country, &run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert search run: %w", err)
	}
	return &run, nil
}

// LinkCompany associates a company with a run, ignoring duplicate links.
func (r *PGXSearchRunsRepository) LinkCompany(ctx context.Context, runID, companyID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO search_run_companies (search_run_id, company_id)
        VALUES ($1, $2)
        ON CONFLICT (search_run_id, company_id) DO NOTHING
    `, runID, companyID)
	if err != nil {
		return fmt.Errorf("link search run company: %w", err)
	}
	return nil
}
