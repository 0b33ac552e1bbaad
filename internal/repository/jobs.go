package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/leads-generator/miner/internal/entity"
)

// ErrJobNotFound indicates no scrape job matches the lookup criteria.
var ErrJobNotFound = errors.New("scrape job not found")

// JobPatch describes a partial update to a scrape job row. Nil fields are
// left untouched; the Clear flags explicitly null their columns.
type JobPatch struct {
	Status             *entity.JobStatus
	ProcessedCompanies *int
	TotalContactsFound *int
	ErrorMessage       *string
	ClearError         bool
	CurrentCompanyID   *uuid.UUID
	CurrentCompanyName *string
	ClearCurrent       bool
}

// JobsRepository persists scrape jobs. The database row is the single source
// of truth for job status; in-memory worker flags are a signal layer only.
type JobsRepository interface {
	Create(ctx context.Context, name string, companyIDs []uuid.UUID, contactsPerCompany int) (*entity.ScrapeJob, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error)
	List(ctx context.Context) ([]entity.ScrapeJob, error)
	ListByStatus(ctx context.Context, status entity.JobStatus) ([]entity.ScrapeJob, error)
	Update(ctx context.Context, id uuid.UUID, patch JobPatch) (*entity.ScrapeJob, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PGXJobsRepository implements JobsRepository using pgx.
type PGXJobsRepository struct {
	pool pgxPool
}

// NewPGXJobsRepository wires a pgx backed repository.
func NewPGXJobsRepository(pool *pgxpool.Pool) *PGXJobsRepository {
	return &PGXJobsRepository{pool: pool}
}

const jobColumns = `id, name, company_ids, status, total_companies, processed_companies, total_contacts_found, contacts_per_company, current_company_id, current_company_name, error_message, created_at, started_at, completed_at`

// Create inserts a pending job covering the given companies in order.
func (r *PGXJobsRepository) Create(ctx context.Context, name string, companyIDs []uuid.UUID, contactsPerCompany int) (*entity.ScrapeJob, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("job name must not be empty")
	}
	if len(companyIDs) == 0 {
		return nil, fmt.Errorf("job must cover at least one company")
	}
	if contactsPerCompany <= 0 {
		contactsPerCompany = 20
	}

	idsJSON, err := json.Marshal(companyIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal company ids: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
        INSERT INTO scrape_jobs (name, company_ids, status, total_companies, processed_companies, total_contacts_found, contacts_per_company)
        VALUES ($1, $2::jsonb, $3, $4, 0, 0, $5)
        RETURNING `+jobColumns+`
    `, name, string(idsJSON), entity.JobPending, len(companyIDs), contactsPerCompany)

	var job entity.ScrapeJob
	if err := scanJob(row, &job); err != nil {
		return nil, fmt.Errorf("insert scrape job: %w", err)
	}
	return &job, nil
}

// Get fetches a single job.
func (r *PGXJobsRepository) Get(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`, id)

	var job entity.ScrapeJob
	if err := scanJob(row, &job); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("query scrape job: %w", err)
	}
	return &job, nil
}

// List returns all jobs, newest first.
func (r *PGXJobsRepository) List(ctx context.Context) ([]entity.ScrapeJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM scrape_jobs ORDER BY created_at DESC`)
}

// ListByStatus returns jobs in a given state. Startup reconciliation uses it
// to find rows left "running" by a dead process.
func (r *PGXJobsRepository) ListByStatus(ctx context.Context, status entity.JobStatus) ([]entity.ScrapeJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (r *PGXJobsRepository) list(ctx context.Context, query string, args ...any) ([]entity.ScrapeJob, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scrape jobs: %w", err)
	}
	defer rows.Close()

	var jobs []entity.ScrapeJob
	for rows.Next() {
		var job entity.ScrapeJob
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("scan scrape job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrape jobs: %w", err)
	}
	return jobs, nil
}

// Update applies a partial patch and returns the updated row. Moving to
// running stamps started_at once; reaching a terminal status stamps
// completed_at; re-arming to pending clears both timestamps.
func (r *PGXJobsRepository) Update(ctx context.Context, id uuid.UUID, patch JobPatch) (*entity.ScrapeJob, error) {
	setClauses := make([]string, 0)
	args := make([]any, 0)
	idx := 1

	if patch.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, *patch.Status)
		idx++

		switch {
		case *patch.Status == entity.JobRunning:
			setClauses = append(setClauses, "started_at = COALESCE(started_at, NOW())")
		case patch.Status.Terminal():
			setClauses = append(setClauses, "completed_at = NOW()")
		case *patch.Status == entity.JobPending:
			setClauses = append(setClauses, "started_at = NULL", "completed_at = NULL")
		}
	}
	if patch.ProcessedCompanies != nil {
		setClauses = append(setClauses, fmt.Sprintf("processed_companies = $%d", idx))
		args = append(args, *patch.ProcessedCompanies)
		idx++
	}
	if patch.TotalContactsFound != nil {
		setClauses = append(setClauses, fmt.Sprintf("total_contacts_found = $%d", idx))
		args = append(args, *patch.TotalContactsFound)
		idx++
	}
	if patch.ErrorMessage != nil {
		setClauses = append(setClauses, fmt.Sprintf("error_message = $%d", idx))
		args = append(args, *patch.ErrorMessage)
		idx++
	} else if patch.ClearError {
		setClauses = append(setClauses, "error_message = NULL")
	}
	if patch.CurrentCompanyID != nil {
		setClauses = append(setClauses, fmt.Sprintf("current_company_id = $%d", idx))
		args = append(args, *patch.CurrentCompanyID)
		idx++
	}
	if patch.CurrentCompanyName != nil {
		setClauses = append(setClauses, fmt.Sprintf("current_company_name = $%d", idx))
		args = append(args, *patch.CurrentCompanyName)
		idx++
	}
	if patch.ClearCurrent {
		setClauses = append(setClauses, "current_company_id = NULL", "current_company_name = NULL")
	}

	if len(setClauses) == 0 {
		return r.Get(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE scrape_jobs SET %s WHERE id = $%d RETURNING %s`, strings.Join(setClauses, ", "), idx, jobColumns)

	row := r.pool.QueryRow(ctx, query, args...)

	var job entity.ScrapeJob
	if err := scanJob(row, &job); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("update scrape job: %w", err)
	}
	return &job, nil
}

// Delete removes a job row.
func (r *PGXJobsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM scrape_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scrape job: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func scanJob(row rowScanner, job *entity.ScrapeJob) error {
	var (
		idsJSON      []byte
		currentID    *uuid.UUID
		currentName  sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.Name,
		&idsJSON,
		&job.Status,
		&job.TotalCompanies,
		&job.ProcessedCompanies,
		&job.TotalContactsFound,
		&job.ContactsPerCompany,
		&currentID,
		&currentName,
		&errorMessage,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return err
	}

	if len(idsJSON) > 0 {
		if err := json.Unmarshal(idsJSON, &job.CompanyIDs); err != nil {
			return fmt.Errorf("unmarshal company ids: %w", err)
		}
	}
	job.CurrentCompanyID = currentID
	job.CurrentCompanyName = nullStringToPtr(currentName)
	job.ErrorMessage = nullStringToPtr(errorMessage)
	if startedAt.Valid {
		ts := startedAt.Time
		job.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time
		job.CompletedAt = &ts
	}
	return nil
}
