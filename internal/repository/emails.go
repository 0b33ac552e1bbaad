package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/leads-generator/miner/internal/entity"
)

// ContactEmailInput carries the fields accepted by email candidate upserts.
type ContactEmailInput struct {
	ContactID     uuid.UUID
	Email         string
	Confidence    string
	IsDeliverable *bool
	Source        string
}

// ContactEmailsRepository persists email candidates with (contact_id, email)
// uniqueness. Replaying the same pair returns the stored row unchanged.
type ContactEmailsRepository interface {
	Upsert(ctx context.Context, input ContactEmailInput) (*entity.ContactEmail, bool, error)
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]entity.ContactEmail, error)
}

// PGXContactEmailsRepository implements ContactEmailsRepository using pgx.
type PGXContactEmailsRepository struct {
	pool pgxPool
}

// NewPGXContactEmailsRepository wires a pgx backed repository.
func NewPGXContactEmailsRepository(pool *pgxpool.Pool) *PGXContactEmailsRepository {
	return &PGXContactEmailsRepository{pool: pool}
}

const emailColumns = `id, contact_id, email, confidence, is_deliverable, source, created_at, updated_at`

// Upsert inserts an email candidate or returns the existing row when the
// (contact_id, email) pair is already present. The second return value
// reports whether a new row was created. The conflict branch deliberately
// leaves the stored confidence untouched.
func (r *PGXContactEmailsRepository) Upsert(ctx context.Context, input ContactEmailInput) (*entity.ContactEmail, bool, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, false, fmt.Errorf("email must not be empty")
	}

	row := r.pool.QueryRow(ctx, `
        INSERT INTO contact_emails (contact_id, email, confidence, is_deliverable, source)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (contact_id, email) DO UPDATE SET email = EXCLUDED.email
        RETURNING `+emailColumns+`, (xmax = 0) AS inserted
    `, input.ContactID, email, input.Confidence, input.IsDeliverable, input.Source)

	var (
		record   entity.ContactEmail
		inserted bool
	)
	if err := scanContactEmail(row, &record, &inserted); err != nil {
		return nil, false, fmt.Errorf("upsert contact email %q: %w", email, err)
	}
	return &record, inserted, nil
}

// ListByContact fetches all candidates for one contact, newest first.
func (r *PGXContactEmailsRepository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]entity.ContactEmail, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+emailColumns+` FROM contact_emails WHERE contact_id = $1 ORDER BY created_at DESC`, contactID)
	if err != nil {
		return nil, fmt.Errorf("list contact emails: %w", err)
	}
	defer rows.Close()

	var records []entity.ContactEmail
	for rows.Next() {
		var record entity.ContactEmail
		if err := scanContactEmail(rows, &record, nil); err != nil {
			return nil, fmt.Errorf("scan contact email: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact emails: %w", err)
	}
	return records, nil
}

func scanContactEmail(row rowScanner, e *entity.ContactEmail, inserted *bool) error {
	var isDeliverable sql.NullBool

	dest := []any{
		&e.ID,
		&e.ContactID,
		&e.Email,
		&e.Confidence,
		&isDeliverable,
		&e.Source,
		&e.CreatedAt,
		&e.UpdatedAt,
	}
	if inserted != nil {
		dest = append(dest, inserted)
	}

	if err := row.Scan(dest...); err != nil {
		return err
	}

	if isDeliverable.Valid {
		val := isDeliverable.Bool
		e.IsDeliverable = &val
	}
	return nil
}
