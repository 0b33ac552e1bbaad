package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/leads-generator/miner/internal/entity"
)

// ErrContactNotFound indicates no contact matches the lookup criteria.
var ErrContactNotFound = errors.New("contact not found")

// ContactInput carries the fields accepted when creating a contact.
type ContactInput struct {
	CompanyID   uuid.UUID
	FirstName   string
	LastName    *string
	Bio         *string
	LinkedInURL *string
}

// ContactWithEmails pairs a contact with its email candidates.
type ContactWithEmails struct {
	entity.Contact
	Emails []entity.ContactEmail `json:"emails"`
}

// ContactsRepository describes persistence operations for contacts.
//
// Create always inserts: discovery-level deduplication (skipping companies
// that already have contacts) is the caller's responsibility.
type ContactsRepository interface {
	Create(ctx context.Context, input ContactInput) (*entity.Contact, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Contact, error)
	CountByCompany(ctx context.Context, companyID uuid.UUID) (int, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]ContactWithEmails, error)
}

// PGXContactsRepository implements ContactsRepository using pgx.
type PGXContactsRepository struct {
	pool pgxPool
}

// NewPGXContactsRepository wires a pgx backed repository.
func NewPGXContactsRepository(pool *pgxpool.Pool) *PGXContactsRepository {
	return &PGXContactsRepository{pool: pool}
}

const contactColumns = `id, company_id, first_name, last_name, bio, linkedin_url, created_at, updated_at`

// Create inserts a new contact row scoped to a company.
func (r *PGXContactsRepository) Create(ctx context.Context, input ContactInput) (*entity.Contact, error) {
	if strings.TrimSpace(input.FirstName) == "" {
		return nil, fmt.Errorf("contact first name must not be empty")
	}

	row := r.pool.QueryRow(ctx, `
        INSERT INTO contacts (company_id, first_name, last_name, bio, linkedin_url)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+contactColumns+`
    `, input.CompanyID, input.FirstName, input.LastName, input.Bio, input.LinkedInURL)

	var contact entity.Contact
	if err := scanContact(row, &contact); err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	return &contact, nil
}

// GetByID fetches a single contact.
func (r *PGXContactsRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Contact, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)

	var contact entity.Contact
	if err := scanContact(row, &contact); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("query contact by id: %w", err)
	}
	return &contact, nil
}

// CountByCompany reports how many contacts a company already has. The miner
// uses a non-zero count as its skip-rediscovery signal.
func (r *PGXContactsRepository) CountByCompany(ctx context.Context, companyID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts WHERE company_id = $1`, companyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return count, nil
}

// ListByCompany fetches a company's contacts together with their email
// candidates in a single joined query.
func (r *PGXContactsRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]ContactWithEmails, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT
            c.id, c.company_id, c.first_name, c.last_name, c.bio, c.linkedin_url, c.created_at, c.updated_at,
            e.id, e.email, e.confidence, e.is_deliverable, e.source, e.created_at, e.updated_at
        FROM contacts c
        LEFT JOIN contact_emails e ON e.contact_id = c.id
        WHERE c.company_id = $1
        ORDER BY c.created_at ASC, e.created_at ASC
    `, companyID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var (
		result []ContactWithEmails
		index  = make(map[uuid.UUID]int)
	)

	for rows.Next() {
		var (
			contact       entity.Contact
			lastName      sql.NullString
			bio           sql.NullString
			linkedinURL   sql.NullString
			emailID       *uuid.UUID
			email         sql.NullString
			confidence    sql.NullString
			isDeliverable sql.NullBool
			source        sql.NullString
			emailCreated  sql.NullTime
			emailUpdated  sql.NullTime
		)

		err := rows.Scan(
			&contact.ID,
			&contact.CompanyID,
			&contact.FirstName,
			&lastName,
			&bio,
			&linkedinURL,
			&contact.CreatedAt,
			&contact.UpdatedAt,
			&emailID,
			&email,
			&confidence,
			&isDeliverable,
			&source,
			&emailCreated,
			&emailUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}

		contact.LastName = nullStringToPtr(lastName)
		contact.Bio = nullStringToPtr(bio)
		contact.LinkedInURL = nullStringToPtr(linkedinURL)

		pos, seen := index[contact.ID]
		if !seen {
			result = append(result, ContactWithEmails{Contact: contact})
			pos = len(result) - 1
			index[contact.ID] = pos
		}

		if emailID != nil {
			candidate := entity.ContactEmail{
				ID:         *emailID,
				ContactID:  contact.ID,
				Email:      email.String,
				Confidence: confidence.String,
				Source:     source.String,
			}
			if isDeliverable.Valid {
				val := isDeliverable.Bool
				candidate.IsDeliverable = &val
			}
			if emailCreated.Valid {
				candidate.CreatedAt = emailCreated.Time
			}
			if emailUpdated.Valid {
				candidate.UpdatedAt = emailUpdated.Time
			}
			result[pos].Emails = append(result[pos].Emails, candidate)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return result, nil
}

func scanContact(row rowScanner, c *entity.Contact) error {
	var (
		lastName    sql.NullString
		bio         sql.NullString
		linkedinURL sql.NullString
	)

	err := row.Scan(&c.ID, &c.CompanyID, &c.FirstName, &lastName, &bio, &linkedinURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}

	c.LastName = nullStringToPtr(lastName)
	c.Bio = nullStringToPtr(bio)
	c.LinkedInURL = nullStringToPtr(linkedinURL)
	return nil
}
