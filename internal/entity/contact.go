package entity

import (
	"time"

	"github.com/google/uuid"
)

// Contact is a person discovered for a company. Every contact belongs to
// exactly one company.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	FirstName   string    `json:"first_name"`
	LastName    *string   `json:"last_name,omitempty"`
	Bio         *string   `json:"bio,omitempty"`
	LinkedInURL *string   `json:"linkedin_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContactEmail is a generated or validated email hypothesis for a contact.
// The (contact_id, email) pair is unique; replayed upserts return the stored
// row instead of creating duplicates.
type ContactEmail struct {
	ID            uuid.UUID `json:"id"`
	ContactID     uuid.UUID `json:"contact_id"`
	Email         string    `json:"email"`
	Confidence    string    `json:"confidence"`
	IsDeliverable *bool     `json:"is_deliverable,omitempty"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Email candidate sources.
const (
	EmailSourcePattern  = "pattern_heuristic"
	EmailSourceOracle   = "oracle"
	EmailSourceFallback = "heuristic_fallback"
)
