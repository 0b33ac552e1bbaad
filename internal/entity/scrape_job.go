package entity

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates the scrape job state machine.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status ends a run. Terminal jobs can only be
// re-armed through an explicit restart.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// ScrapeJob is a multi-company contact mining run. ProcessedCompanies is the
// resumption cursor: companies in CompanyIDs up to that index are fully
// handled, and a restarted worker continues from it.
type ScrapeJob struct {
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	CompanyIDs         []uuid.UUID `json:"company_ids"`
	Status             JobStatus   `json:"status"`
	TotalCompanies     int         `json:"total_companies"`
	ProcessedCompanies int         `json:"processed_companies"`
	TotalContactsFound int         `json:"total_contacts_found"`
	ContactsPerCompany int         `json:"contacts_per_company"`
	CurrentCompanyID   *uuid.UUID  `json:"current_company_id,omitempty"`
	CurrentCompanyName *string     `json:"current_company_name,omitempty"`
	ErrorMessage       *string     `json:"error_message,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	StartedAt          *time.Time  `json:"started_at,omitempty"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
}
