package dto

// CreateJobRequest is the payload used to register a new mining job.
type CreateJobRequest struct {
	Name               string   `json:"name"`
	CompanyIDs         []string `json:"company_ids"`
	ContactsPerCompany int      `json:"contacts_per_company,omitempty"`
}

// JobProgress is the live view of a running job returned by the progress
// endpoint and embedded in status events.
type JobProgress struct {
	JobID                  string  `json:"job_id"`
	Status                 string  `json:"status"`
	TotalCompanies         int     `json:"total_companies"`
	ProcessedCompanies     int     `json:"processed_companies"`
	ContactsFound          int     `json:"contacts_found"`
	CurrentCompany         *string `json:"current_company,omitempty"`
	ErrorMessage           *string `json:"error_message,omitempty"`
	EstimatedMinutesRemain *int    `json:"estimated_minutes_remaining,omitempty"`
}
