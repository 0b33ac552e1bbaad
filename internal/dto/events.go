package dto

// Stream event types emitted while a job advances, in chronological order.
// Every event is a single self-contained JSON record.
const (
	EventStatus          = "status"
	EventCompanyProgress = "company_progress"
	EventContactFound    = "contact_found"
	EventCompanyComplete = "company_complete"
	EventError           = "error"
	EventComplete        = "complete"
)

// StreamEvent is one progress record pushed to job subscribers.
type StreamEvent struct {
	Type           string       `json:"type"`
	JobID          string       `json:"job_id"`
	Message        string       `json:"message,omitempty"`
	CompanyID      string       `json:"company_id,omitempty"`
	CompanyName    string       `json:"company_name,omitempty"`
	Contact        *ContactInfo `json:"contact,omitempty"`
	ContactsFound  int          `json:"contacts_found,omitempty"`
	EmailsFound    int          `json:"emails_found,omitempty"`
	CurrentCompany int          `json:"current_company,omitempty"`
	TotalCompanies int          `json:"total_companies,omitempty"`
	Progress       int          `json:"progress,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// ContactInfo is the trimmed contact payload carried by contact_found events.
type ContactInfo struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	EmailsFound int    `json:"emails_found,omitempty"`
}
