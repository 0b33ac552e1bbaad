package dto

// ValidateEmailRequest asks for a single address verdict.
type ValidateEmailRequest struct {
	Email string `json:"email"`
}

// ValidateEmailsRequest asks for verdicts on a batch of addresses.
type ValidateEmailsRequest struct {
	Emails []string `json:"emails"`
}

// EmailVerdict is the verdict returned for one address. Source distinguishes
// oracle-confirmed results from heuristic fallbacks.
type EmailVerdict struct {
	Email         string `json:"email"`
	Confidence    string `json:"confidence"`
	IsDeliverable *bool  `json:"is_deliverable,omitempty"`
	Source        string `json:"source"`
	Reason        string `json:"reason,omitempty"`
}
