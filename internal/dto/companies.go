package dto

// CompanyFilter contains query parameters for company listing endpoints.
type CompanyFilter struct {
	Q       string
	Domain  string
	Page    int
	PerPage int
}
