package dto

// SearchRunRequest is the payload used to launch a maps search run.
type SearchRunRequest struct {
	TypeBusiness string `json:"type_business"`
	City         string `json:"city"`
	Country      string `json:"country"`
}

// SearchRunResponse reports the outcome of a search run.
type SearchRunResponse struct {
	RunID           string `json:"run_id"`
	Query           string `json:"query"`
	CompaniesStored int    `json:"companies_stored"`
	CompaniesLinked int    `json:"companies_linked"`
	Skipped         int    `json:"skipped"`
}

// ScrapedCompany is one business returned by the maps-scraper worker.
type ScrapedCompany struct {
	PlaceID string `json:"place_id"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}
