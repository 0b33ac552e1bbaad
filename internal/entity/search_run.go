package entity

import (
	"time"

	"github.com/google/uuid"
)

// SearchRun records a maps search that produced companies. Companies found by
// a run are linked through the search_run_companies junction table so the same
// query can be re-run without duplicating links.
type SearchRun struct {
	ID           uuid.UUID `json:"id"`
	Query        string    `json:"query"`
	TypeBusiness string    `json:"type_business"`
	City         string    `json:"city"`
	Country      string    `json:"country"`
	CreatedAt    time.Time `json:"created_at"`
}
