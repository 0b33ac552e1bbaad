package entity

import (
	"time"

	"github.com/google/uuid"
)

// Company represents a discovered business.
//
// NormalizedDomain is the deduplication key: two scrape results pointing at the
// same website must resolve to a single row. Rows reachable by the mining
// pipeline always carry a non-empty normalized domain; companies without a
// usable website are filtered out before persistence.
type Company struct {
	ID               uuid.UUID  `json:"id"`
	PlaceID          *string    `json:"place_id,omitempty"`
	Name             string     `json:"name"`
	RawWebsite       *string    `json:"raw_website,omitempty"`
	NormalizedDomain string     `json:"normalized_domain"`
	Address          *string    `json:"address,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	ScrapedAt        *time.Time `json:"scraped_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
