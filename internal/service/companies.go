package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/emailx"
	"github.com/octobees/leads-generator/miner/internal/entity"
	"github.com/octobees/leads-generator/miner/internal/repository"
)

const defaultPhoneRegion = "ID"

// CompaniesService exposes read/write operations for the company catalogue.
// Every write funnels through domain normalization so the catalogue stays
// deduplicated on normalized_domain.
type CompaniesService struct {
	repo repository.CompaniesRepository
}

// CSVValidationError indicates that the provided CSV payload is invalid.
type CSVValidationError struct {
	Message string
}

// Error implements the error interface.
func (e CSVValidationError) Error() string {
	return e.Message
}

// UploadSummary reports how many rows were inserted, updated or skipped
// during an import.
type UploadSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// NewCompaniesService creates a new instance of CompaniesService.
func NewCompaniesService(repo repository.CompaniesRepository) *CompaniesService {
	return &CompaniesService{repo: repo}
}

// ListCompanies returns companies respecting pagination defaults.
func (s *CompaniesService) ListCompanies(ctx context.Context, filter dto.CompanyFilter) ([]entity.Company, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}
	return s.repo.List(ctx, filter)
}

// GetCompany returns one company by id.
func (s *CompaniesService) GetCompany(ctx context.Context, id uuid.UUID) (*entity.Company, error) {
	return s.repo.GetByID(ctx, id)
}

// SaveScraped stores freshly scraped companies. Rows without a usable website
// domain are skipped rather than failing the batch, since the scraper
// routinely yields listings with no site. Returns the stored rows plus the
// skip count.
func (s *CompaniesService) SaveScraped(ctx context.Context, scraped []dto.ScrapedCompany, scrapedAt time.Time) ([]entity.Company, int, error) {
	var (
		saved   []entity.Company
		skipped int
	)
	for _, row := range scraped {
		name := strings.TrimSpace(row.Name)
		domain := emailx.NormalizeDomain(row.Website)
		if name == "" || domain == "" {
			skipped++
			continue
		}

		input := repository.CompanyInput{
			PlaceID:          normalizeString(row.PlaceID),
			Name:             name,
			RawWebsite:       normalizeString(row.Website),
			NormalizedDomain: domain,
			Address:          normalizeString(row.Address),
			Phone:            normalizePhone(row.Phone),
			ScrapedAt:        &scrapedAt,
		}
		company, err := s.repo.Upsert(ctx, input)
		if err != nil {
			return saved, skipped, fmt.Errorf("upsert scraped company %q: %w", name, err)
		}
		saved = append(saved, *company)
	}
	return saved, skipped, nil
}

// ImportCompaniesCSV ingests companies data from a CSV reader. Rows whose
// website does not yield a domain are counted as skipped.
func (s *CompaniesService) ImportCompaniesCSV(ctx context.Context, r io.Reader) (UploadSummary, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return UploadSummary{}, CSVValidationError{Message: "csv file is empty"}
		}
		return UploadSummary{}, fmt.Errorf("read csv header: %w", err)
	}

	indexMap, valErr := buildHeaderIndex(header)
	if valErr != nil {
		return UploadSummary{}, valErr
	}

	var (
		records []repository.CompanyInput
		skipped int
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return UploadSummary{}, fmt.Errorf("read csv row: %w", err)
		}

		name := strings.TrimSpace(row[indexMap["company"]])
		website := strings.TrimSpace(row[indexMap["website"]])
		domain := emailx.NormalizeDomain(website)
		if name == "" || domain == "" {
			skipped++
			continue
		}

		records = append(records, repository.CompanyInput{
			Name:             name,
			RawWebsite:       normalizeString(website),
			NormalizedDomain: domain,
			Address:          optionalColumn(row, indexMap, "address"),
			Phone:            normalizePhone(columnValue(row, indexMap, "phone")),
			PlaceID:          optionalColumn(row, indexMap, "place_id"),
		})
	}

	result, err := s.repo.BulkUpsert(ctx, records)
	if err != nil {
		return UploadSummary{}, err
	}

	return UploadSummary{
		Inserted: result.Inserted,
		Updated:  result.Updated,
		Skipped:  skipped,
		Total:    result.Total + skipped,
	}, nil
}

var requiredCSVHeaders = []string{"company", "website"}

func buildHeaderIndex(header []string) (map[string]int, error) {
	index := make(map[string]int)
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}

	missing := make([]string, 0)
	for _, required := range requiredCSVHeaders {
		if _, ok := index[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, CSVValidationError{Message: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", "))}
	}
	return index, nil
}

func columnValue(row []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func optionalColumn(row []string, index map[string]int, name string) *string {
	return normalizeString(columnValue(row, index, name))
}

func normalizeString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// normalizePhone formats the number as E.164, dropping anything that does not
// parse as a possible, valid number.
func normalizePhone(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	number, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil {
		return nil
	}
	if !phonenumbers.IsPossibleNumber(number) || !phonenumbers.IsValidNumber(number) {
		return nil
	}
	formatted := phonenumbers.Format(number, phonenumbers.E164)
	return &formatted
}
