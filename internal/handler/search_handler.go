package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-generator/miner/internal/dto"
	middleware "github.com/octobees/leads-generator/miner/internal/middleware"
	"github.com/octobees/leads-generator/miner/internal/repository"
	"github.com/octobees/leads-generator/miner/internal/service"
)

// SearchHandler launches maps search runs through the scraper worker and
// folds the results into the company catalogue.
type SearchHandler struct {
	worker    WorkerPoster
	companies *service.CompaniesService
	runs      repository.SearchRunsRepository
}

// NewSearchHandler constructs a search handler backed by an HTTP client.
// If `client == nil`, it automatically creates an ID-token client for Cloud Run → Cloud Run calls.
func NewSearchHandler(client *http.Client, workerBaseURL string, companies *service.CompaniesService, runs repository.SearchRunsRepository) *SearchHandler {
	return &SearchHandler{worker: NewWorkerClient(client, workerBaseURL), companies: companies, runs: runs}
}

// NewSearchHandlerWithWorker allows injecting a custom worker client (useful for tests).
func NewSearchHandlerWithWorker(worker WorkerPoster, companies *service.CompaniesService, runs repository.SearchRunsRepository) *SearchHandler {
	return &SearchHandler{worker: worker, companies: companies, runs: runs}
}

// Run handles POST /search-runs requests. The worker call is synchronous:
// the response carries how many businesses were stored and linked.
func (h *SearchHandler) Run(c echo.Context) error {
	var req dto.SearchRunRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	req.TypeBusiness = strings.TrimSpace(req.TypeBusiness)
	req.City = strings.TrimSpace(req.City)
	req.Country = strings.TrimSpace(req.Country)
	if req.TypeBusiness == "" {
		return Error(c, http.StatusBadRequest, "type_business is required")
	}
	if req.City == "" || req.Country == "" {
		return Error(c, http.StatusBadRequest, "city and country are required")
	}

	ctx := c.Request().Context()
	data, err := h.worker.PostJSON(ctx, "/scrape", map[string]any{
		"type_business": req.TypeBusiness,
		"city":          req.City,
		"country":       req.Country,
	}, middleware.RequestIDFromContext(c))
	if err != nil {
		return Error(c, http.StatusBadGateway, err.Error())
	}

	scraped, err := decodeScrapedCompanies(data)
	if err != nil {
		return Error(c, http.StatusBadGateway, "malformed worker response")
	}

	query := fmt.Sprintf("%s in %s, %s", req.TypeBusiness, req.City, req.Country)
	run, err := h.runs.Create(ctx, repository.SearchRunInput{
		Query:        query,
		TypeBusiness: req.TypeBusiness,
		City:         req.City,
		Country:      req.Country,
	})
	if err != nil {
		return Error(c, http.StatusInternalServerError, "unable to record search run")
	}

	saved, skipped, err := h.companies.SaveScraped(ctx, scraped, time.Now().UTC())
	if err != nil {
		return Error(c, http.StatusInternalServerError, "unable to store companies")
	}

	linked := 0
	for _, company := range saved {
		if err := h.runs.LinkCompany(ctx, run.ID, company.ID); err == nil {
			linked++
		}
	}

	return Success(c, http.StatusOK, "search run completed", dto.SearchRunResponse{
		RunID:           run.ID.String(),
		Query:           run.Query,
		CompaniesStored: len(saved),
		CompaniesLinked: linked,
		Skipped:         skipped,
	})
}

func decodeScrapedCompanies(data map[string]any) ([]dto.ScrapedCompany, error) {
	raw, ok := data["companies"]
	if !ok {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var scraped []dto.ScrapedCompany
	if err := json.Unmarshal(encoded, &scraped); err != nil {
		return nil, err
	}
	return scraped, nil
}
