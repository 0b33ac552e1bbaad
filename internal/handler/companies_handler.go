package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/repository"
	"github.com/octobees/leads-generator/miner/internal/service"
)

// CompaniesHandler exposes company catalogue endpoints.
type CompaniesHandler struct {
	companiesService *service.CompaniesService
}

// NewCompaniesHandler constructs a CompaniesHandler.
func NewCompaniesHandler(companiesService *service.CompaniesService) *CompaniesHandler {
	return &CompaniesHandler{companiesService: companiesService}
}

// List handles GET /companies requests.
func (h *CompaniesHandler) List(c echo.Context) error {
	filter := dto.CompanyFilter{
		Q:      strings.TrimSpace(c.QueryParam("q")),
		Domain: strings.TrimSpace(c.QueryParam("domain")),
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PerPage, _ = strconv.Atoi(c.QueryParam("per_page"))

	companies, err := h.companiesService.ListCompanies(c.Request().Context(), filter)
	if err != nil {
		return Error(c, http.StatusInternalServerError, "unable to list companies")
	}
	return Success(c, http.StatusOK, "companies listed", companies)
}

// Get handles GET /companies/:id requests.
func (h *CompaniesHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid company id")
	}

	company, err := h.companiesService.GetCompany(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrCompanyNotFound) {
			return Error(c, http.StatusNotFound, "company not found")
		}
		return Error(c, http.StatusInternalServerError, "unable to load company")
	}
	return Success(c, http.StatusOK, "company found", company)
}
