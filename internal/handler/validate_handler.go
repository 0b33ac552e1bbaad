package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/service"
)

const maxBatchEmails = 100

// ValidateHandler exposes on-demand email deliverability checks.
type ValidateHandler struct {
	oracle *service.Oracle
}

// NewValidateHandler constructs a ValidateHandler.
func NewValidateHandler(oracle *service.Oracle) *ValidateHandler {
	return &ValidateHandler{oracle: oracle}
}

// ValidateOne handles POST /validate-email requests.
func (h *ValidateHandler) ValidateOne(c echo.Context) error {
	var req dto.ValidateEmailRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		return Error(c, http.StatusBadRequest, "email is required")
	}

	verdict := h.oracle.Check(c.Request().Context(), req.Email, "")
	return Success(c, http.StatusOK, "email validated", verdict)
}

// ValidateBatch handles POST /validate-emails requests.
func (h *ValidateHandler) ValidateBatch(c echo.Context) error {
	var req dto.ValidateEmailsRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	emails := make([]string, 0, len(req.Emails))
	for _, email := range req.Emails {
		if trimmed := strings.TrimSpace(email); trimmed != "" {
			emails = append(emails, trimmed)
		}
	}
	if len(emails) == 0 {
		return Error(c, http.StatusBadRequest, "at least one email is required")
	}
	if len(emails) > maxBatchEmails {
		return Error(c, http.StatusBadRequest, "too many emails in one batch")
	}

	verdicts := h.oracle.CheckBatch(c.Request().Context(), emails, "")
	return Success(c, http.StatusOK, "emails validated", verdicts)
}
