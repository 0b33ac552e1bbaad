package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-generator/miner/internal/repository"
)

// ContactsHandler exposes discovered contacts and their emails.
type ContactsHandler struct {
	contacts repository.ContactsRepository
}

// NewContactsHandler constructs a ContactsHandler.
func NewContactsHandler(contacts repository.ContactsRepository) *ContactsHandler {
	return &ContactsHandler{contacts: contacts}
}

// ListByCompany handles GET /companies/:id/contacts requests. Each contact
// comes with its scored email candidates.
func (h *ContactsHandler) ListByCompany(c echo.Context) error {
	companyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid company id")
	}

	contacts, err := h.contacts.ListByCompany(c.Request().Context(), companyID)
	if err != nil {
		return Error(c, http.StatusInternalServerError, "unable to list contacts")
	}
	return Success(c, http.StatusOK, "contacts listed", contacts)
}

// Get handles GET /contacts/:id requests.
func (h *ContactsHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid contact id")
	}

	contact, err := h.contacts.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			return Error(c, http.StatusNotFound, "contact not found")
		}
		return Error(c, http.StatusInternalServerError, "unable to load contact")
	}
	return Success(c, http.StatusOK, "contact found", contact)
}
