package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/entity"
	"github.com/octobees/leads-generator/miner/internal/jobs"
	"github.com/octobees/leads-generator/miner/internal/repository"
)

const streamHeartbeat = 15 * time.Second

// JobsHandler exposes the mining job lifecycle over HTTP.
type JobsHandler struct {
	manager *jobs.Manager
}

// NewJobsHandler constructs a JobsHandler.
func NewJobsHandler(manager *jobs.Manager) *JobsHandler {
	return &JobsHandler{manager: manager}
}

// Create handles POST /jobs requests.
func (h *JobsHandler) Create(c echo.Context) error {
	var req dto.CreateJobRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}
	if req.Name == "" {
		return Error(c, http.StatusBadRequest, "name is required")
	}

	job, err := h.manager.Create(c.Request().Context(), req)
	if err != nil {
		return Error(c, http.StatusBadRequest, err.Error())
	}
	return Success(c, http.StatusCreated, "job created", job)
}

// List handles GET /jobs requests.
func (h *JobsHandler) List(c echo.Context) error {
	all, err := h.manager.List(c.Request().Context())
	if err != nil {
		return Error(c, http.StatusInternalServerError, "unable to list jobs")
	}
	return Success(c, http.StatusOK, "jobs listed", all)
}

// Get handles GET /jobs/:id requests.
func (h *JobsHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid job id")
	}

	job, err := h.manager.Get(c.Request().Context(), id)
	if err != nil {
		return jobError(c, err, "unable to load job")
	}
	return Success(c, http.StatusOK, "job found", job)
}

// Progress handles GET /jobs/:id/progress requests.
func (h *JobsHandler) Progress(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid job id")
	}

	progress, err := h.manager.Progress(c.Request().Context(), id)
	if err != nil {
		return jobError(c, err, "unable to load progress")
	}
	return Success(c, http.StatusOK, "job progress", progress)
}

// Start handles POST /jobs/:id/start requests.
func (h *JobsHandler) Start(c echo.Context) error {
	return h.lifecycle(c, "job started", h.manager.Start)
}

// Pause handles POST /jobs/:id/pause requests.
func (h *JobsHandler) Pause(c echo.Context) error {
	return h.lifecycle(c, "job pausing", h.manager.Pause)
}

// Resume handles POST /jobs/:id/resume requests.
func (h *JobsHandler) Resume(c echo.Context) error {
	return h.lifecycle(c, "job resumed", h.manager.Resume)
}

// Stop handles POST /jobs/:id/stop requests.
func (h *JobsHandler) Stop(c echo.Context) error {
	return h.lifecycle(c, "job stopping", h.manager.Stop)
}

// Restart handles POST /jobs/:id/restart requests.
func (h *JobsHandler) Restart(c echo.Context) error {
	return h.lifecycle(c, "job restarted", h.manager.Restart)
}

// Delete handles DELETE /jobs/:id requests.
func (h *JobsHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid job id")
	}

	if err := h.manager.Delete(c.Request().Context(), id); err != nil {
		return jobError(c, err, "unable to delete job")
	}
	return Success(c, http.StatusOK, "job deleted", nil)
}

// Stream handles GET /jobs/:id/events requests as a server-sent event feed.
// The first event is always a status snapshot so late subscribers catch up,
// and the stream closes itself after the job's complete event.
func (h *JobsHandler) Stream(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid job id")
	}

	progress, err := h.manager.Progress(c.Request().Context(), id)
	if err != nil {
		return jobError(c, err, "unable to load job")
	}

	events, cancel := h.manager.Subscribe(id)
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	snapshot := dto.StreamEvent{
		Type:           dto.EventStatus,
		JobID:          progress.JobID,
		Message:        progress.Status,
		ContactsFound:  progress.ContactsFound,
		CurrentCompany: progress.ProcessedCompanies,
		TotalCompanies: progress.TotalCompanies,
	}
	if err := writeSSE(resp, snapshot); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	ctx := c.Request().Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(resp, ": keep-alive\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		case event := <-events:
			if err := writeSSE(resp, event); err != nil {
				return nil
			}
			if event.Type == dto.EventComplete {
				return nil
			}
		}
	}
}

func writeSSE(resp *echo.Response, event dto.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

func (h *JobsHandler) lifecycle(c echo.Context, message string, action func(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid job id")
	}

	job, err := action(c.Request().Context(), id)
	if err != nil {
		return jobError(c, err, "unable to update job")
	}
	return Success(c, http.StatusOK, message, job)
}

func jobError(c echo.Context, err error, fallback string) error {
	var transition jobs.TransitionError
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		return Error(c, http.StatusNotFound, "job not found")
	case errors.As(err, &transition):
		return Error(c, http.StatusConflict, transition.Error())
	case errors.Is(err, jobs.ErrJobActive):
		return Error(c, http.StatusConflict, "job is currently active")
	case errors.Is(err, jobs.ErrJobNotActive):
		return Error(c, http.StatusConflict, "job has no active worker")
	default:
		return Error(c, http.StatusInternalServerError, fallback)
	}
}
