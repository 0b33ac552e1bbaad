package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/entity"
	"github.com/octobees/leads-generator/miner/internal/jobs"
	"github.com/octobees/leads-generator/miner/internal/repository"
	"github.com/octobees/leads-generator/miner/internal/service"
)

type jobsTestRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.ScrapeJob
}

func newJobsTestRepo() *jobsTestRepo {
	return &jobsTestRepo{rows: make(map[uuid.UUID]*entity.ScrapeJob)}
}

func (r *jobsTestRepo) Create(_ context.Context, name string, companyIDs []uuid.UUID, contactsPerCompany int) (*entity.ScrapeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := &entity.ScrapeJob{
		ID:                 uuid.New(),
		Name:               name,
		CompanyIDs:         companyIDs,
		Status:             entity.JobPending,
		TotalCompanies:     len(companyIDs),
		ContactsPerCompany: contactsPerCompany,
		CreatedAt:          time.Now(),
	}
	r.rows[job.ID] = job
	copied := *job
	return &copied, nil
}

func (r *jobsTestRepo) Get(_ context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *jobsTestRepo) List(_ context.Context) ([]entity.ScrapeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.ScrapeJob
	for _, job := range r.rows {
		out = append(out, *job)
	}
	return out, nil
}

func (r *jobsTestRepo) ListByStatus(_ context.Context, status entity.JobStatus) ([]entity.ScrapeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.ScrapeJob
	for _, job := range r.rows {
		if job.Status == status {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *jobsTestRepo) Update(_ context.Context, id uuid.UUID, patch repository.JobPatch) (*entity.ScrapeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.ProcessedCompanies != nil {
		job.ProcessedCompanies = *patch.ProcessedCompanies
	}
	if patch.TotalContactsFound != nil {
		job.TotalContactsFound = *patch.TotalContactsFound
	}
	if patch.ErrorMessage != nil {
		job.ErrorMessage = patch.ErrorMessage
	}
	if patch.ClearError {
		job.ErrorMessage = nil
	}
	if patch.CurrentCompanyID != nil {
		job.CurrentCompanyID = patch.CurrentCompanyID
	}
	if patch.CurrentCompanyName != nil {
		job.CurrentCompanyName = patch.CurrentCompanyName
	}
	if patch.ClearCurrent {
		job.CurrentCompanyID = nil
		job.CurrentCompanyName = nil
	}
	copied := *job
	return &copied, nil
}

func (r *jobsTestRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repository.ErrJobNotFound
	}
	delete(r.rows, id)
	return nil
}

type knownCompaniesRepo struct {
	stubCompaniesRepository
	known map[uuid.UUID]entity.Company
}

func (r *knownCompaniesRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]entity.Company, error) {
	var out []entity.Company
	for _, id := range ids {
		if c, ok := r.known[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type instantMiner struct{}

func (instantMiner) MineCompany(_ context.Context, _ entity.Company, _ int, _ func(dto.StreamEvent)) (service.MineResult, error) {
	return service.MineResult{ContactsFound: 1}, nil
}

type jobsHandlerFixture struct {
	handler   *JobsHandler
	repo      *jobsTestRepo
	companyID uuid.UUID
}

func newJobsHandlerFixture(t *testing.T) *jobsHandlerFixture {
	t.Helper()
	company := entity.Company{ID: uuid.New(), Name: "Acme", NormalizedDomain: "acme.com"}
	companies := &knownCompaniesRepo{known: map[uuid.UUID]entity.Company{company.ID: company}}
	repo := newJobsTestRepo()
	manager := jobs.NewManager(repo, companies, instantMiner{}, jobs.NewHub(),
		jobs.WithCompanyDelay(0),
		jobs.WithPausePollInterval(time.Millisecond),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		manager.Close(ctx)
	})
	return &jobsHandlerFixture{handler: NewJobsHandler(manager), repo: repo, companyID: company.ID}
}

func (f *jobsHandlerFixture) createJob(t *testing.T) uuid.UUID {
	t.Helper()
	e := echo.New()
	body := fmt.Sprintf(`{"name":"run","company_ids":[%q]}`, f.companyID)
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	_ = f.handler.Create(e.NewContext(req, rec))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create job: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	all, _ := f.repo.List(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected 1 job, got %d", len(all))
	}
	return all[0].ID
}

func jobAction(handler echo.HandlerFunc, method, path string, id uuid.UUID) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	_ = handler(c)
	return rec
}

func TestJobsHandler_CreateValidation(t *testing.T) {
	f := newJobsHandlerFixture(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"company_ids":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	_ = f.handler.Create(e.NewContext(req, rec))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestJobsHandler_GetNotFound(t *testing.T) {
	f := newJobsHandlerFixture(t)

	rec := jobAction(f.handler.Get, http.MethodGet, "/jobs/x", uuid.New())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestJobsHandler_StartRunsJob(t *testing.T) {
	f := newJobsHandlerFixture(t)
	jobID := f.createJob(t)

	rec := jobAction(f.handler.Start, http.MethodPost, "/jobs/x/start", jobID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, _ := f.repo.Get(context.Background(), jobID)
		if job.Status == entity.JobCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status %s", job.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}

	rec = jobAction(f.handler.Start, http.MethodPost, "/jobs/x/start", jobID)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for completed job, got %d", rec.Code)
	}
}

func TestJobsHandler_StopPendingConflicts(t *testing.T) {
	f := newJobsHandlerFixture(t)
	jobID := f.createJob(t)

	rec := jobAction(f.handler.Stop, http.MethodPost, "/jobs/x/stop", jobID)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestJobsHandler_StreamSendsSnapshot(t *testing.T) {
	f := newJobsHandlerFixture(t)
	jobID := f.createJob(t)

	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/jobs/x/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(jobID.String())

	_ = f.handler.Stream(c)

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("expected SSE framing, got %q", body)
	}
	if !strings.Contains(body, `"type":"status"`) {
		t.Fatalf("expected status snapshot, got %q", body)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestJobsHandler_DeleteCompletedJob(t *testing.T) {
	f := newJobsHandlerFixture(t)
	jobID := f.createJob(t)

	rec := jobAction(f.handler.Delete, http.MethodDelete, "/jobs/x", jobID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, err := f.repo.Get(context.Background(), jobID); err != repository.ErrJobNotFound {
		t.Fatal("expected job removed")
	}
}
