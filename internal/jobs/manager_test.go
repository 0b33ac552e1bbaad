package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/entity"
	"github.com/octobees/leads-generator/miner/internal/repository"
	"github.com/octobees/leads-generator/miner/internal/service"
)

type memJobsRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*entity.ScrapeJob
}

func newMemJobsRepo() *memJobsRepo {
	return &memJobsRepo{jobs: make(map[uuid.UUID]*entity.ScrapeJob)}
}

func (m *memJobsRepo) Create(_ context.Context, name string, companyIDs []uuid.UUID, contactsPerCompany int) (*entity.ScrapeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &entity.ScrapeJob{
		ID:                 uuid.New(),
		Name:               name,
		CompanyIDs:         companyIDs,
		Status:             entity.JobPending,
		TotalCompanies:     len(companyIDs),
		ContactsPerCompany: contactsPerCompany,
		CreatedAt:          time.Now(),
	}
	m.jobs[job.ID] = job
	copied := *job
	return &copied, nil
}

func (m *memJobsRepo) Get(_ context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memJobsRepo) List(_ context.Context) ([]entity.ScrapeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.ScrapeJob
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	return out, nil
}

func (m *memJobsRepo) ListByStatus(_ context.Context, status entity.JobStatus) ([]entity.ScrapeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.ScrapeJob
	for _, job := range m.jobs {
		if job.Status == status {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memJobsRepo) Update(_ context.Context, id uuid.UUID, patch repository.JobPatch) (*entity.ScrapeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	if patch.Status != nil {
		job.Status = *patch.Status
		now := time.Now()
		switch {
		case *patch.Status == entity.JobRunning && job.StartedAt == nil:
			job.StartedAt = &now
		case patch.Status.Terminal():
			job.CompletedAt = &now
		case *patch.Status == entity.JobPending:
			job.StartedAt = nil
			job.CompletedAt = nil
		}
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

func (m *memJobsRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return repository.ErrJobNotFound
	}
	delete(m.jobs, id)
	return nil
}

type fixedCompaniesRepo struct {
	companies map[uuid.UUID]entity.Company
}

func (f *fixedCompaniesRepo) Upsert(_ context.Context, _ repository.CompanyInput) (*entity.Company, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fixedCompaniesRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Company, error) {
	c, ok := f.companies[id]
	if !ok {
		return nil, repository.ErrCompanyNotFound
	}
	return &c, nil
}

func (f *fixedCompaniesRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]entity.Company, error) {
	var out []entity.Company
	for _, id := range ids {
		if c, ok := f.companies[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fixedCompaniesRepo) List(_ context.Context, _ dto.CompanyFilter) ([]entity.Company, error) {
	return nil, nil
}

func (f *fixedCompaniesRepo) BulkUpsert(_ context.Context, _ []repository.CompanyInput) (repository.BulkUpsertResult, error) {
	return repository.BulkUpsertResult{}, nil
}

// gateMiner lets a test hold the worker inside a company until released.
type gateMiner struct {
	entered  chan string
	release  chan struct{}
	failOn   map[string]bool
	contacts int
}

func (g *gateMiner) MineCompany(ctx context.Context, company entity.Company, _ int, emit func(dto.StreamEvent)) (service.MineResult, error) {
	if g.entered != nil {
		g.entered <- company.Name
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return service.MineResult{}, ctx.Err()
		}
	}
	if g.failOn[company.Name] {
		return service.MineResult{}, fmt.Errorf("discovery backend unreachable")
	}
	if emit != nil {
		emit(dto.StreamEvent{Type: dto.EventContactFound, CompanyName: company.Name})
	}
	return service.MineResult{ContactsFound: g.contacts}, nil
}

type fixture struct {
	manager   *Manager
	jobsRepo  *memJobsRepo
	companies []entity.Company
}

func newFixture(t *testing.T, miner CompanyMiner, companyCount int) *fixture {
	t.Helper()
	companiesRepo := &fixedCompaniesRepo{companies: make(map[uuid.UUID]entity.Company)}
	var companies []entity.Company
	for i := 0; i < companyCount; i++ {
		c := entity.Company{
			ID:               uuid.New(),
			Name:             fmt.Sprintf("Company %d", i+1),
			NormalizedDomain: fmt.Sprintf("company%d.example", i+1),
		}
		companiesRepo.companies[c.ID] = c
		companies = append(companies, c)
	}

	jobsRepo := newMemJobsRepo()
	manager := NewManager(jobsRepo, companiesRepo, miner, NewHub(),
		WithCompanyDelay(0),
		WithPausePollInterval(time.Millisecond),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		manager.Close(ctx)
	})
	return &fixture{manager: manager, jobsRepo: jobsRepo, companies: companies}
}

func (f *fixture) createJob(t *testing.T, contactsPerCompany int) *entity.ScrapeJob {
	t.Helper()
	ids := make([]string, len(f.companies))
	for i, c := range f.companies {
		ids[i] = c.ID.String()
	}
	job, err := f.manager.Create(context.Background(), dto.CreateJobRequest{
		Name:               "test job",
		CompanyIDs:         ids,
		ContactsPerCompany: contactsPerCompany,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func waitForStatus(t *testing.T, repo *memJobsRepo, id uuid.UUID, status entity.JobStatus) *entity.ScrapeJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == status {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	job, _ := repo.Get(context.Background(), id)
	t.Fatalf("timed out waiting for status %s, job is %s", status, job.Status)
	return nil
}

func TestCreateRejectsUnknownCompany(t *testing.T) {
	f := newFixture(t, &gateMiner{contacts: 1}, 1)

	_, err := f.manager.Create(context.Background(), dto.CreateJobRequest{
		Name:       "bad",
		CompanyIDs: []string{uuid.New().String()},
	})
	if err == nil {
		t.Fatal("expected error for unknown company")
	}
}

func TestCreateRejectsMalformedID(t *testing.T) {
	f := newFixture(t, &gateMiner{contacts: 1}, 1)

	_, err := f.manager.Create(context.Background(), dto.CreateJobRequest{
		Name:       "bad",
		CompanyIDs: []string{"not-a-uuid"},
	})
	if err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestJobRunsToCompletion(t *testing.T) {
	f := newFixture(t, &gateMiner{contacts: 2}, 3)
	job := f.createJob(t, 10)

	events, cancel := f.manager.Subscribe(job.ID)
	defer cancel()

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := waitForStatus(t, f.jobsRepo, job.ID, entity.JobCompleted)
	if done.ProcessedCompanies != 3 {
		t.Fatalf("expected 3 processed, got %d", done.ProcessedCompanies)
	}
	if done.TotalContactsFound != 6 {
		t.Fatalf("expected 6 contacts, got %d", done.TotalContactsFound)
	}
	if done.CurrentCompanyName != nil {
		t.Fatal("expected current company cleared")
	}
	if done.CompletedAt == nil || done.StartedAt == nil {
		t.Fatal("expected timestamps stamped")
	}

	sawComplete := false
	timeout := time.After(time.Second)
	for !sawComplete {
		select {
		case event := <-events:
			if event.JobID != job.ID.String() {
				t.Fatalf("event for wrong job: %s", event.JobID)
			}
			if event.Type == dto.EventComplete {
				sawComplete = true
				if event.ContactsFound != 6 {
					t.Fatalf("complete event reports %d contacts", event.ContactsFound)
				}
			}
		case <-timeout:
			t.Fatal("never saw complete event")
		}
	}
}

func TestStartRejectsNonPending(t *testing.T) {
	f := newFixture(t, &gateMiner{contacts: 1}, 1)
	job := f.createJob(t, 5)

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, f.jobsRepo, job.ID, entity.JobCompleted)

	_, err := f.manager.Start(context.Background(), job.ID)
	var transition TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestCompanyFailureDoesNotStopJob(t *testing.T) {
	miner := &gateMiner{contacts: 2, failOn: map[string]bool{"Company 2": true}}
	f := newFixture(t, miner, 3)
	job := f.createJob(t, 5)

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := waitForStatus(t, f.jobsRepo, job.ID, entity.JobCompleted)
	if done.ProcessedCompanies != 3 {
		t.Fatalf("expected all companies processed, got %d", done.ProcessedCompanies)
	}
	if done.TotalContactsFound != 4 {
		t.Fatalf("expected 4 contacts from the healthy companies, got %d", done.TotalContactsFound)
	}
	if done.ErrorMessage == nil {
		t.Fatal("expected error message recorded")
	}
}

func TestPauseAndResume(t *testing.T) {
	miner := &gateMiner{contacts: 1, entered: make(chan string), release: make(chan struct{})}
	f := newFixture(t, miner, 2)
	job := f.createJob(t, 5)

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	<-miner.entered
	paused, err := f.manager.Pause(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != entity.JobPaused {
		t.Fatalf("expected paused status, got %s", paused.Status)
	}
	miner.release <- struct{}{}

	// The worker finishes the in-flight company, checkpoints, then holds.
	deadline := time.Now().Add(2 * time.Second)
	for {
		job2, _ := f.jobsRepo.Get(context.Background(), job.ID)
		if job2.ProcessedCompanies == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never checkpointed the first company")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if _, err := f.manager.Resume(context.Background(), job.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	<-miner.entered
	miner.release <- struct{}{}

	done := waitForStatus(t, f.jobsRepo, job.ID, entity.JobCompleted)
	if done.ProcessedCompanies != 2 {
		t.Fatalf("expected 2 processed after resume, got %d", done.ProcessedCompanies)
	}
}

func TestStopCancelsJob(t *testing.T) {
	miner := &gateMiner{contacts: 1, entered: make(chan string), release: make(chan struct{})}
	f := newFixture(t, miner, 3)
	job := f.createJob(t, 5)

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	<-miner.entered
	if _, err := f.manager.Stop(context.Background(), job.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	miner.release <- struct{}{}

	done := waitForStatus(t, f.jobsRepo, job.ID, entity.JobCancelled)
	if done.ProcessedCompanies != 1 {
		t.Fatalf("expected 1 processed before cancel, got %d", done.ProcessedCompanies)
	}
	if done.TotalContactsFound != 1 {
		t.Fatalf("expected persisted contacts kept, got %d", done.TotalContactsFound)
	}
}

func TestStopRejectsPendingJob(t *testing.T) {
	f := newFixture(t, &gateMiner{contacts: 1}, 1)
	job := f.createJob(t, 5)

	_, err := f.manager.Stop(context.Background(), job.ID)
	var transition TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestRestartResetsToPending(t *testing.T) {
	miner := &gateMiner{contacts: 2, entered: make(chan string, 4)}
	f := newFixture(t, miner, 2)
	job := f.createJob(t, 5)

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, f.jobsRepo, job.ID, entity.JobCompleted)
	<-miner.entered
	<-miner.entered

	rearmed, err := f.manager.Restart(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if rearmed.Status != entity.JobPending {
		t.Fatalf("expected pending after restart, got %s", rearmed.Status)
	}
	if rearmed.ProcessedCompanies != 0 || rearmed.TotalContactsFound != 0 {
		t.Fatalf("expected counters reset, got %d processed, %d contacts",
			rearmed.ProcessedCompanies, rearmed.TotalContactsFound)
	}
	if rearmed.StartedAt != nil || rearmed.CompletedAt != nil {
		t.Fatal("expected timestamps cleared")
	}

	select {
	case name := <-miner.entered:
		t.Fatalf("worker ran without an explicit start (mining %q)", name)
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start after restart: %v", err)
	}
	done := waitForStatus(t, f.jobsRepo, job.ID, entity.JobCompleted)
	if done.ProcessedCompanies != 2 {
		t.Fatalf("expected full rerun, got %d processed", done.ProcessedCompanies)
	}
	if done.TotalContactsFound != 4 {
		t.Fatalf("expected counters reset before rerun, got %d", done.TotalContactsFound)
	}
}

func TestRestartRejectsActiveJob(t *testing.T) {
	miner := &gateMiner{contacts: 1, entered: make(chan string), release: make(chan struct{})}
	f := newFixture(t, miner, 1)
	job := f.createJob(t, 5)

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-miner.entered

	_, err := f.manager.Restart(context.Background(), job.ID)
	var transition TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected TransitionError, got %v", err)
	}

	miner.release <- struct{}{}
	waitForStatus(t, f.jobsRepo, job.ID, entity.JobCompleted)
}

// panicMiner simulates a pipeline bug that escapes error handling entirely.
type panicMiner struct{}

func (panicMiner) MineCompany(context.Context, entity.Company, int, func(dto.StreamEvent)) (service.MineResult, error) {
	panic("discovery client state corrupted")
}

func TestWorkerPanicMarksJobFailed(t *testing.T) {
	f := newFixture(t, panicMiner{}, 1)
	job := f.createJob(t, 5)

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	failed := waitForStatus(t, f.jobsRepo, job.ID, entity.JobFailed)
	if failed.ErrorMessage == nil || !strings.Contains(*failed.ErrorMessage, "panic") {
		t.Fatalf("expected panic recorded on the job, got %v", failed.ErrorMessage)
	}
	deadline := time.Now().Add(time.Second)
	for f.manager.lookup(job.ID) != nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if f.manager.lookup(job.ID) != nil {
		t.Fatal("expected worker handle released after panic")
	}
}

func TestDeleteRefusedWhileActive(t *testing.T) {
	miner := &gateMiner{contacts: 1, entered: make(chan string), release: make(chan struct{})}
	f := newFixture(t, miner, 1)
	job := f.createJob(t, 5)

	if _, err := f.manager.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-miner.entered

	if err := f.manager.Delete(context.Background(), job.ID); err != ErrJobActive {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}

	miner.release <- struct{}{}
	waitForStatus(t, f.jobsRepo, job.ID, entity.JobCompleted)

	if err := f.manager.Delete(context.Background(), job.ID); err != nil {
		t.Fatalf("delete after completion: %v", err)
	}
	if _, err := f.jobsRepo.Get(context.Background(), job.ID); err != repository.ErrJobNotFound {
		t.Fatal("expected job removed")
	}
}

func TestReconcileMarksStaleJobsFailed(t *testing.T) {
	f := newFixture(t, &gateMiner{contacts: 1}, 1)
	job := f.createJob(t, 5)

	running := entity.JobRunning
	if _, err := f.jobsRepo.Update(context.Background(), job.ID, repository.JobPatch{Status: &running}); err != nil {
		t.Fatalf("seed running status: %v", err)
	}

	if err := f.manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	reconciled, _ := f.jobsRepo.Get(context.Background(), job.ID)
	if reconciled.Status != entity.JobFailed {
		t.Fatalf("expected failed, got %s", reconciled.Status)
	}
	if reconciled.ErrorMessage == nil {
		t.Fatal("expected error message set")
	}
}

func TestProgressReflectsJobRow(t *testing.T) {
	f := newFixture(t, &gateMiner{contacts: 1}, 2)
	job := f.createJob(t, 5)

	progress, err := f.manager.Progress(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.Status != string(entity.JobPending) {
		t.Fatalf("unexpected status %s", progress.Status)
	}
	if progress.TotalCompanies != 2 {
		t.Fatalf("unexpected total %d", progress.TotalCompanies)
	}
}
