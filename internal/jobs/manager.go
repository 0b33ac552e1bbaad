package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/entity"
	"github.com/octobees/leads-generator/miner/internal/repository"
	"github.com/octobees/leads-generator/miner/internal/service"
)

var (
	// ErrJobActive rejects destructive operations on a job with a live worker.
	ErrJobActive = errors.New("job is currently active")
	// ErrJobNotActive rejects worker signals for jobs with no live worker.
	ErrJobNotActive = errors.New("job is not active")
)

// TransitionError reports a lifecycle action applied in the wrong status.
type TransitionError struct {
	Action string
	From   entity.JobStatus
}

// Error implements the error interface.
func (e TransitionError) Error() string {
	return fmt.Sprintf("cannot %s job in status %s", e.Action, e.From)
}

// CompanyMiner runs the discovery pipeline for one company.
type CompanyMiner interface {
	MineCompany(ctx context.Context, company entity.Company, contactsLimit int, emit func(dto.StreamEvent)) (service.MineResult, error)
}

// handle is the in-memory signal layer for one running worker. The database
// row stays the source of truth for status; these flags only tell the loop
// what to do next.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pausing bool
	stopped bool
}

func (h *handle) requestPause(v bool) {
	h.mu.Lock()
	h.pausing = v
	h.mu.Unlock()
}

func (h *handle) requestStop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *handle) shouldPause() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pausing
}

func (h *handle) shouldStop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Manager owns the job lifecycle: creation, start/pause/resume/stop/restart,
// deletion, and crash recovery. Each started job gets one worker goroutine
// that checkpoints progress to the database after every company.
type Manager struct {
	jobs      repository.JobsRepository
	companies repository.CompaniesRepository
	miner     CompanyMiner
	hub       *Hub
	logger    *log.Logger

	companyDelay    time.Duration
	defaultContacts int
	pausePoll       time.Duration
	sleep           func(ctx context.Context, d time.Duration)

	mu      sync.Mutex
	handles map[uuid.UUID]*handle
	wg      sync.WaitGroup
}

// ManagerOption configures optional behavior.
type ManagerOption func(*Manager)

// WithCompanyDelay sets the idle gap between companies.
func WithCompanyDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.companyDelay = d
		}
	}
}

// WithDefaultContactsPerCompany sets the fallback contact limit.
func WithDefaultContactsPerCompany(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.defaultContacts = n
		}
	}
}

// WithPausePollInterval sets how often a paused worker rechecks its flags.
func WithPausePollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pausePoll = d
		}
	}
}

// WithManagerSleep overrides delays, mainly for tests.
func WithManagerSleep(sleep func(ctx context.Context, d time.Duration)) ManagerOption {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager wires the orchestrator together.
func NewManager(
	jobsRepo repository.JobsRepository,
	companiesRepo repository.CompaniesRepository,
	miner CompanyMiner,
	hub *Hub,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		jobs:            jobsRepo,
		companies:       companiesRepo,
		miner:           miner,
		hub:             hub,
		logger:          log.Default(),
		companyDelay:    10 * time.Second,
		defaultContacts: 20,
		pausePoll:       time.Second,
		sleep:           sleepCtx,
		handles:         make(map[uuid.UUID]*handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates the request and stores a pending job. Every referenced
// company must exist.
func (m *Manager) Create(ctx context.Context, req dto.CreateJobRequest) (*entity.ScrapeJob, error) {
	if len(req.CompanyIDs) == 0 {
		return nil, fmt.Errorf("job must cover at least one company")
	}

	ids := make([]uuid.UUID, 0, len(req.CompanyIDs))
	for _, raw := range req.CompanyIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid company id %q", raw)
		}
		ids = append(ids, id)
	}

	found, err := m.companies.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve companies: %w", err)
	}
	if len(found) != len(ids) {
		return nil, fmt.Errorf("%d of %d companies do not exist", len(ids)-len(found), len(ids))
	}

	contacts := req.ContactsPerCompany
	if contacts <= 0 {
		contacts = m.defaultContacts
	}
	return m.jobs.Create(ctx, req.Name, ids, contacts)
}

// Get returns one job.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	return m.jobs.Get(ctx, id)
}

// List returns all jobs, newest first.
func (m *Manager) List(ctx context.Context) ([]entity.ScrapeJob, error) {
	return m.jobs.List(ctx)
}

// Start launches a worker for a pending job.
func (m *Manager) Start(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobPending {
		return nil, TransitionError{Action: "start", From: job.Status}
	}
	return m.launch(ctx, job)
}

// Restart re-arms a finished job: counters, error, and the current-company
// marker are reset and the status goes back to pending over the same company
// list. The job does not run until an explicit Start. Already mined companies
// are skipped by the pipeline, so the rerun only fills in what is missing.
func (m *Manager) Restart(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, TransitionError{Action: "restart", From: job.Status}
	}

	pending := entity.JobPending
	zero := 0
	job, err = m.jobs.Update(ctx, id, repository.JobPatch{
		Status:             &pending,
		ProcessedCompanies: &zero,
		TotalContactsFound: &zero,
		ClearError:         true,
		ClearCurrent:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("reset job: %w", err)
	}
	return job, nil
}

func (m *Manager) launch(ctx context.Context, job *entity.ScrapeJob) (*entity.ScrapeJob, error) {
	m.mu.Lock()
	if _, exists := m.handles[job.ID]; exists {
		m.mu.Unlock()
		return nil, ErrJobActive
	}
	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}
	m.handles[job.ID] = h
	m.mu.Unlock()

	running := entity.JobRunning
	updated, err := m.jobs.Update(ctx, job.ID, repository.JobPatch{Status: &running, ClearError: true})
	if err != nil {
		m.release(job.ID)
		cancel()
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer cancel()
		defer m.release(job.ID)
		defer func() {
			if r := recover(); r != nil {
				m.fail(runCtx, job.ID, fmt.Sprintf("worker panic: %v", r))
			}
		}()
		m.run(runCtx, updated, h)
	}()
	return updated, nil
}

// Pause asks a running worker to hold after the company it is on.
func (m *Manager) Pause(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobRunning {
		return nil, TransitionError{Action: "pause", From: job.Status}
	}

	h := m.lookup(id)
	if h == nil {
		return nil, ErrJobNotActive
	}
	h.requestPause(true)

	paused := entity.JobPaused
	return m.jobs.Update(ctx, id, repository.JobPatch{Status: &paused})
}

// Resume wakes a paused worker.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobPaused {
		return nil, TransitionError{Action: "resume", From: job.Status}
	}

	h := m.lookup(id)
	if h == nil {
		return nil, ErrJobNotActive
	}
	h.requestPause(false)

	running := entity.JobRunning
	return m.jobs.Update(ctx, id, repository.JobPatch{Status: &running})
}

// Stop tells a running or paused worker to finish up. The worker marks the
// job cancelled once it exits; already persisted contacts stay.
func (m *Manager) Stop(ctx context.Context, id uuid.UUID) (*entity.ScrapeJob, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobRunning && job.Status != entity.JobPaused {
		return nil, TransitionError{Action: "stop", From: job.Status}
	}

	h := m.lookup(id)
	if h == nil {
		return nil, ErrJobNotActive
	}
	h.requestStop()
	return job, nil
}

// Delete removes a job record. Active jobs must be stopped first.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if m.lookup(id) != nil {
		return ErrJobActive
	}

	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == entity.JobRunning || job.Status == entity.JobPaused {
		return ErrJobActive
	}
	return m.jobs.Delete(ctx, id)
}

// Subscribe attaches a listener to a job's event stream.
func (m *Manager) Subscribe(id uuid.UUID) (<-chan dto.StreamEvent, func()) {
	return m.hub.Subscribe(id)
}

// Progress summarizes a job for polling clients.
func (m *Manager) Progress(ctx context.Context, id uuid.UUID) (*dto.JobProgress, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	progress := &dto.JobProgress{
		JobID:              job.ID.String(),
		Status:             string(job.Status),
		TotalCompanies:     job.TotalCompanies,
		ProcessedCompanies: job.ProcessedCompanies,
		ContactsFound:      job.TotalContactsFound,
	}
	progress.CurrentCompany = job.CurrentCompanyName
	progress.ErrorMessage = job.ErrorMessage
	if job.Status == entity.JobRunning || job.Status == entity.JobPaused {
		remaining := job.TotalCompanies - job.ProcessedCompanies
		perCompany := m.companyDelay + 30*time.Second
		estimate := int((time.Duration(remaining)*perCompany + time.Minute - 1) / time.Minute)
		progress.EstimatedMinutesRemain = &estimate
	}
	return progress, nil
}

// Reconcile marks jobs that were active when the process last died as
// failed. Called once at startup, before the API accepts traffic.
func (m *Manager) Reconcile(ctx context.Context) error {
	for _, status := range []entity.JobStatus{entity.JobRunning, entity.JobPaused} {
		stale, err := m.jobs.ListByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("list %s jobs: %w", status, err)
		}
		for _, job := range stale {
			failed := entity.JobFailed
			msg := "interrupted by service restart"
			if _, err := m.jobs.Update(ctx, job.ID, repository.JobPatch{
				Status:       &failed,
				ErrorMessage: &msg,
				ClearCurrent: true,
			}); err != nil {
				return fmt.Errorf("mark job %s failed: %w", job.ID, err)
			}
			m.logger.Printf("reconciled stale %s job %s as failed", status, job.ID)
		}
	}
	return nil
}

// Close cancels all workers and waits for them to exit or the context to
// expire.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	for _, h := range m.handles {
		h.requestStop()
		h.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) lookup(id uuid.UUID) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[id]
}

func (m *Manager) release(id uuid.UUID) {
	m.mu.Lock()
	delete(m.handles, id)
	m.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
