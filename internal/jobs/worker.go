package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/entity"
	"github.com/octobees/leads-generator/miner/internal/repository"
)

// run is the worker loop for one job. It walks the company list from the
// last checkpoint, persists progress after every company, and treats
// per-company failures as non-fatal. The loop index doubles as the resume
// point: processed_companies in the row is always the count of fully handled
// companies.
func (m *Manager) run(ctx context.Context, job *entity.ScrapeJob, h *handle) {
	m.hub.Publish(job.ID, dto.StreamEvent{
		Type:           dto.EventStatus,
		Message:        "job started",
		TotalCompanies: job.TotalCompanies,
	})

	companies, err := m.companies.GetByIDs(ctx, job.CompanyIDs)
	if err != nil {
		m.fail(ctx, job.ID, fmt.Sprintf("resolve companies: %v", err))
		return
	}
	if len(companies) != len(job.CompanyIDs) {
		m.fail(ctx, job.ID, fmt.Sprintf("%d of %d companies no longer exist", len(job.CompanyIDs)-len(companies), len(job.CompanyIDs)))
		return
	}

	processed := job.ProcessedCompanies
	contactsTotal := job.TotalContactsFound

	for idx := processed; idx < len(companies); idx++ {
		if h.shouldStop() || ctx.Err() != nil {
			m.finish(ctx, job.ID, entity.JobCancelled, contactsTotal)
			return
		}
		if !m.holdWhilePaused(ctx, job.ID, h) {
			m.finish(ctx, job.ID, entity.JobCancelled, contactsTotal)
			return
		}

		company := companies[idx]
		if _, err := m.jobs.Update(ctx, job.ID, repository.JobPatch{
			CurrentCompanyID:   &company.ID,
			CurrentCompanyName: &company.Name,
		}); err != nil {
			m.logger.Printf("job %s: update current company: %v", job.ID, err)
		}
		m.hub.Publish(job.ID, dto.StreamEvent{
			Type:           dto.EventCompanyProgress,
			CompanyID:      company.ID.String(),
			CompanyName:    company.Name,
			CurrentCompany: idx + 1,
			TotalCompanies: job.TotalCompanies,
		})

		result, mineErr := m.miner.MineCompany(ctx, company, job.ContactsPerCompany, func(event dto.StreamEvent) {
			m.hub.Publish(job.ID, event)
		})
		if mineErr != nil {
			if ctx.Err() != nil {
				m.finish(ctx, job.ID, entity.JobCancelled, contactsTotal)
				return
			}
			msg := fmt.Sprintf("company %s: %v", company.Name, mineErr)
			if _, err := m.jobs.Update(ctx, job.ID, repository.JobPatch{ErrorMessage: &msg}); err != nil {
				m.logger.Printf("job %s: record company error: %v", job.ID, err)
			}
			m.hub.Publish(job.ID, dto.StreamEvent{
				Type:        dto.EventError,
				CompanyID:   company.ID.String(),
				CompanyName: company.Name,
				Error:       mineErr.Error(),
			})
		} else if !result.Skipped {
			contactsTotal += result.ContactsFound
		}

		processed = idx + 1
		if _, err := m.jobs.Update(ctx, job.ID, repository.JobPatch{
			ProcessedCompanies: &processed,
			TotalContactsFound: &contactsTotal,
		}); err != nil {
			m.logger.Printf("job %s: checkpoint progress: %v", job.ID, err)
		}
		m.hub.Publish(job.ID, dto.StreamEvent{
			Type:           dto.EventCompanyComplete,
			CompanyID:      company.ID.String(),
			CompanyName:    company.Name,
			ContactsFound:  result.ContactsFound,
			CurrentCompany: processed,
			TotalCompanies: job.TotalCompanies,
			Progress:       processed * 100 / job.TotalCompanies,
		})

		if idx < len(companies)-1 && !h.shouldStop() {
			m.sleep(ctx, m.companyDelay)
		}
	}

	m.finish(ctx, job.ID, entity.JobCompleted, contactsTotal)
}

// holdWhilePaused blocks while the pause flag is up. Returns false when the
// hold ended because of a stop request or cancellation.
func (m *Manager) holdWhilePaused(ctx context.Context, jobID uuid.UUID, h *handle) bool {
	if !h.shouldPause() {
		return true
	}
	m.hub.Publish(jobID, dto.StreamEvent{Type: dto.EventStatus, Message: "job paused"})
	for {
		if h.shouldStop() || ctx.Err() != nil {
			return false
		}
		if !h.shouldPause() {
			m.hub.Publish(jobID, dto.StreamEvent{Type: dto.EventStatus, Message: "job resumed"})
			return true
		}
		m.sleep(ctx, m.pausePoll)
	}
}

func (m *Manager) fail(ctx context.Context, jobID uuid.UUID, msg string) {
	writeCtx, cancel := finalWriteContext(ctx)
	defer cancel()

	failed := entity.JobFailed
	if _, err := m.jobs.Update(writeCtx, jobID, repository.JobPatch{
		Status:       &failed,
		ErrorMessage: &msg,
		ClearCurrent: true,
	}); err != nil {
		m.logger.Printf("job %s: mark failed: %v", jobID, err)
	}
	m.hub.Publish(jobID, dto.StreamEvent{Type: dto.EventError, Error: msg})
}

func (m *Manager) finish(ctx context.Context, jobID uuid.UUID, status entity.JobStatus, contactsTotal int) {
	writeCtx, cancel := finalWriteContext(ctx)
	defer cancel()

	if _, err := m.jobs.Update(writeCtx, jobID, repository.JobPatch{
		Status:       &status,
		ClearCurrent: true,
	}); err != nil {
		m.logger.Printf("job %s: mark %s: %v", jobID, status, err)
	}
	m.hub.Publish(jobID, dto.StreamEvent{
		Type:          dto.EventComplete,
		Message:       fmt.Sprintf("job %s", status),
		ContactsFound: contactsTotal,
	})
}

// finalWriteContext keeps the last status write alive even when the worker
// context was cancelled during shutdown.
func finalWriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}
