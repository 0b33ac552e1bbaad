package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/octobees/leads-generator/miner/internal/dto"
	"github.com/octobees/leads-generator/miner/internal/emailx"
	"github.com/octobees/leads-generator/miner/internal/entity"
	"github.com/octobees/leads-generator/miner/internal/repository"
)

const (
	contactDelayMin   = 1 * time.Second
	contactDelayRange = 2 * time.Second
	emailsPerContact  = 3
)

// ProfileSource yields people associated with a company name.
type ProfileSource interface {
	DiscoverAll(ctx context.Context, companyName string, limit, maxPages int) []DiscoveredProfile
}

// CandidateScorer labels a generated email candidate.
type CandidateScorer interface {
	ScoreCandidate(ctx context.Context, candidate emailx.Pattern, companyDomain string) emailx.Label
}

// MineResult summarizes one company's run.
type MineResult struct {
	ContactsFound int
	EmailsFound   int
	Skipped       bool
}

// Miner runs the per-company pipeline: discover people, generate and score
// email candidates, persist contacts with their best addresses. Companies
// that already have contacts are skipped, which makes re-running a job over
// the same companies safe.
type Miner struct {
	contacts repository.ContactsRepository
	emails   repository.ContactEmailsRepository
	source   ProfileSource
	scorer   CandidateScorer

	maxSearchPages int
	sleep          func(ctx context.Context, d time.Duration)
}

// MinerOption configures optional behavior.
type MinerOption func(*Miner)

// WithMinerSleep overrides the inter-contact delay, mainly for tests.
func WithMinerSleep(sleep func(ctx context.Context, d time.Duration)) MinerOption {
	return func(m *Miner) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// NewMiner wires the pipeline together.
func NewMiner(
	contacts repository.ContactsRepository,
	emails repository.ContactEmailsRepository,
	source ProfileSource,
	scorer CandidateScorer,
	maxSearchPages int,
	opts ...MinerOption,
) *Miner {
	if maxSearchPages <= 0 {
		maxSearchPages = 1
	}
	m := &Miner{
		contacts:       contacts,
		emails:         emails,
		source:         source,
		scorer:         scorer,
		maxSearchPages: maxSearchPages,
		sleep:          sleepCtx,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MineCompany processes one company. Per-contact failures are skipped so one
// bad row never loses the rest of the company. The emit callback, when set,
// receives a contact_found event for every stored contact.
func (m *Miner) MineCompany(ctx context.Context, company entity.Company, contactsLimit int, emit func(dto.StreamEvent)) (MineResult, error) {
	existing, err := m.contacts.CountByCompany(ctx, company.ID)
	if err != nil {
		return MineResult{}, fmt.Errorf("count existing contacts: %w", err)
	}
	if existing > 0 {
		return MineResult{ContactsFound: existing, Skipped: true}, nil
	}

	profiles := m.source.DiscoverAll(ctx, company.Name, contactsLimit, m.maxSearchPages)

	var result MineResult
	for i, profile := range profiles {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if i > 0 {
			m.sleep(ctx, contactDelayMin+time.Duration(rand.Int63n(int64(contactDelayRange))))
		}

		contact, emailsStored, err := m.storeContact(ctx, company, profile)
		if err != nil {
			continue
		}
		result.ContactsFound++
		result.EmailsFound += emailsStored

		if emit != nil {
			emit(dto.StreamEvent{
				Type:        dto.EventContactFound,
				CompanyID:   company.ID.String(),
				CompanyName: company.Name,
				Contact: &dto.ContactInfo{
					ID:          contact.ID.String(),
					FirstName:   contact.FirstName,
					LastName:    profile.LastName,
					LinkedInURL: profile.ProfileURL,
					EmailsFound: emailsStored,
				},
			})
		}
	}
	return result, nil
}

func (m *Miner) storeContact(ctx context.Context, company entity.Company, profile DiscoveredProfile) (*entity.Contact, int, error) {
	input := repository.ContactInput{
		CompanyID: company.ID,
		FirstName: profile.FirstName,
	}
	if profile.LastName != "" {
		input.LastName = &profile.LastName
	}
	if profile.Headline != "" {
		input.Bio = &profile.Headline
	}
	if profile.ProfileURL != "" {
		input.LinkedInURL = &profile.ProfileURL
	}

	contact, err := m.contacts.Create(ctx, input)
	if err != nil {
		return nil, 0, fmt.Errorf("create contact: %w", err)
	}

	stored := 0
	for _, candidate := range m.bestCandidates(ctx, profile, company.NormalizedDomain) {
		deliverable := candidate.label == emailx.LabelHigh
		_, _, err := m.emails.Upsert(ctx, repository.ContactEmailInput{
			ContactID:     contact.ID,
			Email:         candidate.pattern.Email,
			Confidence:    string(candidate.label),
			IsDeliverable: &deliverable,
			Source:        entity.EmailSourcePattern,
		})
		if err != nil {
			continue
		}
		stored++
	}
	return contact, stored, nil
}

type scoredCandidate struct {
	pattern emailx.Pattern
	label   emailx.Label
}

// bestCandidates scores every generated pattern and keeps the strongest few,
// dropping anything invalid. Ties break toward the more common pattern.
func (m *Miner) bestCandidates(ctx context.Context, profile DiscoveredProfile, domain string) []scoredCandidate {
	patterns := emailx.GeneratePatterns(profile.FirstName, profile.LastName, domain)
	if len(patterns) == 0 {
		return nil
	}

	candidates := make([]scoredCandidate, 0, len(patterns))
	for _, p := range patterns {
		label := m.scorer.ScoreCandidate(ctx, p, domain)
		if label == emailx.LabelInvalid {
			continue
		}
		candidates = append(candidates, scoredCandidate{pattern: p, label: label})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		wi, wj := labelWeight(candidates[i].label), labelWeight(candidates[j].label)
		if wi != wj {
			return wi > wj
		}
		return candidates[i].pattern.Rank < candidates[j].pattern.Rank
	})
	if len(candidates) > emailsPerContact {
		candidates = candidates[:emailsPerContact]
	}
	return candidates
}

func labelWeight(label emailx.Label) int {
	switch label {
	case emailx.LabelHigh:
		return 4
	case emailx.LabelMedium:
		return 3
	case emailx.LabelUncertain:
		return 2
	case emailx.LabelLow:
		return 1
	default:
		return 0
	}
}
