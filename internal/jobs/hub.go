package jobs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/octobees/leads-generator/miner/internal/dto"
)

const subscriberBuffer = 64

// Hub fans progress events out to per-job subscribers. Slow subscribers drop
// events instead of blocking the worker; the database row always carries the
// authoritative progress for anyone who missed an update.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan dto.StreamEvent]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan dto.StreamEvent]struct{})}
}

// Subscribe registers a listener for one job's events. The returned cancel
// function must be called to release the subscription.
func (h *Hub) Subscribe(jobID uuid.UUID) (<-chan dto.StreamEvent, func()) {
	ch := make(chan dto.StreamEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan dto.StreamEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[jobID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, jobID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the job, dropping it for
// any subscriber whose buffer is full.
func (h *Hub) Publish(jobID uuid.UUID, event dto.StreamEvent) {
	event.JobID = jobID.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[jobID] {
		select {
		case ch <- event:
		default:
		}
	}
}
