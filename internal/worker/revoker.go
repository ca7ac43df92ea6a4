package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Revoker tracks in-flight recognitions on this process so a cancellation can
// abort them early.
type Revoker struct {
	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelFunc
}

func NewRevoker() *Revoker {
	return &Revoker{inflight: make(map[uuid.UUID]context.CancelFunc)}
}

func (r *Revoker) register(photoID uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[photoID] = cancel
}

func (r *Revoker) unregister(photoID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, photoID)
}

// Revoke cancels the recognition of photoID if it runs here. It reports
// whether anything was cancelled.
func (r *Revoker) Revoke(photoID uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.inflight[photoID]
	delete(r.inflight, photoID)
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// InFlight returns the number of recognitions currently registered.
func (r *Revoker) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
