package approval

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	careErrors "github.com/carelane/carelane/internal/errors"
)

// ResolverChannel parks prompts until an external caller resolves them by id.
// It backs transports where the decision arrives on a separate request, such
// as the HTTP decisions endpoint.
type ResolverChannel struct {
	mu       sync.Mutex
	waiting  map[string]waiter
	resolved map[string]bool
}

type waiter struct {
	pending *PendingApproval
	ch      chan Decision
}

func NewResolverChannel() *ResolverChannel {
	return &ResolverChannel{
		waiting:  make(map[string]waiter),
		resolved: make(map[string]bool),
	}
}

// Prompt registers the pending approval and blocks until Resolve is called
// with its id or ctx is done.
func (r *ResolverChannel) Prompt(ctx context.Context, pending *PendingApproval) (Decision, error) {
	ch := make(chan Decision, 1)

	r.mu.Lock()
	r.waiting[pending.ID] = waiter{pending: pending, ch: ch}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.waiting, pending.ID)
		r.mu.Unlock()
	}()

	select {
	case decision := <-ch:
		return decision, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// Resolve delivers a decision for a parked approval. The first decision wins;
// a duplicate for an already resolved id is logged and ignored. Ids that were
// never parked report ErrNotFound so a typo does not pass silently.
func (r *ResolverChannel) Resolve(id string, decision Decision) error {
	r.mu.Lock()
	w, ok := r.waiting[id]
	if ok {
		delete(r.waiting, id)
		r.resolved[id] = true
	}
	duplicate := !ok && r.resolved[id]
	r.mu.Unlock()

	if duplicate {
		slog.Warn("duplicate decision ignored", "approval_id", id)
		return nil
	}
	if !ok {
		slog.Warn("decision for unknown approval", "approval_id", id)
		return careErrors.NotFound("approval %s", id)
	}
	w.ch <- decision
	return nil
}

// Waiting lists the approvals currently parked, oldest first.
func (r *ResolverChannel) Waiting() []*PendingApproval {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*PendingApproval, 0, len(r.waiting))
	for _, w := range r.waiting {
		pending := *w.pending
		out = append(out, &pending)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
