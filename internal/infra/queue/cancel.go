package queue

import (
	"context"

	"github.com/google/uuid"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// StoreCancelSignal checks task revocation by polling the same TaskStore the
// worker pool reports progress through.
type StoreCancelSignal struct {
	store ingest.TaskStore
}

// NewStoreCancelSignal constructs a CancelSignal backed by store.
func NewStoreCancelSignal(store ingest.TaskStore) *StoreCancelSignal {
	return &StoreCancelSignal{store: store}
}

// Cancelled reports whether the task has been marked REVOKED.
func (s *StoreCancelSignal) Cancelled(ctx context.Context, taskID uuid.UUID) bool {
	task, found, err := s.store.Get(ctx, taskID)
	if err != nil || !found {
		return false
	}
	return task.State == ingest.TaskStateRevoked
}

var _ ingest.CancelSignal = (*StoreCancelSignal)(nil)
