package memory

import (
	"context"
	"sync"

	"github.com/gantryio/gantry/pkg/domain"
)

// AuditLog implements ports.AuditLog as an append-only slice.
// Entries are never updated or removed.
type AuditLog struct {
	mu      sync.RWMutex
	entries []*domain.AuditEntry

	// failNext forces the next Append to fail; used by engine tests to
	// verify that transitions do not commit without their audit record.
	failNext error
}

// NewAuditLog creates an empty in-memory audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// FailNextAppend makes the next Append return err.
func (l *AuditLog) FailNextAppend(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Append records one entry.
func (l *AuditLog) Append(ctx context.Context, entry *domain.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return err
	}

	cp := *entry
	l.entries = append(l.entries, &cp)
	return nil
}

// ByEntity returns the trail for one entity, oldest first.
func (l *AuditLog) ByEntity(ctx context.Context, entityID string) ([]*domain.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.AuditEntry
	for _, e := range l.entries {
		if e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// All returns every entry, oldest first.
func (l *AuditLog) All(ctx context.Context) ([]*domain.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.AuditEntry, 0, len(l.entries))
	for _, e := range l.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
