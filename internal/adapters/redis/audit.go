package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/gantryio/gantry/pkg/domain"
)

// AuditLog implements ports.AuditLog on Redis Streams. Streams are
// append-only by construction, which matches the port's contract: nothing in
// the API can update or delete an entry.
//
// Each entity gets its own stream for cheap per-entity trails, and every
// entry is mirrored to one global stream for feed consumers.
type AuditLog struct {
	client *backend.Client
	prefix string
}

// NewAuditLog creates an audit log from an existing client.
func NewAuditLog(client *backend.Client, prefix string) *AuditLog {
	if prefix == "" {
		prefix = "gantry:"
	}
	return &AuditLog{client: client, prefix: prefix}
}

func (a *AuditLog) entityKey(entityID string) string { return a.prefix + "audit:" + entityID }
func (a *AuditLog) globalKey() string                { return a.prefix + "audit:_all" }

// Append durably records one entry.
func (a *AuditLog) Append(ctx context.Context, entry *domain.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	values := map[string]any{"entry": string(data)}
	pipe := a.client.TxPipeline()
	pipe.XAdd(ctx, &backend.XAddArgs{Stream: a.entityKey(entry.EntityID), Values: values})
	pipe.XAdd(ctx, &backend.XAddArgs{Stream: a.globalKey(), Values: values})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ByEntity returns the trail for one entity, oldest first. Stream IDs are
// monotonically increasing, so XRANGE order is insertion order.
func (a *AuditLog) ByEntity(ctx context.Context, entityID string) ([]*domain.AuditEntry, error) {
	msgs, err := a.client.XRange(ctx, a.entityKey(entityID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit stream: %w", err)
	}
	return decodeMessages(msgs)
}

// All returns the global trail, oldest first.
func (a *AuditLog) All(ctx context.Context) ([]*domain.AuditEntry, error) {
	msgs, err := a.client.XRange(ctx, a.globalKey(), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit stream: %w", err)
	}
	return decodeMessages(msgs)
}

func decodeMessages(msgs []backend.XMessage) ([]*domain.AuditEntry, error) {
	out := make([]*domain.AuditEntry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["entry"].(string)
		if !ok {
			return nil, fmt.Errorf("audit message %s has no entry field", msg.ID)
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entry %s: %w", msg.ID, err)
		}
		out = append(out, &entry)
	}
	return out, nil
}
