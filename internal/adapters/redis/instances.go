package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	backend "github.com/redis/go-redis/v9"

	"github.com/gantryio/gantry/pkg/domain"
)

// casScript compares the stored instance's status before replacing it.
// Returns 1 on success, 0 when the key is missing, or the observed status
// string on a mismatch.
var casScript = backend.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
	return 0
end
local obj = cjson.decode(cur)
if obj.status ~= ARGV[1] then
	return obj.status
end
redis.call("SET", KEYS[1], ARGV[2])
return 1
`)

// InstanceStore implements ports.InstanceStore on Redis.
//
// Layout:
//
//	<prefix>instance:<id>      JSON document
//	<prefix>children:<id>      SET of child instance IDs
//	<prefix>iteration:<id>     SET of instance IDs owned by the iteration
//
// Index membership never changes after creation (instances do not reparent
// or move between iterations), so only Put/PutBatch maintain the sets.
type InstanceStore struct {
	client *backend.Client
	prefix string
}

// NewInstanceStore creates an instance store from an existing client.
func NewInstanceStore(client *backend.Client, prefix string) *InstanceStore {
	if prefix == "" {
		prefix = "gantry:"
	}
	return &InstanceStore{client: client, prefix: prefix}
}

func (s *InstanceStore) key(id string) string      { return s.prefix + "instance:" + id }
func (s *InstanceStore) childKey(id string) string { return s.prefix + "children:" + id }
func (s *InstanceStore) iterKey(id string) string  { return s.prefix + "iteration:" + id }

// Put creates a single instance and its index memberships.
func (s *InstanceStore) Put(ctx context.Context, inst *domain.Instance) error {
	if inst.ID == "" {
		return fmt.Errorf("instance missing id")
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(inst.ID), data, 0)
	if inst.ParentID != "" {
		pipe.SAdd(ctx, s.childKey(inst.ParentID), inst.ID)
	}
	if inst.IterationID != "" {
		pipe.SAdd(ctx, s.iterKey(inst.IterationID), inst.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write instance to redis: %w", err)
	}
	return nil
}

// PutBatch writes a materialized subtree in one MULTI/EXEC transaction.
func (s *InstanceStore) PutBatch(ctx context.Context, insts []*domain.Instance) error {
	pipe := s.client.TxPipeline()
	for _, inst := range insts {
		if inst.ID == "" {
			return fmt.Errorf("instance missing id")
		}
		data, err := json.Marshal(inst)
		if err != nil {
			return fmt.Errorf("failed to marshal instance %s: %w", inst.ID, err)
		}
		pipe.Set(ctx, s.key(inst.ID), data, 0)
		if inst.ParentID != "" {
			pipe.SAdd(ctx, s.childKey(inst.ParentID), inst.ID)
		}
		if inst.IterationID != "" {
			pipe.SAdd(ctx, s.iterKey(inst.IterationID), inst.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit instance batch: %w", err)
	}
	return nil
}

// Get returns the instance or domain.ErrInstanceNotFound.
func (s *InstanceStore) Get(ctx context.Context, id string) (*domain.Instance, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance from redis: %w", err)
	}
	var inst domain.Instance
	if err := json.Unmarshal([]byte(val), &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}
	return &inst, nil
}

// Children returns the direct children of an instance.
func (s *InstanceStore) Children(ctx context.Context, parentID string) ([]*domain.Instance, error) {
	return s.byIndex(ctx, s.childKey(parentID))
}

// ByIteration returns every instance owned by the iteration, including the
// iteration instance itself.
func (s *InstanceStore) ByIteration(ctx context.Context, iterationID string) ([]*domain.Instance, error) {
	return s.byIndex(ctx, s.iterKey(iterationID))
}

func (s *InstanceStore) byIndex(ctx context.Context, indexKey string) ([]*domain.Instance, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instances: %w", err)
	}

	out := make([]*domain.Instance, 0, len(vals))
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			// Index entry without a document; skip rather than fail reads.
			continue
		}
		var inst domain.Instance
		if err := json.Unmarshal([]byte(raw), &inst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance %s: %w", ids[i], err)
		}
		out = append(out, &inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes an instance and its index memberships. Missing IDs are a
// no-op.
func (s *InstanceStore) Delete(ctx context.Context, id string) error {
	inst, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	if inst.ParentID != "" {
		pipe.SRem(ctx, s.childKey(inst.ParentID), id)
	}
	if inst.IterationID != "" {
		pipe.SRem(ctx, s.iterKey(inst.IterationID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete instance from redis: %w", err)
	}
	return nil
}

// UpdateCAS replaces the instance only if the stored status matches expected.
// The compare and the swap run inside a single Lua script so concurrent
// writers cannot interleave between them.
func (s *InstanceStore) UpdateCAS(ctx context.Context, inst *domain.Instance, expected domain.Status) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	res, err := casScript.Run(ctx, s.client, []string{s.key(inst.ID)}, string(expected), string(data)).Result()
	if err != nil {
		return fmt.Errorf("cas script failed: %w", err)
	}
	switch v := res.(type) {
	case int64:
		if v == 1 {
			return nil
		}
		return domain.ErrInstanceNotFound
	case string:
		return &domain.ConcurrentModificationError{
			EntityID: inst.ID,
			Expected: expected,
			Observed: domain.Status(v),
		}
	default:
		return fmt.Errorf("cas script returned unexpected type %T", res)
	}
}
