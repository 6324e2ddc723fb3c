package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gantryio/gantry/pkg/domain"
)

// InstanceStore implements ports.InstanceStore in memory.
// Safe for concurrent use. Compare-and-swap updates and batch writes are
// serialized under one mutex, which gives PutBatch its all-or-nothing
// visibility for free.
type InstanceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Instance
}

// NewInstanceStore creates an empty in-memory instance store.
func NewInstanceStore() *InstanceStore {
	return &InstanceStore{data: make(map[string]*domain.Instance)}
}

// Put creates a single instance.
func (s *InstanceStore) Put(ctx context.Context, inst *domain.Instance) error {
	if inst.ID == "" {
		return fmt.Errorf("instance missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[inst.ID] = inst.Clone()
	return nil
}

// PutBatch writes a materialized subtree in one commit.
func (s *InstanceStore) PutBatch(ctx context.Context, insts []*domain.Instance) error {
	for _, inst := range insts {
		if inst.ID == "" {
			return fmt.Errorf("instance missing id")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range insts {
		s.data[inst.ID] = inst.Clone()
	}
	return nil
}

// Get returns a copy of the instance.
func (s *InstanceStore) Get(ctx context.Context, id string) (*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.data[id]
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

// Children returns copies of the direct children, ordered deterministically.
func (s *InstanceStore) Children(ctx context.Context, parentID string) ([]*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var kids []*domain.Instance
	for _, inst := range s.data {
		if inst.ParentID == parentID {
			kids = append(kids, inst.Clone())
		}
	}
	sortInstances(kids)
	return kids, nil
}

// ByIteration returns every instance owned by the iteration, including the
// iteration instance itself.
func (s *InstanceStore) ByIteration(ctx context.Context, iterationID string) ([]*domain.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Instance
	for _, inst := range s.data {
		if inst.IterationID == iterationID {
			out = append(out, inst.Clone())
		}
	}
	sortInstances(out)
	return out, nil
}

// UpdateCAS replaces the instance only if the stored status matches expected.
func (s *InstanceStore) UpdateCAS(ctx context.Context, inst *domain.Instance, expected domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[inst.ID]
	if !ok {
		return domain.ErrInstanceNotFound
	}
	if current.Status != expected {
		return &domain.ConcurrentModificationError{
			EntityID: inst.ID,
			Expected: expected,
			Observed: current.Status,
		}
	}
	s.data[inst.ID] = inst.Clone()
	return nil
}

// Delete removes an instance. Missing IDs are a no-op.
func (s *InstanceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func sortInstances(insts []*domain.Instance) {
	sort.Slice(insts, func(i, j int) bool { return insts[i].ID < insts[j].ID })
}
