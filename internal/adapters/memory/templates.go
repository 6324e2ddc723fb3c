package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gantryio/gantry/pkg/domain"
)

// TemplateStore implements ports.TemplateStore in memory.
// Safe for concurrent use.
type TemplateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Template
}

// NewTemplateStore creates an empty in-memory template store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{data: make(map[string]*domain.Template)}
}

// Put creates or replaces a template. Published templates are frozen.
func (s *TemplateStore) Put(ctx context.Context, tmpl *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[tmpl.ID]; ok && existing.Published {
		return domain.ErrTemplateFrozen
	}
	cp := *tmpl
	s.data[tmpl.ID] = &cp
	return nil
}

// Get returns a copy of the template.
func (s *TemplateStore) Get(ctx context.Context, id string) (*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, ok := s.data[id]
	if !ok {
		return nil, &domain.TemplateNotFoundError{TemplateID: id}
	}
	cp := *tmpl
	return &cp, nil
}

// Children returns direct children ordered by their Order field.
func (s *TemplateStore) Children(ctx context.Context, parentID string) ([]*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var kids []*domain.Template
	for _, tmpl := range s.data {
		if tmpl.ParentID == parentID {
			cp := *tmpl
			kids = append(kids, &cp)
		}
	}
	sort.Slice(kids, func(i, j int) bool {
		if kids[i].Order != kids[j].Order {
			return kids[i].Order < kids[j].Order
		}
		return kids[i].ID < kids[j].ID
	})
	return kids, nil
}

// Publish freezes the plan root and its entire subtree.
func (s *TemplateStore) Publish(ctx context.Context, planTemplateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.data[planTemplateID]
	if !ok {
		return &domain.TemplateNotFoundError{TemplateID: planTemplateID}
	}

	// BFS through the subtree marking everything published.
	queue := []string{root.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		s.data[id].Published = true
		for _, tmpl := range s.data {
			if tmpl.ParentID == id {
				queue = append(queue, tmpl.ID)
			}
		}
	}
	return nil
}
