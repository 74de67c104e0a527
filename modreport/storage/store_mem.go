package storage

import (
	"context"
	"sync"

	"github.com/playhall/modreport/modreport"
)

// MemStore is an in-process Store for tests and embedding. All methods
// honor context cancellation up front, so a timed-out serialized task never
// applies partial effects.
type MemStore struct {
	mu      sync.RWMutex
	reports map[string]*modreport.Report
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{reports: make(map[string]*modreport.Report)}
}

func (s *MemStore) FindOne(ctx context.Context, sel Selector) (*modreport.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reports {
		if sel.Match(r) {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (s *MemStore) Find(ctx context.Context, sel Selector, order Sort, limit int) ([]modreport.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matches := []modreport.Report{}
	for _, r := range s.reports {
		if sel.Match(r) {
			matches = append(matches, *r.Clone())
		}
	}
	s.mu.RUnlock()
	sortReports(matches, order)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemStore) Upsert(ctx context.Context, id string, r *modreport.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[id] = r.Clone()
	return nil
}

func (s *MemStore) UpdateMany(ctx context.Context, sel Selector, p Patch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reports {
		if sel.Match(r) {
			p.Apply(r)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) DeleteOne(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, id)
	return nil
}

func (s *MemStore) Distinct(ctx context.Context, field string, sel Selector) ([]string, error) {
	matches, err := s.Find(ctx, sel, SortNone, 0)
	if err != nil {
		return nil, err
	}
	return distinctValues(matches, field), nil
}
