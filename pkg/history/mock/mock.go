// Package mock provides an in-memory test double for the history.Store
// interface.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nutrivox/nutrivox/pkg/history"
)

// Store is an in-memory implementation of history.Store. Safe for concurrent
// use. Error fields, when set, are returned by the corresponding method
// instead of touching the map.
type Store struct {
	mu      sync.Mutex
	scans   map[string]history.Scan
	answers map[string][]history.Answer

	// SaveErr, GetErr, ListErr, DeleteErr, SaveAnswerErr, ListAnswersErr
	// force the corresponding method to fail, for error-path tests.
	SaveErr        error
	GetErr         error
	ListErr        error
	DeleteErr      error
	SaveAnswerErr  error
	ListAnswersErr error
}

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		scans:   make(map[string]history.Scan),
		answers: make(map[string][]history.Answer),
	}
}

// SaveScan implements history.Store.
func (s *Store) SaveScan(_ context.Context, scan history.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now()
	}
	s.scans[scan.ID] = scan
	return nil
}

// GetScan implements history.Store.
func (s *Store) GetScan(_ context.Context, id string) (history.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return history.Scan{}, s.GetErr
	}
	scan, ok := s.scans[id]
	if !ok {
		return history.Scan{}, history.ErrNotFound
	}
	return scan, nil
}

// ListScans implements history.Store.
func (s *Store) ListScans(_ context.Context, opts history.QueryOpts) ([]history.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}

	out := make([]history.Scan, 0, len(s.scans))
	for _, scan := range s.scans {
		if opts.Barcode != "" && scan.Barcode != opts.Barcode {
			continue
		}
		if opts.Allergen != "" && !contains(scan.DetectedAllergens, opts.Allergen) {
			continue
		}
		if !opts.After.IsZero() && !scan.CreatedAt.After(opts.After) {
			continue
		}
		if !opts.Before.IsZero() && !scan.CreatedAt.Before(opts.Before) {
			continue
		}
		out = append(out, scan)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteScan implements history.Store.
func (s *Store) DeleteScan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.scans[id]; !ok {
		return history.ErrNotFound
	}
	delete(s.scans, id)
	delete(s.answers, id)
	return nil
}

// SaveAnswer implements history.Store.
func (s *Store) SaveAnswer(_ context.Context, answer history.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveAnswerErr != nil {
		return s.SaveAnswerErr
	}
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now()
	}
	s.answers[answer.ScanID] = append(s.answers[answer.ScanID], answer)
	return nil
}

// ListAnswers implements history.Store.
func (s *Store) ListAnswers(_ context.Context, scanID string) ([]history.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListAnswersErr != nil {
		return nil, s.ListAnswersErr
	}
	out := append([]history.Answer(nil), s.answers[scanID]...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Len returns the number of stored scans. Thread-safe.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scans)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
