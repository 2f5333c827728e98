package search

import (
	"sync"

	"github.com/hyperjump/kensaku/internal/models"
)

// ErrorSink receives user-facing query errors and warnings.
type ErrorSink interface {
	AddError(n models.Notice)
	AddWarning(n models.Notice)
	HasErrors() bool
}

// Searcher collects notices for one search request.
type Searcher struct {
	mu       sync.Mutex
	errors   []models.Notice
	warnings []models.Notice
}

// NewSearcher returns an empty Searcher.
func NewSearcher() *Searcher {
	return &Searcher{}
}

func (s *Searcher) AddError(n models.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, n)
}

func (s *Searcher) AddWarning(n models.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, n)
}

func (s *Searcher) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors) > 0
}

// Errors returns a copy of the collected errors.
func (s *Searcher) Errors() []models.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notice(nil), s.errors...)
}

// Warnings returns a copy of the collected warnings.
func (s *Searcher) Warnings() []models.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notice(nil), s.warnings...)
}
