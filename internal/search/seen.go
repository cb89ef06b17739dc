// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"sync"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// SeenSet records every primary ID fetched during a run, plus normalized
// titles for the manual-upload collision check and optional title dedup.
type SeenSet struct {
	mu           sync.Mutex
	ids          map[string]struct{}
	titles       map[string]string
	dedupeTitles bool
	duplicates   int
}

// NewSeenSet returns an empty set. With dedupeTitles, Check also rejects
// records whose normalized title was already added from any source.
func NewSeenSet(dedupeTitles bool) *SeenSet {
	return &SeenSet{
		ids:          make(map[string]struct{}),
		titles:       make(map[string]string),
		dedupeTitles: dedupeTitles,
	}
}

// Has reports whether id was added.
func (s *SeenSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// HasTitle reports whether a record with the same normalized title was added.
func (s *SeenSet) HasTitle(title string) bool {
	key := acquire.NormalizeTitle(title)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.titles[key]
	return ok
}

// Check reports whether rec may be fetched. A rejected record counts as a
// duplicate.
func (s *SeenSet) Check(rec types.PaperRecord) bool {
	dup := s.Has(rec.PrimaryID) || (s.dedupeTitles && s.HasTitle(rec.Title))
	if dup {
		s.mu.Lock()
		s.duplicates++
		s.mu.Unlock()
	}
	return !dup
}

// Add records rec's primary ID and title.
func (s *SeenSet) Add(rec types.PaperRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[rec.PrimaryID] = struct{}{}
	if key := acquire.NormalizeTitle(rec.Title); key != "" {
		s.titles[key] = rec.PrimaryID
	}
}

// Len returns the number of primary IDs added.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Duplicates returns how many records Check rejected.
func (s *SeenSet) Duplicates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duplicates
}
