package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// SourceStore serves registered sources from memory. Sources are owned by an
// external system, so this store is load-once, read-many.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]crawl.Source
}

// NewSourceStore constructs a SourceStore preloaded with the given sources.
func NewSourceStore(sources ...crawl.Source) *SourceStore {
	s := &SourceStore{sources: make(map[string]crawl.Source, len(sources))}
	for _, src := range sources {
		s.sources[src.ID] = src
	}
	return s
}

// AddSource registers a source, replacing any previous entry with its ID.
func (s *SourceStore) AddSource(source crawl.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[source.ID] = source
}

// GetSource resolves a source by ID first, then by domain.
func (s *SourceStore) GetSource(_ context.Context, idOrDomain string) (crawl.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if source, ok := s.sources[idOrDomain]; ok {
		return source, nil
	}
	for _, source := range s.sources {
		if source.Domain == idOrDomain {
			return source, nil
		}
	}
	return crawl.Source{}, fmt.Errorf("source %q not found", idOrDomain)
}

// ListActive returns active sources ordered by ID.
func (s *SourceStore) ListActive(_ context.Context) ([]crawl.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]crawl.Source, 0, len(s.sources))
	for _, source := range s.sources {
		if source.Active {
			active = append(active, source)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}
