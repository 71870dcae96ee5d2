package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// SourceStore reads registered sources from the sources table. Sources are
// owned by an external system, so the store is read-only here.
type SourceStore struct {
	pool dbPool
}

// NewSourceStore creates a Postgres-backed SourceStore.
func NewSourceStore(ctx context.Context, cfg PoolConfig) (*SourceStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SourceStore{pool: pool}, nil
}

// NewSourceStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSourceStoreWithPool(pool dbPool) (*SourceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SourceStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *SourceStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const sourceColumns = `id, name, domain, url, active, frequency`

// GetSource resolves a source by ID or by domain.
func (s *SourceStore) GetSource(ctx context.Context, idOrDomain string) (crawl.Source, error) {
	query := `
SELECT ` + sourceColumns + `
FROM sources
WHERE id::text = $1 OR domain = $1
LIMIT 1`
	var source crawl.Source
	err := s.pool.QueryRow(ctx, query, idOrDomain).Scan(
		&source.ID, &source.Name, &source.Domain, &source.URL, &source.Active, &source.Frequency,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawl.Source{}, fmt.Errorf("source %q not found", idOrDomain)
	}
	if err != nil {
		return crawl.Source{}, fmt.Errorf("select source: %w", err)
	}
	return source, nil
}

// ListActive returns active sources ordered by ID.
func (s *SourceStore) ListActive(ctx context.Context) ([]crawl.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE active ORDER BY id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	defer rows.Close()

	var sources []crawl.Source
	for rows.Next() {
		var source crawl.Source
		if err := rows.Scan(&source.ID, &source.Name, &source.Domain, &source.URL, &source.Active, &source.Frequency); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	return sources, nil
}
