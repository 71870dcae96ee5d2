package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// ArticleStore persists extracted articles in the articles table, keyed by URL.
type ArticleStore struct {
	pool dbPool
}

// NewArticleStore creates a Postgres-backed ArticleStore.
func NewArticleStore(ctx context.Context, cfg PoolConfig) (*ArticleStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ArticleStore{pool: pool}, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(pool dbPool) (*ArticleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ArticleStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const articleColumns = `id, source_id, job_id, url, title, content, excerpt,
	content_hash, word_count, language, is_duplicate, fetched_at, metadata`

// UpsertArticle creates or updates the article row keyed by URL. A refetch of
// a known URL updates the content in place and keeps the original ID.
func (s *ArticleStore) UpsertArticle(ctx context.Context, article crawl.Article) (crawl.Article, error) {
	if article.URL == "" {
		return crawl.Article{}, fmt.Errorf("article url is required")
	}
	metadata, err := marshalMetadata(article.Metadata)
	if err != nil {
		return crawl.Article{}, err
	}

	query := `
INSERT INTO articles (` + articleColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (url) DO UPDATE SET
	job_id = EXCLUDED.job_id,
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	excerpt = EXCLUDED.excerpt,
	content_hash = EXCLUDED.content_hash,
	word_count = EXCLUDED.word_count,
	language = EXCLUDED.language,
	is_duplicate = EXCLUDED.is_duplicate,
	fetched_at = EXCLUDED.fetched_at,
	metadata = EXCLUDED.metadata
RETURNING ` + articleColumns
	row := s.pool.QueryRow(ctx, query,
		article.ID, article.SourceID, article.JobID, article.URL, article.Title,
		article.Content, article.Excerpt, article.ContentHash, article.WordCount,
		article.Language, article.IsDuplicate, article.FetchedAt, metadata,
	)
	stored, err := scanArticle(row)
	if err != nil {
		return crawl.Article{}, fmt.Errorf("upsert article: %w", err)
	}
	return stored, nil
}

// FindByHash returns the earliest article recorded with the hash.
func (s *ArticleStore) FindByHash(ctx context.Context, hash string) (crawl.Article, bool, error) {
	query := `
SELECT ` + articleColumns + `
FROM articles
WHERE content_hash = $1
ORDER BY fetched_at ASC
LIMIT 1`
	article, err := scanArticle(s.pool.QueryRow(ctx, query, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawl.Article{}, false, nil
	}
	if err != nil {
		return crawl.Article{}, false, fmt.Errorf("find article by hash: %w", err)
	}
	return article, true, nil
}

func scanArticle(row pgx.Row) (crawl.Article, error) {
	var (
		article  crawl.Article
		metadata []byte
	)
	err := row.Scan(
		&article.ID, &article.SourceID, &article.JobID, &article.URL, &article.Title,
		&article.Content, &article.Excerpt, &article.ContentHash, &article.WordCount,
		&article.Language, &article.IsDuplicate, &article.FetchedAt, &metadata,
	)
	if err != nil {
		return crawl.Article{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &article.Metadata); err != nil {
			return crawl.Article{}, fmt.Errorf("unmarshal article metadata: %w", err)
		}
	}
	return article, nil
}
