package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// ArticleStore keeps articles in memory with a hash index for dedup lookups.
type ArticleStore struct {
	mu     sync.RWMutex
	byURL  map[string]crawl.Article
	byHash map[string][]string // hash -> URLs in insertion order
}

// NewArticleStore constructs an ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		byURL:  make(map[string]crawl.Article),
		byHash: make(map[string][]string),
	}
}

// UpsertArticle creates or replaces the article keyed by URL.
func (s *ArticleStore) UpsertArticle(_ context.Context, article crawl.Article) (crawl.Article, error) {
	if article.URL == "" {
		return crawl.Article{}, fmt.Errorf("article url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byURL[article.URL]; ok {
		if article.ID == "" {
			article.ID = prev.ID
		}
		if prev.ContentHash != article.ContentHash {
			s.dropHashEntry(prev.ContentHash, prev.URL)
			s.byHash[article.ContentHash] = append(s.byHash[article.ContentHash], article.URL)
		}
	} else {
		s.byHash[article.ContentHash] = append(s.byHash[article.ContentHash], article.URL)
	}
	s.byURL[article.URL] = article
	return article, nil
}

// FindByHash returns the earliest article recorded under the hash.
func (s *ArticleStore) FindByHash(_ context.Context, hash string) (crawl.Article, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := s.byHash[hash]
	if len(urls) == 0 {
		return crawl.Article{}, false, nil
	}
	return s.byURL[urls[0]], true, nil
}

// GetByURL looks an article up by URL.
func (s *ArticleStore) GetByURL(_ context.Context, url string) (crawl.Article, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.byURL[url]
	return article, ok, nil
}

// Count returns the number of distinct stored articles.
func (s *ArticleStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}

func (s *ArticleStore) dropHashEntry(hash, url string) {
	urls := s.byHash[hash]
	for i, u := range urls {
		if u == url {
			s.byHash[hash] = append(urls[:i], urls[i+1:]...)
			break
		}
	}
	if len(s.byHash[hash]) == 0 {
		delete(s.byHash, hash)
	}
}
