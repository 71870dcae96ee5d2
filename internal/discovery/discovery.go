// Package discovery turns one seed URL into many candidate article URLs.
//
// A seed may be an XML sitemap, a sitemap index, an RSS/Atom feed, a
// robots.txt manifest, or a plain homepage. Discovery never returns an
// error: every failure degrades to an empty result and a log line, because
// discovery feeds volume, not correctness.
package discovery

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// SeedKind classifies a seed URL by shape.
type SeedKind string

// Seed shapes dispatched by Discover.
const (
	SeedSitemap  SeedKind = "sitemap"
	SeedFeed     SeedKind = "feed"
	SeedRobots   SeedKind = "robots"
	SeedHomepage SeedKind = "homepage"
)

// maxSitemapDepth bounds sitemap-index recursion. Adversarial or broken
// indexes can self-reference or nest arbitrarily; the explicit counter keeps
// traversal a bounded tree walk.
const maxSitemapDepth = 3

// JobSeeder enqueues follow-on discovery jobs (robots.txt sitemap
// directives need further discovery, not an article fetch).
type JobSeeder interface {
	SeedJob(ctx context.Context, sourceID, url string, priority int, metadata map[string]string) error
}

// Engine implements seed-shape dispatch and uniform candidate filtering.
type Engine struct {
	fetcher crawl.Fetcher
	seeder  JobSeeder
	logger  *zap.Logger
}

// New creates an Engine. The seeder may be nil; robots.txt sitemap
// directives are then dropped with a warning.
func New(fetcher crawl.Fetcher, seeder JobSeeder, logger *zap.Logger) *Engine {
	return &Engine{
		fetcher: fetcher,
		seeder:  seeder,
		logger:  logger,
	}
}

// ClassifySeed picks the discovery strategy for a seed URL.
func ClassifySeed(rawURL string) SeedKind {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "robots.txt"):
		return SeedRobots
	case strings.Contains(lower, "sitemap") || strings.HasSuffix(lower, ".xml"):
		return SeedSitemap
	case strings.Contains(lower, "/feed") || strings.Contains(lower, "/rss") ||
		strings.HasSuffix(lower, ".rss") || strings.HasSuffix(lower, ".atom"):
		return SeedFeed
	default:
		return SeedHomepage
	}
}

// Discover produces the filtered candidate set for a seed URL. All failures
// are absorbed: the worst outcome is an empty slice.
func (e *Engine) Discover(ctx context.Context, seedURL string, source crawl.Source) []string {
	kind := ClassifySeed(seedURL)
	e.logger.Debug("discovering",
		zap.String("seed", seedURL),
		zap.String("kind", string(kind)),
		zap.String("source_id", source.ID),
	)

	var raw []string
	switch kind {
	case SeedSitemap:
		raw = e.discoverSitemap(ctx, seedURL, 0)
	case SeedFeed:
		raw = e.discoverFeed(ctx, seedURL)
	case SeedRobots:
		e.discoverRobots(ctx, seedURL, source)
		return nil
	default:
		raw = e.discoverHomepage(ctx, seedURL)
	}

	candidates := FilterCandidates(seedURL, raw)
	e.logger.Info("discovery finished",
		zap.String("seed", seedURL),
		zap.String("kind", string(kind)),
		zap.Int("raw", len(raw)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates
}

// FilterCandidates applies the uniform post-discovery filter: well-formed,
// same host as the seed, not denylisted, non-trivial path, de-duplicated.
func FilterCandidates(seedURL string, raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, candidate := range raw {
		normalized, err := crawl.NormalizeURL(candidate)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(normalized, "http://") && !strings.HasPrefix(normalized, "https://") {
			continue
		}
		if !crawl.SameHost(normalized, seedURL) {
			continue
		}
		if crawl.MatchesDenylist(normalized) {
			continue
		}
		if crawl.HasTrivialPath(normalized) {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
