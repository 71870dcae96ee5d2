package discovery

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// discoverRobots scans robots.txt for Sitemap directives. Each discovered
// sitemap needs further discovery rather than an article fetch, so it is
// seeded as a high-priority discovery job instead of returned as a candidate.
func (e *Engine) discoverRobots(ctx context.Context, robotsURL string, source crawl.Source) {
	resp, err := e.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		e.logger.Warn("robots fetch failed", zap.String("url", robotsURL), zap.Error(err))
		return
	}

	for _, line := range strings.Split(string(resp.Body), "\n") {
		line = strings.TrimSpace(line)
		if len(line) < len("sitemap:") || !strings.EqualFold(line[:len("sitemap:")], "sitemap:") {
			continue
		}
		sitemapURL := strings.TrimSpace(line[len("sitemap:"):])
		if sitemapURL == "" || !crawl.SameHost(sitemapURL, robotsURL) {
			continue
		}
		if e.seeder == nil {
			e.logger.Warn("no job seeder configured, dropping sitemap", zap.String("url", sitemapURL))
			continue
		}
		meta := map[string]string{
			crawl.MetaCrawlType:      crawl.CrawlTypeDiscover,
			crawl.MetaDiscoveredFrom: robotsURL,
		}
		if err := e.seeder.SeedJob(ctx, source.ID, sitemapURL, crawl.SitemapPriority, meta); err != nil {
			e.logger.Error("seed sitemap job failed", zap.String("url", sitemapURL), zap.Error(err))
			continue
		}
		e.logger.Info("seeded sitemap job from robots",
			zap.String("sitemap", sitemapURL),
			zap.String("source_id", source.ID),
		)
	}
}
