package discovery

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// sitemapDoc covers both <urlset> and <sitemapindex> documents; the root
// element name tells them apart.
type sitemapDoc struct {
	XMLName  xml.Name
	Sitemaps []locEntry `xml:"sitemap"`
	URLs     []locEntry `xml:"url"`
}

type locEntry struct {
	Loc string `xml:"loc"`
}

// discoverSitemap fetches and parses one sitemap document. Index entries
// recurse with an explicit depth counter; depth is never inferred from the
// call stack so the bound holds even for self-referencing indexes.
func (e *Engine) discoverSitemap(ctx context.Context, sitemapURL string, depth int) []string {
	if depth >= maxSitemapDepth {
		e.logger.Warn("sitemap recursion depth exceeded",
			zap.String("url", sitemapURL),
			zap.Int("depth", depth),
		)
		return nil
	}
	if nestedSitemapMarkers(sitemapURL) >= maxSitemapDepth {
		e.logger.Warn("sitemap url nests too deep", zap.String("url", sitemapURL))
		return nil
	}

	resp, err := e.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		e.logger.Warn("sitemap fetch failed", zap.String("url", sitemapURL), zap.Error(err))
		return nil
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		// Some sites serve plain-text sitemaps: one URL per line.
		return parsePlainTextSitemap(string(resp.Body))
	}

	if len(doc.Sitemaps) > 0 {
		var urls []string
		for _, child := range doc.Sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" {
				continue
			}
			urls = append(urls, e.discoverSitemap(ctx, loc, depth+1)...)
		}
		return urls
	}

	urls := make([]string, 0, len(doc.URLs))
	for _, entry := range doc.URLs {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls
}

// parsePlainTextSitemap reads one URL per non-empty, non-comment line.
func parsePlainTextSitemap(body string) []string {
	var urls []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		urls = append(urls, line)
	}
	return urls
}

func nestedSitemapMarkers(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	return strings.Count(strings.ToLower(u.Path), "sitemap")
}
