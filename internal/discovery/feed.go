package discovery

import (
	"bytes"
	"context"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// discoverFeed parses an RSS 2.0 or Atom feed and collects item links.
// gofeed detects the flavor; a document that is neither yields nothing.
func (e *Engine) discoverFeed(ctx context.Context, feedURL string) []string {
	resp, err := e.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		e.logger.Warn("feed fetch failed", zap.String("url", feedURL), zap.Error(err))
		return nil
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		e.logger.Warn("feed parse failed", zap.String("url", feedURL), zap.Error(err))
		return nil
	}

	urls := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if link := strings.TrimSpace(item.Link); link != "" {
			urls = append(urls, link)
		}
	}
	return urls
}
