package discovery

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
)

// discoverHomepage scans a page's anchors and resolves each href against the
// base URL. Protocol-relative, absolute-path and relative refs all resolve
// through url.ResolveReference. Only article-shaped links survive; homepages
// link heavily to navigation, so the denylist alone is too permissive here.
func (e *Engine) discoverHomepage(ctx context.Context, pageURL string) []string {
	resp, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		e.logger.Warn("homepage fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	base, err := url.Parse(resp.URL)
	if err != nil {
		e.logger.Warn("homepage url invalid", zap.String("url", resp.URL), zap.Error(err))
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		e.logger.Warn("homepage parse failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	var urls []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if !crawl.LooksLikeArticle(resolved) {
			return
		}
		urls = append(urls, resolved)
	})
	return urls
}
