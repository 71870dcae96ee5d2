// Package extract turns fetched pages into structured article fields.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/verifysource/newscrawler/internal/crawl"
)

const (
	excerptLength = 160
	// minContentChars is the floor below which a page is treated as
	// non-article (nav shells, paywalled stubs, error pages).
	minContentChars = 100
)

// Extracted holds the structured fields pulled from a page.
type Extracted struct {
	Title     string
	Content   string
	Excerpt   string
	WordCount int
	Language  string
	Metadata  map[string]string
}

// FromResponse runs readability over a fetched page. Pages without enough
// text to be an article return a parse error.
func FromResponse(resp crawl.FetchResponse) (Extracted, error) {
	pageURL, err := url.Parse(resp.URL)
	if err != nil {
		return Extracted{}, crawl.NewParseError(fmt.Errorf("parse page url: %w", err))
	}

	article, err := readability.FromReader(bytes.NewReader(resp.Body), pageURL)
	if err != nil {
		return Extracted{}, crawl.NewParseError(fmt.Errorf("readability: %w", err))
	}

	content := strings.TrimSpace(article.TextContent)
	if len(content) < minContentChars {
		return Extracted{}, crawl.NewParseError(fmt.Errorf("insufficient content (%d chars)", len(content)))
	}

	excerpt := strings.TrimSpace(article.Excerpt)
	if excerpt == "" {
		excerpt = MakeExcerpt(content, excerptLength)
	}

	meta := map[string]string{}
	if article.SiteName != "" {
		meta["site_name"] = article.SiteName
	}
	if article.Byline != "" {
		meta["author"] = article.Byline
	}
	if article.Image != "" {
		meta["top_image"] = article.Image
	}

	return Extracted{
		Title:     strings.TrimSpace(article.Title),
		Content:   content,
		Excerpt:   excerpt,
		WordCount: len(strings.Fields(content)),
		Language:  article.Language,
		Metadata:  meta,
	}, nil
}

// MakeExcerpt truncates content at a sentence or word boundary near length.
func MakeExcerpt(content string, length int) string {
	clean := strings.Join(strings.Fields(content), " ")
	if len(clean) <= length {
		return clean
	}
	cut := clean[:length]
	if idx := strings.LastIndex(cut, ". "); idx > length*7/10 {
		return cut[:idx+1]
	}
	if idx := strings.LastIndex(cut, " "); idx > length*8/10 {
		return cut[:idx] + "..."
	}
	return cut + "..."
}
