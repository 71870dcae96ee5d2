package crawl

import (
	"net/url"
	"regexp"
	"strings"
)

// skipPatterns match path fragments that never lead to article content:
// taxonomy pages, utility pages, static assets, and crawl plumbing.
var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/tag/`),
	regexp.MustCompile(`(?i)/category/`),
	regexp.MustCompile(`(?i)/author/`),
	regexp.MustCompile(`(?i)/search/`),
	regexp.MustCompile(`(?i)/contact`),
	regexp.MustCompile(`(?i)/about`),
	regexp.MustCompile(`(?i)/privacy`),
	regexp.MustCompile(`(?i)/terms`),
	regexp.MustCompile(`(?i)/login`),
	regexp.MustCompile(`(?i)/admin`),
	regexp.MustCompile(`(?i)/wp-admin`),
	regexp.MustCompile(`(?i)\.(pdf|jpe?g|png|gif|svg|webp|css|js|ico|mp[34]|zip)$`),
	regexp.MustCompile(`(?i)/feed`),
	regexp.MustCompile(`(?i)/rss`),
	regexp.MustCompile(`(?i)/sitemap`),
}

// articlePatterns match URL shapes that usually carry article content.
var articlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`/\d{4}/\d{2}/\d{2}/`),
	regexp.MustCompile(`(?i)/article/`),
	regexp.MustCompile(`(?i)/post/`),
	regexp.MustCompile(`(?i)/news/`),
	regexp.MustCompile(`(?i)/story/`),
	regexp.MustCompile(`(?i)/blog/`),
	regexp.MustCompile(`(?i)/press/`),
	regexp.MustCompile(`(?i)/release/`),
}

// MatchesDenylist reports whether the URL hits a non-article skip pattern.
func MatchesDenylist(rawURL string) bool {
	for _, p := range skipPatterns {
		if p.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// LooksLikeArticle reports whether the URL matches a known article shape or
// has enough path depth to plausibly be one.
func LooksLikeArticle(rawURL string) bool {
	for _, p := range articlePatterns {
		if p.MatchString(rawURL) {
			return true
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	segments := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments++
		}
	}
	return segments >= 2
}

// HasTrivialPath reports whether the URL points at the site root.
func HasTrivialPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := strings.TrimSuffix(u.Path, "/")
	return path == ""
}
