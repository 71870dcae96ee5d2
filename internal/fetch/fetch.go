// Package fetch implements crawl.Fetcher using the Colly collector.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/verifysource/newscrawler/internal/crawl"
	"github.com/verifysource/newscrawler/internal/policy/ratelimit"
)

// BrowserUserAgent mimics a desktop browser; some news sites refuse
// obviously robotic agents.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config controls collector behavior. PerDomainRPS <= 0 disables the
// politeness limiter.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	PerDomainRPS float64
	Burst        int
}

// Fetcher fetches single pages over HTTP.
type Fetcher struct {
	cfg           Config
	limiter       *ratelimit.Limiter
	baseCollector *colly.Collector
}

// New builds a Fetcher with a pooled transport.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = BrowserUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg: cfg,
		limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.PerDomainRPS,
			DefaultBurst: cfg.Burst,
		}),
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Network failures, timeouts and non-2xx
// statuses are returned as fetch errors, which are retryable.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawl.FetchResponse, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return crawl.FetchResponse{}, crawl.NewFetchError(err)
	}

	var (
		result   crawl.FetchResponse
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = crawl.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return crawl.FetchResponse{}, crawl.NewFetchError(fmt.Errorf("fetch canceled: %w", ctx.Err()))
	case err := <-done:
		if err != nil {
			return crawl.FetchResponse{}, crawl.NewFetchError(fmt.Errorf("visit %s: %w", url, err))
		}
		if fetchErr != nil {
			return crawl.FetchResponse{}, crawl.NewFetchError(fmt.Errorf("fetch %s: %w", url, fetchErr))
		}
		if result.StatusCode < 200 || result.StatusCode > 299 {
			return crawl.FetchResponse{}, crawl.NewFetchError(fmt.Errorf("fetch %s: status %d", url, result.StatusCode))
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
