package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verifysource/newscrawler/internal/crawl"
)

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []byte("<html>ok</html>"), resp.Body)
}

func TestFetch_NotFoundIsFetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	require.Equal(t, crawl.ErrKindFetch, crawl.ClassifyError(err))
	require.True(t, crawl.ClassifyError(err).IsRetryable())
}

func TestFetch_UnreachableHost(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/none")
	require.Error(t, err)
	require.Equal(t, crawl.ErrKindFetch, crawl.ClassifyError(err))
}
