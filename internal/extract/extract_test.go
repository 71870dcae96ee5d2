package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verifysource/newscrawler/internal/crawl"
)

const articleHTML = `<!DOCTYPE html>
<html lang="en">
<head><title>Rate Cut Rally</title></head>
<body>
<article>
<h1>Rate Cut Rally</h1>
<p>Markets rallied sharply on Tuesday after the central bank announced an
unexpected cut to its benchmark interest rate, with the broad index closing
up more than two percent on the day.</p>
<p>Analysts said the move signals a shift in policy stance that could carry
equities through the remainder of the quarter, though bond markets reacted
with considerably more caution than their equity counterparts did.</p>
</article>
</body>
</html>`

func TestFromResponse_ExtractsFields(t *testing.T) {
	t.Parallel()

	got, err := FromResponse(crawl.FetchResponse{
		URL:  "https://news.example.com/2024/03/05/rate-cut-rally",
		Body: []byte(articleHTML),
	})
	require.NoError(t, err)
	require.Equal(t, "Rate Cut Rally", got.Title)
	require.Contains(t, got.Content, "Markets rallied sharply")
	require.NotEmpty(t, got.Excerpt)
	require.Greater(t, got.WordCount, 40)
}

func TestFromResponse_InsufficientContentIsParseError(t *testing.T) {
	t.Parallel()

	_, err := FromResponse(crawl.FetchResponse{
		URL:  "https://news.example.com/empty",
		Body: []byte("<html><body><p>hi</p></body></html>"),
	})
	require.Error(t, err)
	require.Equal(t, crawl.ErrKindParse, crawl.ClassifyError(err))
	require.False(t, crawl.ClassifyError(err).IsRetryable())
}

func TestMakeExcerpt_BreaksAtSentence(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("word ", 20) + "end of sentence. " + strings.Repeat("tail ", 30)
	excerpt := MakeExcerpt(content, 160)
	require.LessOrEqual(t, len(excerpt), 163)
	require.True(t, strings.HasSuffix(excerpt, ".") || strings.HasSuffix(excerpt, "..."))
}

func TestMakeExcerpt_ShortContentUnchanged(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short body", MakeExcerpt("short body", 160))
}
