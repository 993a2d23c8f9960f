package govsearch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fanyang-dev/govpulse/internal/fetch"
	"github.com/fanyang-dev/govpulse/internal/fingerprint"
)

// stubFetcher serves canned outcomes keyed by the requested page index.
type stubFetcher struct {
	pages map[string]fetch.Outcome
	calls int
}

func (s *stubFetcher) Get(_ context.Context, _ string, params url.Values) fetch.Outcome {
	s.calls++
	out, ok := s.pages[params.Get("p")]
	if !ok {
		return fetch.Outcome{RobotsAllowed: true, Status: http.StatusOK, Body: []byte("<html></html>")}
	}
	return out
}

func pageHTML(page, count int, dateText string) []byte {
	var b strings.Builder
	b.WriteString(`<ul class="search-result">`)
	for i := 0; i < count; i++ {
		fmt.Fprintf(&b, `<li><a href="https://www.gov.cn/p%d/item%d.htm">标题 %d-%d</a><p class="res-des">摘要</p><span>%s</span></li>`,
			page, i, page, i, dateText)
	}
	b.WriteString(`</ul>`)
	return []byte(b.String())
}

func okPage(body []byte) fetch.Outcome {
	return fetch.Outcome{RobotsAllowed: true, Status: http.StatusOK, Body: body}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func runCrawl(t *testing.T, fetcher Fetcher, window Window, maxPages int, seenPath, outPath string) int {
	t.Helper()
	seen, err := LoadSeenSet(seenPath)
	require.NoError(t, err)
	sink, err := OpenSink(outPath)
	require.NoError(t, err)
	defer sink.Close()

	c := New(fetcher, Config{RunID: "run_test"}, zap.NewNop())
	total, err := c.Run(context.Background(), "金融 五篇 大文章", window, maxPages, seen, sink)
	require.NoError(t, err)
	require.NoError(t, seen.Rewrite(seenPath))
	return total
}

func TestTwoPageCrawlThenIdempotentRerun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seenPath := filepath.Join(dir, ".seen_urls.txt")
	fetcher := &stubFetcher{pages: map[string]fetch.Outcome{
		"0": okPage(pageHTML(0, 5, "2024-03-15")),
		"1": okPage(pageHTML(1, 5, "2024-03-16")),
	}}

	firstOut := filepath.Join(dir, "run1.jsonl")
	total := runCrawl(t, fetcher, Window{}, 2, seenPath, firstOut)
	assert.Equal(t, 10, total)
	assert.Len(t, readLines(t, firstOut), 10)
	assert.Len(t, readLines(t, seenPath), 10)

	// Re-running against the same seen-file and identical remote content
	// writes nothing new.
	secondOut := filepath.Join(dir, "run2.jsonl")
	total = runCrawl(t, fetcher, Window{}, 2, seenPath, secondOut)
	assert.Equal(t, 0, total)
	_, err := os.Stat(secondOut)
	require.NoError(t, err)
	assert.Empty(t, readLines(t, secondOut))
}

func TestRecordShape(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.jsonl")
	fetcher := &stubFetcher{pages: map[string]fetch.Outcome{
		"0": okPage(pageHTML(0, 1, "发布日期：2024年3月15日")),
	}}
	total := runCrawl(t, fetcher, Window{}, 1, filepath.Join(dir, "seen.txt"), outPath)
	require.Equal(t, 1, total)

	lines := readLines(t, outPath)
	require.Len(t, lines, 1)
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))

	assert.Equal(t, "sousuo.gov.cn", rec.Source)
	assert.Equal(t, "金融 五篇 大文章", rec.Query)
	assert.Equal(t, "https://www.gov.cn/p0/item0.htm", rec.URL)
	assert.Equal(t, "run_test", rec.RunID)
	assert.Equal(t, fingerprint.Hash(rec.URL), rec.Fingerprint)
	require.NotNil(t, rec.PubDate)
	assert.Equal(t, "2024-03-15", *rec.PubDate)
	_, err := time.Parse("2006-01-02T15:04:05-0700", rec.CollectedAt)
	assert.NoError(t, err)
	// CJK text must land unescaped in the artifact.
	assert.Contains(t, lines[0], "标题")
}

func TestDateWindowFilterIsIndependentOfDedup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seenPath := filepath.Join(dir, "seen.txt")
	fetcher := &stubFetcher{pages: map[string]fetch.Outcome{
		"0": okPage(pageHTML(0, 3, "2020-01-01")),
	}}
	window := Window{
		Start:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		HasStart: true,
	}
	total := runCrawl(t, fetcher, window, 1, seenPath, filepath.Join(dir, "out.jsonl"))
	assert.Equal(t, 0, total)

	// Excluded items were never marked seen: a later run with a wider
	// window can still emit them.
	seen, err := LoadSeenSet(seenPath)
	require.NoError(t, err)
	assert.Equal(t, 0, seen.Len())

	total = runCrawl(t, fetcher, Window{}, 1, seenPath, filepath.Join(dir, "out2.jsonl"))
	assert.Equal(t, 3, total)
}

func TestDatelessItemsPassAnyWindow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fetcher := &stubFetcher{pages: map[string]fetch.Outcome{
		"0": okPage([]byte(`<ul class="search-result"><li><a href="https://example.com/u">无日期条目</a></li></ul>`)),
	}}
	window := Window{
		Start:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		HasStart: true,
		HasEnd:   true,
	}
	total := runCrawl(t, fetcher, window, 1, filepath.Join(dir, "seen.txt"), filepath.Join(dir, "out.jsonl"))
	assert.Equal(t, 1, total)
}

func TestBadPagesAreSkippedNotFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fetcher := &stubFetcher{pages: map[string]fetch.Outcome{
		"0": {RobotsAllowed: true, Err: "connection reset"},
		"1": {RobotsAllowed: true, Status: http.StatusBadGateway, Body: []byte("oops")},
		"2": {RobotsAllowed: false},
		"3": okPage([]byte(`<html><body>empty page</body></html>`)),
		"4": okPage(pageHTML(4, 2, "2024-05-01")),
	}}
	total := runCrawl(t, fetcher, Window{}, 5, filepath.Join(dir, "seen.txt"), filepath.Join(dir, "out.jsonl"))
	assert.Equal(t, 2, total)
	assert.Equal(t, 5, fetcher.calls)
}

func TestCanceledContextStopsPagination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fetcher := &stubFetcher{}
	seen, err := LoadSeenSet(filepath.Join(dir, "seen.txt"))
	require.NoError(t, err)
	sink, err := OpenSink(filepath.Join(dir, "out.jsonl"))
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(fetcher, Config{}, zap.NewNop())
	total, err := c.Run(ctx, "q", Window{}, 10, seen, sink)
	assert.Error(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, fetcher.calls)
}
