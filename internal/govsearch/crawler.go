// Package govsearch crawls the paginated government search endpoint and
// appends deduplicated news records to a jsonl stream.
package govsearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fanyang-dev/govpulse/internal/fetch"
	"github.com/fanyang-dev/govpulse/internal/fingerprint"
	"github.com/fanyang-dev/govpulse/internal/metrics"
	"github.com/fanyang-dev/govpulse/internal/parse"
)

// DefaultBaseURL is the search endpoint crawled by default.
const DefaultBaseURL = "https://sousuo.gov.cn/s.htm"

// DefaultSource tags records with their originating site.
const DefaultSource = "sousuo.gov.cn"

const collectedAtLayout = "2006-01-02T15:04:05-0700"

// Fetcher is the slice of the fetch client the crawler needs.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, params url.Values) fetch.Outcome
}

// Record is one accepted news item, immutable once appended.
type Record struct {
	Source      string  `json:"source"`
	Query       string  `json:"query"`
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Snippet     string  `json:"snippet"`
	PubDate     *string `json:"pub_date"`
	CollectedAt string  `json:"collected_at"`
	RunID       string  `json:"run_id"`
	Fingerprint string  `json:"fingerprint"`
}

// Window bounds accepted publication dates. Items whose extracted date
// falls strictly outside [Start, End] are excluded; items without a date
// always pass.
type Window struct {
	Start    time.Time
	End      time.Time
	HasStart bool
	HasEnd   bool
}

// Excludes reports whether a known date d falls outside the window.
func (w Window) Excludes(d time.Time) bool {
	if w.HasStart && d.Before(w.Start) {
		return true
	}
	if w.HasEnd && d.After(w.End) {
		return true
	}
	return false
}

// Config controls crawler behavior.
type Config struct {
	BaseURL  string
	Source   string
	PageSize int
	RunID    string
}

// Crawler drives pagination over the fetch client and parser.
type Crawler struct {
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// New constructs a Crawler.
func New(fetcher Fetcher, cfg Config, logger *zap.Logger) *Crawler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &Crawler{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Run crawls pages [0, maxPages) of the search results for query and
// appends every new, in-window item to the sink. It returns the number of
// records written. A failed or empty page is skipped, never fatal; the
// crawl terminates after maxPages regardless of fill rate. Dedup across and
// within runs both go through seen.
//
// The seen-set is persisted by the caller after Run returns, so the overall
// contract is at-least-once append with best-effort dedup.
func (c *Crawler) Run(ctx context.Context, query string, window Window, maxPages int, seen *SeenSet, sink *Sink) (int, error) {
	total := 0
	for p := 0; p < maxPages; p++ {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("crawl canceled at page %d: %w", p, err)
		}
		params := url.Values{
			"q":    {query},
			"t":    {"govall"},
			"n":    {strconv.Itoa(c.cfg.PageSize)},
			"p":    {strconv.Itoa(p)},
			"sort": {"time"},
		}
		out := c.fetcher.Get(ctx, c.cfg.BaseURL, params)
		if !out.OK() {
			c.logger.Warn("search page fetch failed",
				zap.Int("page", p),
				zap.Bool("robots_allowed", out.RobotsAllowed),
				zap.String("error", out.Err))
			continue
		}
		if out.Status != http.StatusOK {
			c.logger.Warn("search page status",
				zap.Int("page", p), zap.Int("status", out.Status))
			continue
		}

		results := parse.Parse(string(out.Body))
		items := parse.Items(results)
		if len(items) == 0 {
			// Indistinguishable from exhausted pagination; keep going.
			c.logger.Info("no items parsed", zap.Int("page", p),
				zap.Int("nodes_skipped", len(results)-len(items)))
			continue
		}

		wrote, err := c.acceptItems(items, query, window, seen, sink)
		total += wrote
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *Crawler) acceptItems(items []parse.Item, query string, window Window, seen *SeenSet, sink *Sink) (int, error) {
	wrote := 0
	for _, item := range items {
		fp := fingerprint.Hash(item.URL)
		if seen.Contains(fp) {
			continue
		}
		// Date-window exclusion is independent of dedup: a filtered item
		// is not marked seen, so a wider window later can still emit it.
		if item.HasDate && window.Excludes(item.Date) {
			continue
		}
		rec := Record{
			Source:      c.cfg.Source,
			Query:       query,
			URL:         item.URL,
			Title:       item.Title,
			Snippet:     item.Snippet,
			CollectedAt: c.now().Format(collectedAtLayout),
			RunID:       c.cfg.RunID,
			Fingerprint: fp,
		}
		if item.HasDate {
			d := item.Date.Format("2006-01-02")
			rec.PubDate = &d
		}
		if err := sink.Append(rec); err != nil {
			return wrote, err
		}
		seen.Add(fp)
		metrics.ObserveNewsItem()
		wrote++
	}
	return wrote, nil
}
