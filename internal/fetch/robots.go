package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const maxRobotsBytes = 1 << 20

// robotsCache caches the robots.txt decision per origin (scheme+host).
// An origin whose robots.txt cannot be retrieved or parsed is cached as
// nil and denied for the remainder of the run: fail safe, not fail open.
type robotsCache struct {
	mu        sync.Mutex
	client    *http.Client
	userAgent string
	cache     map[string]*robotstxt.RobotsData
	logger    *zap.Logger
}

func newRobotsCache(userAgent string, timeout time.Duration, logger *zap.Logger) *robotsCache {
	return &robotsCache{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		logger:    logger,
	}
}

// Allowed reports whether policy permits fetching u. The first call for an
// origin fetches its robots.txt; the mutex keeps concurrent callers from
// duplicating that fetch.
func (r *robotsCache) Allowed(ctx context.Context, u *url.URL) bool {
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	r.mu.Lock()
	data, ok := r.cache[origin]
	if !ok {
		data = r.load(ctx, u)
		r.cache[origin] = data
	}
	r.mu.Unlock()

	if data == nil {
		return false
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

func (r *robotsCache) load(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("robots fetch failed; denying origin for this run",
			zap.String("origin", u.Host), zap.Error(err))
		return nil
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		r.logger.Warn("robots read failed; denying origin for this run",
			zap.String("origin", u.Host), zap.Error(err))
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		r.logger.Warn("robots parse failed; denying origin for this run",
			zap.String("origin", u.Host), zap.Error(err))
		return nil
	}
	return data
}
