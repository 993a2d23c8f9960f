// Package fetch implements the politeness-aware HTTP client: per-origin
// robots caching, per-host request spacing, retry with backoff, and a
// structured request log of every terminal outcome.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fanyang-dev/govpulse/internal/metrics"
)

// DefaultUserAgent identifies the collector to remote hosts and robots.txt.
const DefaultUserAgent = "govpulse-bot/0.1 (+https://github.com/fanyang-dev/govpulse)"

const maxBodyBytes = 16 << 20

// Config controls client behavior.
type Config struct {
	UserAgent         string
	RequestsPerMinute int
	Timeout           time.Duration
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
}

// Outcome is the terminal result of one Get. Exactly one of the terminal
// kinds holds: a response (Body, Status), an error (Err), or a robots
// denial (RobotsAllowed=false, no network call made).
type Outcome struct {
	URL           string
	RobotsAllowed bool
	Status        int
	Elapsed       time.Duration
	Err           string
	Body          []byte
}

// OK reports whether the outcome carries a usable response body.
func (o Outcome) OK() bool {
	return o.RobotsAllowed && o.Err == ""
}

// Client issues polite GET requests. All per-origin and per-host state is
// owned by the instance, so independent clients never cross-contaminate.
type Client struct {
	cfg    Config
	http   *http.Client
	robots *robotsCache
	gate   *hostGate
	reqLog RequestLog
	logger *zap.Logger
}

// New builds a Client. reqLog may be nil when no request log is wanted.
func New(cfg Config, reqLog RequestLog, logger *zap.Logger) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 12
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newHTTPTransport(),
		},
		robots: newRobotsCache(cfg.UserAgent, 10*time.Second, logger),
		gate:   newHostGate(cfg.RequestsPerMinute),
		reqLog: reqLog,
		logger: logger,
	}
}

// Get fetches rawURL with params merged into its query string. Every
// terminal outcome is appended to the request log.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) Outcome {
	u, err := url.Parse(rawURL)
	if err != nil {
		out := Outcome{URL: rawURL, RobotsAllowed: true, Err: fmt.Sprintf("parse url: %v", err)}
		c.finish(out)
		return out
	}
	if len(params) > 0 {
		q := u.Query()
		for key, vals := range params {
			for _, v := range vals {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	target := u.String()

	if !c.robots.Allowed(ctx, u) {
		c.logger.Warn("robots disallow", zap.String("url", target))
		out := Outcome{URL: target, RobotsAllowed: false}
		c.finish(out)
		return out
	}

	out := c.do(ctx, u.Host, target)
	c.finish(out)
	return out
}

var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func (c *Client) do(ctx context.Context, host, target string) Outcome {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffInitial
	bo.MaxInterval = c.cfg.BackoffMax
	bo.MaxElapsedTime = 0

	out := Outcome{URL: target, RobotsAllowed: true}
	start := time.Now()
	var hint time.Duration
	var hasHint bool

	attempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := bo.NextBackOff()
			if hasHint {
				delay = hint
			}
			if err := sleepWithContext(ctx, delay); err != nil {
				out.Err = err.Error()
				break
			}
			metrics.ObserveRetry()
			c.logger.Debug("retrying request",
				zap.String("url", target), zap.Int("attempt", attempt))
		}
		// A retry is a new request for rate-limiting purposes.
		if err := c.gate.Wait(ctx, host); err != nil {
			out.Err = err.Error()
			break
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			out.Err = fmt.Sprintf("build request: %v", err)
			break
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			out.Status, out.Body = 0, nil
			out.Err = err.Error()
			hasHint = false
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
		if readErr != nil {
			out.Status, out.Body = 0, nil
			out.Err = fmt.Sprintf("read body: %v", readErr)
			hasHint = false
			continue
		}
		out.Status = resp.StatusCode
		out.Body = body
		out.Err = ""
		if !retryableStatuses[resp.StatusCode] {
			break
		}
		hint, hasHint = retryAfterHint(resp.Header.Get("Retry-After"))
	}
	out.Elapsed = time.Since(start)
	return out
}

// finish logs the terminal outcome; nothing is ever silently dropped.
func (c *Client) finish(out Outcome) {
	switch {
	case !out.RobotsAllowed:
		metrics.ObserveRobotsDenied()
		metrics.ObserveFetchOutcome("robots_denied")
	case out.Err != "":
		metrics.ObserveFetchOutcome("error")
		c.logger.Error("GET failed", zap.String("url", out.URL), zap.String("error", out.Err))
	default:
		metrics.ObserveFetchOutcome(fmt.Sprintf("%dxx", out.Status/100))
	}

	if c.reqLog == nil {
		return
	}
	errText := out.Err
	if !out.RobotsAllowed {
		errText = "robots_disallow"
	}
	entry := Entry{
		TS:            time.Now(),
		Method:        http.MethodGet,
		URL:           out.URL,
		Status:        out.Status,
		Elapsed:       out.Elapsed,
		Err:           errText,
		RobotsAllowed: out.RobotsAllowed,
	}
	if err := c.reqLog.Record(entry); err != nil {
		c.logger.Error("request log append failed", zap.Error(err))
	}
}

// retryAfterHint parses a Retry-After header as either delay seconds or an
// HTTP date.
func retryAfterHint(h string) (time.Duration, bool) {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
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
