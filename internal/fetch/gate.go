package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostGate enforces a minimum spacing between requests to the same host.
// All callers and all retries pass through the same per-host limiter, so
// requests to one host stay fully serialized regardless of concurrency.
type hostGate struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

func newHostGate(requestsPerMinute int) *hostGate {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	return &hostGate{
		interval: time.Duration(float64(time.Minute) / float64(requestsPerMinute)),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host's spacing floor is met or ctx finishes.
func (g *hostGate) Wait(ctx context.Context, host string) error {
	key := strings.ToLower(host)
	g.mu.Lock()
	limiter, ok := g.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(g.interval), 1)
		g.limiters[key] = limiter
	}
	g.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate gate wait for %s: %w", host, err)
	}
	return nil
}
