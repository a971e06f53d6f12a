package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/pkg/metrics"
)

// requestLogger logs requests through the internal logger and records
// the per-listener request counter.
func requestLogger(listener string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			logger.Debug("Request started",
				logger.Listener(listener),
				logger.RequestID(requestID),
				"method", r.Method,
				"path", r.URL.Path,
				logger.ClientIP(peerAddr(r)),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			metrics.HTTPRequestsTotal.WithLabelValues(listener, strconv.Itoa(ww.Status())).Inc()

			logArgs := []any{
				logger.Listener(listener),
				logger.RequestID(requestID),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				logger.Size(int64(ww.BytesWritten())),
				logger.DurationMs(logger.Duration(start)),
			}
			// Health probes stay at DEBUG to keep the log readable.
			if r.URL.Path == "/health" {
				logger.Debug("Request completed", logArgs...)
			} else {
				logger.Info("Request completed", logArgs...)
			}
		})
	}
}

// peerLimiter tracks one client's token bucket.
type peerLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out per-peer rate limiters and prunes idle entries
// so the map stays bounded.
type limiterPool struct {
	mu      sync.Mutex
	rps     float64
	entries map[string]*peerLimiter
}

const (
	limiterIdleTTL    = time.Minute
	limiterPruneAbove = 1024
)

func newLimiterPool(rps float64) *limiterPool {
	return &limiterPool{rps: rps, entries: make(map[string]*peerLimiter)}
}

func (p *limiterPool) allow(peer string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[peer]
	if !ok {
		if len(p.entries) >= limiterPruneAbove {
			p.pruneLocked()
		}
		entry = &peerLimiter{lim: rate.NewLimiter(rate.Limit(p.rps), burstFor(p.rps))}
		p.entries[peer] = entry
	}
	entry.lastSeen = time.Now()
	return entry.lim.Allow()
}

func (p *limiterPool) pruneLocked() {
	cutoff := time.Now().Add(-limiterIdleTTL)
	for peer, entry := range p.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(p.entries, peer)
		}
	}
}

// burstFor allows short bursts up to the per-second rate, with a floor
// of one so low rates still admit single requests.
func burstFor(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(rps)
}

// rateLimit rejects requests from peers exceeding their bucket with
// 429.
func rateLimit(listener string, rps float64) func(http.Handler) http.Handler {
	pool := newLimiterPool(rps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer := peerAddr(r)
			if !pool.allow(peer) {
				metrics.RateLimitedTotal.WithLabelValues(listener).Inc()
				logger.Warn("Request rate limited", logger.Listener(listener), logger.ClientIP(peer))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
