package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cuemby/ghmirror/pkg/metrics"
)

// maxTrackedClients bounds the per-client limiter map; the map is
// cleared once it grows past this
const maxTrackedClients = 10000

// requireKey verifies the pre-shared key before handing the request to
// the resource handlers. The comparison is case-insensitive; missing
// headers and unconfigured keys never match.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header != "" && s.cfg.PresharedKey != "" && strings.EqualFold(header, s.cfg.PresharedKey) {
			next.ServeHTTP(w, r)
			return
		}

		s.logger.Warn().
			Str("path", r.URL.Path).
			Str("client", clientAddr(r)).
			Msg("Rejected request with bad or missing key")

		time.Sleep(s.authDelay)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// limit applies the per-client rate limit when one is configured
func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiters == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientAddr(r)
		if !s.limiters.allow(client) {
			s.logger.Warn().Str("client", client).Msg("Rate limit exceeded")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument records request counts and durations
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// statusRecorder captures the status code a handler writes
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// clientLimiters tracks one token bucket per client address
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiters(perSecond float64, burst int) *clientLimiters {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (c *clientLimiters) allow(client string) bool {
	c.mu.Lock()
	if len(c.limiters) > maxTrackedClients {
		c.limiters = make(map[string]*rate.Limiter)
	}
	limiter, exists := c.limiters[client]
	if !exists {
		limiter = rate.NewLimiter(c.limit, c.burst)
		c.limiters[client] = limiter
	}
	c.mu.Unlock()

	return limiter.Allow()
}

// clientAddr extracts the client address from the request, preferring
// forwarded headers set by an upstream proxy
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
