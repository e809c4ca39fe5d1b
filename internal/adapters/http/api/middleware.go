// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/okian/visiontags/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusInternalError   = 500
	statusBadGateway      = 502
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := metrics.Since(start)
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= statusBadRequest {
			errorType := getErrorType(wrapped.statusCode)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByComponent("http", errorType)
		}
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode == statusBadGateway:
		return "collaborator"
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// RateLimiter keeps one token bucket per client. Buckets live in an LRU so
// the set of tracked clients stays bounded.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows perSec requests per client with the given burst,
// tracking at most size clients.
func NewRateLimiter(perSec float64, burst, size int) (*RateLimiter, error) {
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("create limiter cache: %w", err)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiters: cache, limit: rate.Limit(perSec), burst: burst}, nil
}

// Allow reports whether the client identified by key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(key, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware rejects requests over the client's budget with 429.
func (l *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			metrics.RecordRateLimited()
			writeFailure(w, NewKind("api.rate_limit", ErrRateLimited))
			return
		}
		next(w, r)
	}
}

// clientKey identifies the caller by X-User, falling back to the remote host.
func clientKey(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(userHeader)); user != "" {
		return "user:" + user
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}
	return "addr:" + host
}
