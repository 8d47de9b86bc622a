package middleware

import (
	"compress/gzip"
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/amaumene/rdstream/internal/cache"
	"github.com/amaumene/rdstream/pkg/logger"
	"github.com/amaumene/rdstream/pkg/security"
)

const (
	// RequestIDHeader carries the per-request correlation id.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key holding the request id.
	RequestIDKey = "request_id"

	apiKeyHeader = "X-API-Key"
	apiKeyParam  = "api_key"

	maxRequestIDLength = 64
	limiterCacheSize   = 10000
)

type gzipResponseWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	return g.writer.Write(data)
}

func (g *gzipResponseWriter) WriteString(s string) (int, error) {
	return g.writer.Write([]byte(s))
}

// Gzip compresses JSON responses. It must never wrap the playback routes,
// whose bodies are already-compressed media and whose Content-Length is exact.
func Gzip() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		gz, err := gzip.NewWriterLevel(c.Writer, gzip.BestSpeed)
		if err != nil {
			c.Next()
			return
		}
		defer gz.Close()

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipResponseWriter{ResponseWriter: c.Writer, writer: gz}
		c.Next()
	}
}

// CORS opens every route to browser-based Stremio clients.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Range, "+apiKeyHeader)
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges, "+RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID tags each request with an id, reusing a sane inbound one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger writes one line per request. API keys in the query are masked.
func Logger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.Query()

		c.Next()

		if key := query.Get(apiKeyParam); key != "" {
			query.Set(apiKeyParam, security.MaskAPIKey(key))
		}
		if encoded := query.Encode(); encoded != "" {
			path = path + "?" + encoded
		}

		latency := time.Since(start)
		status := c.Writer.Status()
		line := fmt.Sprintf("[HTTP] %s %s %s %d %v %s", c.GetString(RequestIDKey), c.ClientIP(), c.Request.Method, status, latency, path)

		switch {
		case status >= 500:
			log.Errorf("%s", line)
		case status >= 400:
			log.Warnf("%s", line)
		default:
			log.Infof("%s", line)
		}
	}
}

// APIKey rejects requests without the shared addon key. An empty key
// disables the check. Exempt paths are always served.
func APIKey(expected string, exempt ...string) gin.HandlerFunc {
	validator := security.NewAPIKeyValidator()
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if expected == "" || skip[c.Request.URL.Path] || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		provided := c.Query(apiKeyParam)
		if provided == "" {
			provided = c.GetHeader(apiKeyHeader)
		}

		if provided == "" || !validator.SecureCompare(provided, expected) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "UNAUTHORIZED",
				"message":   "missing or invalid API key",
				"retryable": false,
			})
			return
		}

		c.Next()
	}
}

// RateLimiter throttles each client to a fixed number of requests per hour.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.LRUCache[*rate.Limiter]
	mu       sync.Mutex
}

// NewRateLimiter allows perHour requests per client, all of which may be
// spent in a burst. perHour <= 0 disables limiting.
func NewRateLimiter(perHour int) *RateLimiter {
	if perHour <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{
		limit:    rate.Every(time.Hour / time.Duration(perHour)),
		burst:    perHour,
		limiters: cache.New[*rate.Limiter](limiterCacheSize, time.Hour),
	}
}

// StartCleanup drops idle client limiters until ctx ends.
func (r *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if r.limiters != nil {
		r.limiters.StartCleanup(ctx, interval)
	}
}

func (r *RateLimiter) limiter(client string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters.Get(client); ok {
		return l
	}
	l := rate.NewLimiter(r.limit, r.burst)
	r.limiters.Set(client, l)
	return l
}

// Middleware answers 429 with Retry-After once a client is over its budget.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.limiters == nil || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		res := r.limiter(c.ClientIP()).Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			c.Header("Retry-After", fmt.Sprint(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "RATE_LIMITED",
				"message":   "too many requests",
				"retryable": true,
			})
			return
		}

		c.Next()
	}
}
