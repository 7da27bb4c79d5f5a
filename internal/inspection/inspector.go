// Package inspection provides the WAF-lite request inspector: regex payload
// scoring plus a per-client rate bucket. It only ever produces a
// {score, findings} hint for the anomaly scorer; it never blocks a request.
package inspection

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	sqliPattern = regexp.MustCompile(`(?i)(?:union|select|drop|insert|update|delete|;|--|\bor\b\s+1=1)`)
	xssPattern  = regexp.MustCompile(`(?i)(<script|onerror=|onload=)`)
	fuzzPattern = regexp.MustCompile(`(?i)(\.\./|%00|%2e%2e|%2f)`)
)

const (
	scoreSQLi         = 30
	scoreXSS          = 30
	scoreFuzz         = 20
	scoreLargePayload = 10
	scoreRapidRate    = 20

	maxHintScore = 100

	largePayloadBytes = 5000
	maxInspectedBytes = 64 * 1024
)

// Config tunes the inspector.
type Config struct {
	RateWindow  time.Duration `yaml:"rate_window"`
	RateMax     int           `yaml:"rate_max"`
	LogCapacity int           `yaml:"log_capacity"`
}

// DefaultConfig returns the inspector defaults.
func DefaultConfig() Config {
	return Config{
		RateWindow:  30 * time.Second,
		RateMax:     20,
		LogCapacity: 200,
	}
}

// Hint is the inspection result handed to the UEBA scorer's web-alert input.
type Hint struct {
	Score    int      `json:"score"`
	Findings []string `json:"findings"`
}

// Record is one inspected request, retained for the security log endpoint.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	ClientIP  string    `json:"client_ip"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Score     int       `json:"score"`
	Findings  []string  `json:"findings"`
}

// RateBucket counts requests per client inside a sliding window.
type RateBucket interface {
	Incr(ctx context.Context, clientIP string) (int, error)
}

// memoryBucket is the in-process fallback when Redis is not configured.
type memoryBucket struct {
	window time.Duration
	mu     sync.Mutex
	hits   map[string][]time.Time
}

func newMemoryBucket(window time.Duration) *memoryBucket {
	return &memoryBucket{window: window, hits: make(map[string][]time.Time)}
}

func (b *memoryBucket) Incr(_ context.Context, clientIP string) (int, error) {
	now := time.Now()
	cutoff := now.Add(-b.window)

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.hits[clientIP][:0]
	for _, t := range b.hits[clientIP] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	b.hits[clientIP] = kept
	return len(kept), nil
}

// redisBucket counts with INCR+PEXPIRE so the window survives restarts and
// is shared across replicas.
type redisBucket struct {
	client *redis.Client
	window time.Duration
}

var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

func (b *redisBucket) Incr(ctx context.Context, clientIP string) (int, error) {
	key := "fleetsentry:inspection:rate:" + clientIP
	return incrScript.Run(ctx, b.client, []string{key}, b.window.Milliseconds()).Int()
}

// Inspector scores request payloads and tracks per-client hints.
type Inspector struct {
	config   Config
	bucket   RateBucket
	logger   *zap.Logger
	findings *prometheus.CounterVec

	mu      sync.RWMutex
	hints   map[string]Hint
	records []Record
}

// New builds an inspector. A nil Redis client selects the in-memory bucket.
func New(cfg Config, redisClient *redis.Client, logger *zap.Logger) *Inspector {
	def := DefaultConfig()
	if cfg.RateWindow == 0 {
		cfg.RateWindow = def.RateWindow
	}
	if cfg.RateMax == 0 {
		cfg.RateMax = def.RateMax
	}
	if cfg.LogCapacity == 0 {
		cfg.LogCapacity = def.LogCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var bucket RateBucket
	if redisClient != nil {
		bucket = &redisBucket{client: redisClient, window: cfg.RateWindow}
	} else {
		bucket = newMemoryBucket(cfg.RateWindow)
	}

	return &Inspector{
		config: cfg,
		bucket: bucket,
		logger: logger,
		hints:  make(map[string]Hint),
	}
}

// Inspect scores one request payload for a client. Failures in the rate
// bucket degrade to a zero rate contribution; inspection is advisory and
// must never fail the request path.
func (i *Inspector) Inspect(ctx context.Context, clientIP, body string) Hint {
	var hint Hint

	if sqliPattern.MatchString(body) {
		hint.Score += scoreSQLi
		hint.Findings = append(hint.Findings, "SQLi pattern detected")
	}
	if xssPattern.MatchString(body) {
		hint.Score += scoreXSS
		hint.Findings = append(hint.Findings, "XSS pattern detected")
	}
	if fuzzPattern.MatchString(body) {
		hint.Score += scoreFuzz
		hint.Findings = append(hint.Findings, "Traversal/fuzz pattern detected")
	}
	if len(body) > largePayloadBytes {
		hint.Score += scoreLargePayload
		hint.Findings = append(hint.Findings, "Unusually large payload")
	}

	count, err := i.bucket.Incr(ctx, clientIP)
	if err != nil {
		i.logger.Warn("inspection rate bucket unavailable", zap.Error(err))
	} else if count > i.config.RateMax {
		hint.Score += scoreRapidRate
		hint.Findings = append(hint.Findings, "Rapid request rate")
	}

	if hint.Score > maxHintScore {
		hint.Score = maxHintScore
	}
	return hint
}

// HintFor returns the latest hint recorded for a client. Absent clients get
// the benign zero hint.
func (i *Inspector) HintFor(clientIP string) Hint {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.hints[clientIP]
}

// Recent returns up to n recent inspection records, newest last.
func (i *Inspector) Recent(n int) []Record {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if n <= 0 || n > len(i.records) {
		n = len(i.records)
	}
	out := make([]Record, n)
	copy(out, i.records[len(i.records)-n:])
	return out
}

// InstrumentFindings routes every recorded finding to the counter, labeled
// by finding text (a fixed, small set).
func (i *Inspector) InstrumentFindings(c *prometheus.CounterVec) {
	i.findings = c
}

func (i *Inspector) record(rec Record, hint Hint) {
	if i.findings != nil {
		for _, f := range hint.Findings {
			i.findings.WithLabelValues(f).Inc()
		}
	}
	i.mu.Lock()
	i.hints[rec.ClientIP] = hint
	i.records = append(i.records, rec)
	if over := len(i.records) - i.config.LogCapacity; over > 0 {
		i.records = append(i.records[:0], i.records[over:]...)
	}
	i.mu.Unlock()
}

// Middleware inspects every request body and stashes the per-client hint.
// The body is re-buffered so downstream handlers read it untouched.
func (i *Inspector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(r.Body, maxInspectedBytes))
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		ip := ClientIP(r)
		hint := i.Inspect(r.Context(), ip, string(body))
		i.record(Record{
			Timestamp: time.Now().UTC(),
			ClientIP:  ip,
			UserAgent: r.UserAgent(),
			Path:      r.URL.Path,
			Score:     hint.Score,
			Findings:  hint.Findings,
		}, hint)

		if hint.Score > 0 {
			i.logger.Info("request inspection flagged payload",
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path),
				zap.Int("score", hint.Score),
				zap.Strings("findings", hint.Findings),
			)
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP resolves the originating client address, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return host
}
