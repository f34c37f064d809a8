package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"smartwallet/pkg/cache"
	"smartwallet/pkg/logging"

	"go.uber.org/zap"
)

const (
	// HeaderKey is the request header carrying the client's idempotency key.
	HeaderKey = "Idempotency-Key"

	// HeaderReplayed is set on responses served from a stored result.
	HeaderReplayed = "Idempotency-Replayed"

	maxKeyLength = 128

	storeTimeout = 2 * time.Second
)

// Config holds the idempotency settings.
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// TTL is how long a stored response can be replayed.
	TTL time.Duration `mapstructure:"ttl"`

	// ExpectedKeys and FalsePositiveRate size the bloom pre-filter.
	ExpectedKeys      uint    `mapstructure:"expected_keys"`
	FalsePositiveRate float64 `mapstructure:"false_positive_rate"`
}

// DefaultConfig returns the default idempotency configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		TTL:               24 * time.Hour,
		ExpectedKeys:      100000,
		FalsePositiveRate: 0.01,
	}
}

// storedResponse is what gets replayed for a repeated key.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Guard replays the stored response of a mutation when a client repeats it
// with the same Idempotency-Key. Every final response is stored, server
// errors included: a request that timed out may already have moved money, so
// retrying it needs a fresh key.
type Guard struct {
	store  cache.Layer
	keys   *cache.KeyPattern
	ttl    time.Duration
	logger *logging.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewGuard creates a guard storing responses in store.
func NewGuard(store cache.Layer, ttl time.Duration, logger *logging.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &Guard{
		store:    store,
		keys:     cache.NewKeyPattern("idempotency", ":"),
		ttl:      ttl,
		logger:   logging.OrNop(logger).Named("idempotency"),
		inFlight: make(map[string]struct{}),
	}
}

// Middleware wraps next. Requests without the header pass straight through.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientKey := r.Header.Get(HeaderKey)
		if clientKey == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		if len(clientKey) > maxKeyLength {
			http.Error(w, "Idempotency-Key too long", http.StatusBadRequest)
			return
		}

		// Keys are scoped to the route so one key cannot replay a different operation.
		key := g.keys.Build(r.Method, r.URL.Path, clientKey)
		ctx := r.Context()

		if !g.begin(key) {
			http.Error(w, "request with this Idempotency-Key is in progress", http.StatusConflict)
			return
		}
		defer g.end(key)

		if data, err := g.store.Get(ctx, key); err == nil {
			var stored storedResponse
			if err := json.Unmarshal(data, &stored); err == nil {
				g.logger.Debug("replaying response", zap.String("key", clientKey), zap.Int("status", stored.Status))
				replay(w, stored)
				return
			}
			g.logger.Warn("discarding undecodable stored response", zap.String("key", clientKey))
		} else if !cache.IsNotFound(err) {
			g.logger.Warn("idempotency store unavailable", zap.String("key", clientKey), zap.Error(err))
		}

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		data, err := json.Marshal(storedResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			return
		}
		// The request context may already be past its deadline.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()
		if err := g.store.Set(storeCtx, key, data, g.ttl); err != nil {
			g.logger.Warn("storing response failed", zap.String("key", clientKey), zap.Error(err))
		}
	})
}

func (g *Guard) begin(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g *Guard) end(key string) {
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}

func replay(w http.ResponseWriter, stored storedResponse) {
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
}

// recorder tees the response into a buffer.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
