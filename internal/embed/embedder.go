package embed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/ai"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/pkg/httpx"
)

// Embedder turns texts into vectors with per-tenant accounting. Cache tiers
// wrap this interface.
type Embedder interface {
	EmbedTexts(ctx context.Context, orgID string, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

type usageStore interface {
	Increment(ctx context.Context, orgID, date string, tokens, calls int64, cost float64) error
	MonthTotals(ctx context.Context, orgID, monthPrefix string) (*model.UsageCounter, error)
}

type Config struct {
	BatchSize          int
	Dimension          int
	UnitPricePer1K     float64
	MonthlyTokenBudget int64
	RPM                int
	MaxAttempts        int
	BaseBackoff        time.Duration
	MaxBackoff         time.Duration
	BreakerThreshold   int
	BreakerCooldown    time.Duration
}

func (c *Config) fillDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.UnitPricePer1K == 0 {
		c.UnitPricePer1K = 0.00013
	}
	if c.RPM <= 0 {
		c.RPM = 3000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 300 * time.Second
	}
}

type Service struct {
	embedder ai.IEmbedder
	usage    usageStore
	cfg      Config

	breaker *breaker
	bucket  *tokenBucket

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewService(embedder ai.IEmbedder, usage usageStore, cfg Config) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	cfg.fillDefaults()
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embed dimension must be positive")
	}
	return &Service{
		embedder: embedder,
		usage:    usage,
		cfg:      cfg,
		breaker:  newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		bucket:   newTokenBucket(cfg.RPM),
	}, nil
}

func (s *Service) Dimension() int {
	return s.cfg.Dimension
}

func (s *Service) ModelName() string {
	return s.embedder.ModelName()
}

// EmbedTexts returns one vector per input, in order. It checks the tenant's
// monthly budget first, then works through the inputs in upstream-sized
// batches with rate limiting and retries.
func (s *Service) EmbedTexts(ctx context.Context, orgID string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.checkBudget(ctx, orgID); err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := s.embedBatch(ctx, orgID, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (s *Service) checkBudget(ctx context.Context, orgID string) error {
	if s.cfg.MonthlyTokenBudget <= 0 || s.usage == nil {
		return nil
	}
	month := time.Now().UTC().Format("2006-01")
	totals, err := s.usage.MonthTotals(ctx, orgID, month)
	if err != nil {
		return fmt.Errorf("read usage: %w", err)
	}
	if totals.TokensUsed >= s.cfg.MonthlyTokenBudget {
		return fmt.Errorf("%w: %d tokens used of %d this month",
			appErr.ErrBudgetExceeded, totals.TokensUsed, s.cfg.MonthlyTokenBudget)
	}
	return nil
}

func (s *Service) embedBatch(ctx context.Context, orgID string, texts []string) ([][]float32, error) {
	var lastErr error
	backoff := s.cfg.BaseBackoff
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := httpx.SleepContext(ctx, httpx.JitterSleep(backoff)); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
		}
		if !s.breaker.Allow() {
			return nil, fmt.Errorf("%w: embedding upstream", appErr.ErrCircuitOpen)
		}
		if err := s.bucket.Wait(ctx); err != nil {
			return nil, err
		}
		vectors, tokens, err := s.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			if verr := s.validate(texts, vectors); verr != nil {
				s.breaker.Success()
				return nil, verr
			}
			s.breaker.Success()
			s.recordUsage(ctx, orgID, texts, tokens)
			return vectors, nil
		}
		s.breaker.Failure()
		lastErr = err
		if !httpx.IsRetryableError(err) {
			break
		}
		logutil.GetLogger(ctx).Warn("embedding batch failed, retrying",
			zap.Int("attempt", attempt), zap.Int("batch_size", len(texts)), zap.Error(err))
	}
	return nil, fmt.Errorf("%w: %v", appErr.ErrUpstream, lastErr)
}

func (s *Service) validate(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, vec := range vectors {
		if len(vec) != s.cfg.Dimension {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vec), s.cfg.Dimension)
		}
	}
	return nil
}

func (s *Service) recordUsage(ctx context.Context, orgID string, texts []string, tokens int) {
	if s.usage == nil {
		return
	}
	if tokens <= 0 {
		tokens = s.estimateTokens(texts)
	}
	date := time.Now().UTC().Format("2006-01-02")
	cost := float64(tokens) / 1000 * s.cfg.UnitPricePer1K
	if err := s.usage.Increment(ctx, orgID, date, int64(tokens), 1, cost); err != nil {
		logutil.GetLogger(ctx).Warn("failed to record embedding usage",
			zap.String("org_id", orgID), zap.Error(err))
	}
}

// estimateTokens covers providers that do not report usage.
func (s *Service) estimateTokens(texts []string) int {
	s.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			s.enc = enc
		}
	})
	total := 0
	for _, text := range texts {
		if s.enc != nil {
			total += len(s.enc.Encode(text, nil, nil))
		} else {
			total += len(text) / 4
		}
	}
	return total
}

// breaker opens after a run of consecutive failures and lets a single probe
// through once the cool-down passes.
type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown}
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().After(b.openUntil)
}

func (b *breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}

func (b *breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.cooldown)
		// next failure after the probe re-opens immediately
		b.failures = b.threshold - 1
	}
}

// tokenBucket caps upstream calls per minute. Refill is continuous.
type tokenBucket struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(rpm int) *tokenBucket {
	rate := float64(rpm) / 60
	burst := rate
	// sub-minute rates still need one whole token to ever admit a call
	if burst < 1 {
		burst = 1
	}
	return &tokenBucket{rate: rate, burst: burst, tokens: burst, last: time.Now()}
}

func (t *tokenBucket) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		now := time.Now()
		t.tokens += now.Sub(t.last).Seconds() * t.rate
		if t.tokens > t.burst {
			t.tokens = t.burst
		}
		t.last = now
		if t.tokens >= 1 {
			t.tokens--
			t.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - t.tokens) / t.rate * float64(time.Second))
		t.mu.Unlock()
		if err := httpx.SleepContext(ctx, wait); err != nil {
			return err
		}
	}
}
