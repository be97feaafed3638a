package cost

import (
	"sync"

	"go.uber.org/zap"
)

// Tracker accumulates spend against a ceiling. It is safe for concurrent use
// and its total only grows.
type Tracker struct {
	mu       sync.Mutex
	ceiling  float64
	total    float64
	perModel map[string]float64
	prices   PriceTable
	log      *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPrices replaces the price table.
func WithPrices(prices PriceTable) Option {
	return func(t *Tracker) {
		if prices != nil {
			t.prices = prices
		}
	}
}

// WithLogger sets the logger used for per-call debug lines.
func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// NewTracker creates a tracker with the given USD ceiling.
func NewTracker(ceiling float64, opts ...Option) *Tracker {
	t := &Tracker{
		ceiling:  ceiling,
		perModel: make(map[string]float64),
		prices:   DefaultPrices(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records one call and returns its cost.
func (t *Tracker) Track(model string, inputTokens, outputTokens int) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	price, known := t.prices.Lookup(model)
	cost := price.Cost(inputTokens, outputTokens)

	t.mu.Lock()
	t.total += cost
	t.perModel[model] += cost
	total := t.total
	t.mu.Unlock()

	t.log.Debug("cost tracked",
		zap.String("model", model),
		zap.Bool("known_model", known),
		zap.Int("input_tokens", inputTokens),
		zap.Int("output_tokens", outputTokens),
		zap.Float64("call_cost", cost),
		zap.Float64("total_cost", total))
	return cost
}

// OverLimit reports whether the ceiling has been reached.
func (t *Tracker) OverLimit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total >= t.ceiling
}

// Remaining is the unspent budget, never negative.
func (t *Tracker) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return max(0, t.ceiling-t.total)
}

func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Tracker) Ceiling() float64 {
	return t.ceiling
}

// ByModel returns a copy of the per-model totals.
func (t *Tracker) ByModel() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.perModel))
	for k, v := range t.perModel {
		out[k] = v
	}
	return out
}
