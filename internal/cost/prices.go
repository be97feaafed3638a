package cost

import "strings"

// Price is the USD cost per 1K tokens.
type Price struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// DefaultPrice applies to models missing from the table.
var DefaultPrice = Price{Input: 0.01, Output: 0.03}

// PriceTable maps model ids to prices.
type PriceTable map[string]Price

// DefaultPrices returns a fresh copy of the built-in table.
func DefaultPrices() PriceTable {
	return PriceTable{
		"gpt-4o":           {Input: 0.0025, Output: 0.01},
		"gpt-4o-mini":      {Input: 0.00015, Output: 0.0006},
		"claude-sonnet-4":  {Input: 0.003, Output: 0.015},
		"claude-3-5-haiku": {Input: 0.0008, Output: 0.004},
		"gemini-2.0-flash": {Input: 0, Output: 0},
		"gemini-2.5-pro":   {Input: 0.00125, Output: 0.005},
	}
}

// With returns a copy of t with overrides applied.
func (t PriceTable) With(overrides map[string]Price) PriceTable {
	out := make(PriceTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Lookup finds the price for model. An exact match wins, then the longest
// key that prefixes model (so dated ids such as claude-sonnet-4-20250514
// resolve), then DefaultPrice.
func (t PriceTable) Lookup(model string) (Price, bool) {
	if p, ok := t[model]; ok {
		return p, true
	}
	best, found := "", false
	for k := range t {
		if strings.HasPrefix(model, k) && len(k) > len(best) {
			best, found = k, true
		}
	}
	if found {
		return t[best], true
	}
	return DefaultPrice, false
}

// Cost prices a single call.
func (p Price) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*p.Input + float64(outputTokens)/1000*p.Output
}
