package usage

import (
	"strings"
	"unicode/utf8"
)

// Price is the on-demand list price in USD per 1k tokens
type Price struct {
	InputPer1k  float64
	OutputPer1k float64
}

// Estimator prices token usage and estimates token counts when a response omits usage
type Estimator struct {
	prices       map[string]Price   // model id fragment -> price
	charsPerTok  map[string]float64 // model id fragment -> chars per token
	defaultPrice Price
}

func NewEstimator() *Estimator {
	return &Estimator{
		prices: map[string]Price{
			"amazon.nova-micro":         {InputPer1k: 0.000035, OutputPer1k: 0.00014},
			"amazon.nova-lite":          {InputPer1k: 0.00006, OutputPer1k: 0.00024},
			"amazon.nova-pro":           {InputPer1k: 0.0008, OutputPer1k: 0.0032},
			"anthropic.claude-3-haiku":  {InputPer1k: 0.00025, OutputPer1k: 0.00125},
			"anthropic.claude-3-sonnet": {InputPer1k: 0.003, OutputPer1k: 0.015},
		},
		charsPerTok: map[string]float64{
			"amazon.nova": 4.0,
			"anthropic":   3.8,
			"default":     3.8,
		},
		defaultPrice: Price{InputPer1k: 0.003, OutputPer1k: 0.015},
	}
}

// PriceFor returns the price for a model ARN or id, matching on the model name fragment
func (e *Estimator) PriceFor(model string) (Price, bool) {
	best, bestLen := Price{}, 0
	for frag, p := range e.prices {
		if strings.Contains(model, frag) && len(frag) > bestLen {
			best, bestLen = p, len(frag)
		}
	}
	if bestLen == 0 {
		return e.defaultPrice, false
	}
	return best, true
}

// CostUSD prices one call's input and output tokens
func (e *Estimator) CostUSD(model string, inputTokens, outputTokens int64) float64 {
	p, _ := e.PriceFor(model)
	return float64(inputTokens)/1000.0*p.InputPer1k + float64(outputTokens)/1000.0*p.OutputPer1k
}

// EstimateTokens estimates the number of tokens in text for a given model
func (e *Estimator) EstimateTokens(text, model string) int64 {
	if text == "" {
		return 0
	}
	rate := e.charsPerTok["default"]
	for frag, r := range e.charsPerTok {
		if frag != "default" && strings.Contains(model, frag) {
			rate = r
			break
		}
	}
	est := float64(utf8.RuneCountInString(text)) / rate
	// round up so we never underestimate
	if est != float64(int64(est)) {
		est = float64(int64(est) + 1)
	}
	return int64(est)
}
