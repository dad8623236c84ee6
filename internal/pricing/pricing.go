// Package pricing holds the static per-model price table used for admission estimates and settlement.
package pricing

import "strings"

// SafetyMultiplier pads admission estimates against tokenizer drift.
const SafetyMultiplier = 1.2

// DefaultOutputTokens is assumed when a request sets no output cap.
const DefaultOutputTokens = 1000

// charsPerToken approximates sub-word tokenization of serialized message JSON.
const charsPerToken = 4

const tokensPerMillion = 1_000_000.0

// Price is USD per 1M tokens.
type Price struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// DefaultPrice applies to models missing from the table. It sits at the upper end of the
// catalog so unknown models are not under-billed.
var DefaultPrice = Price{Input: 3.00, Output: 15.00}

// Prices keys are normalised via NormaliseModel.
var Prices = map[string]Price{
	// OpenAI
	"openai/gpt-4o":       {Input: 2.50, Output: 10.00},
	"openai/gpt-4o-mini":  {Input: 0.15, Output: 0.60},
	"openai/gpt-4.1":      {Input: 2.00, Output: 8.00},
	"openai/gpt-4.1-mini": {Input: 0.40, Output: 1.60},
	"openai/o3-mini":      {Input: 1.10, Output: 4.40},
	// Anthropic
	"anthropic/claude-3.5-sonnet": {Input: 3.00, Output: 15.00},
	"anthropic/claude-3.5-haiku":  {Input: 0.80, Output: 4.00},
	"anthropic/claude-sonnet-4":   {Input: 3.00, Output: 15.00},
	"anthropic/claude-opus-4":     {Input: 15.00, Output: 75.00},
	// Google
	"google/gemini-2.0-flash-001": {Input: 0.10, Output: 0.40},
	"google/gemini-2.5-pro":       {Input: 1.25, Output: 10.00},
	// Meta / DeepSeek / Mistral
	"meta-llama/llama-3.1-70b-instruct": {Input: 0.12, Output: 0.30},
	"meta-llama/llama-3.3-70b-instruct": {Input: 0.12, Output: 0.30},
	"deepseek/deepseek-chat":            {Input: 0.27, Output: 1.10},
	"deepseek/deepseek-r1":              {Input: 0.55, Output: 2.19},
	"mistralai/mistral-large":           {Input: 2.00, Output: 6.00},
}

// NormaliseModel lower-cases and trims a model id and strips routing suffixes such as ":free".
func NormaliseModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.IndexByte(m, ':'); i >= 0 {
		m = m[:i]
	}
	return m
}

// Lookup returns the price for model and whether it came from the table.
func Lookup(model string) (Price, bool) {
	p, ok := Prices[NormaliseModel(model)]
	if !ok {
		return DefaultPrice, false
	}
	return p, true
}

// Cost is the USD cost of the given token counts.
func Cost(model string, inputTokens, outputTokens int64) float64 {
	p, _ := Lookup(model)
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / tokensPerMillion
}

// EstimateInputTokens approximates the prompt size from the serialized messages.
func EstimateInputTokens(serializedMessages []byte) int64 {
	return int64(len(serializedMessages) / charsPerToken)
}

// Estimate is the padded pre-flight cost of a request.
func Estimate(model string, inputTokens, outputTokens int64) float64 {
	return Cost(model, inputTokens, outputTokens) * SafetyMultiplier
}
