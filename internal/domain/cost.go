package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// ModelPricing is one row of the pricing catalog. Prices are per one million tokens.
type ModelPricing struct {
	Model        string          `json:"model"`
	Provider     string          `json:"provider"`
	Input        decimal.Decimal `json:"input"`
	Output       decimal.Decimal `json:"output"`
	CachedInput  decimal.Decimal `json:"cached_input"`
	Complexities []Complexity    `json:"complexities"`
}

// Recommends reports whether the model is recommended for complexity c.
func (p ModelPricing) Recommends(c Complexity) bool {
	return slices.Contains(p.Complexities, c)
}

// CostInfo is the cost record for a single turn.
type CostInfo struct {
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	TotalTokens  int             `json:"total_tokens"`
	InputCost    decimal.Decimal `json:"input_cost"`
	OutputCost   decimal.Decimal `json:"output_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}
