package usecase

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"conductor/internal/domain"
)

// Assumed workload used to estimate a model's cost before any usage is known.
// Real usage can exceed it, so the cost ceiling is a best-effort filter.
const (
	EstimateInputTokens  = 2000
	EstimateOutputTokens = 500
)

// DefaultCostCeiling is the per-request ceiling applied by the cost-optimized strategy.
var DefaultCostCeiling = decimal.RequireFromString("0.02")

// ModelSelector maps complexity levels to model ids and prices completions.
type ModelSelector struct {
	catalog  map[string]domain.ModelPricing
	byPrice  []domain.ModelPricing
	defaults map[domain.Complexity]string
}

// NewModelSelector builds a selector. Later catalog entries replace earlier
// ones with the same model id. A nil defaults table uses DefaultModelTable.
func NewModelSelector(catalog []domain.ModelPricing, defaults map[domain.Complexity]string) *ModelSelector {
	if defaults == nil {
		defaults = DefaultModelTable()
	}
	s := &ModelSelector{
		catalog:  make(map[string]domain.ModelPricing, len(catalog)),
		defaults: defaults,
	}
	for _, p := range catalog {
		s.catalog[p.Model] = p
	}
	for _, p := range s.catalog {
		s.byPrice = append(s.byPrice, p)
	}
	sort.Slice(s.byPrice, func(i, j int) bool {
		a, b := s.byPrice[i], s.byPrice[j]
		if c := a.Input.Cmp(b.Input); c != 0 {
			return c < 0
		}
		return a.Model < b.Model
	})
	return s
}

// SelectModel returns the default model for c. With a non-nil maxCost it
// instead returns the cheapest recommended model whose estimated cost for the
// assumed workload fits the ceiling, falling back to the default when none do.
func (s *ModelSelector) SelectModel(c domain.Complexity, maxCost *decimal.Decimal) string {
	fallback := s.defaultFor(c)
	if maxCost == nil {
		return fallback
	}
	for _, p := range s.byPrice {
		if !p.Recommends(c) {
			continue
		}
		if estimate(p, EstimateInputTokens, EstimateOutputTokens).LessThanOrEqual(*maxCost) {
			return p.Model
		}
	}
	return fallback
}

func (s *ModelSelector) defaultFor(c domain.Complexity) string {
	if m, ok := s.defaults[c]; ok {
		return m
	}
	return s.defaults[domain.ComplexityModerate]
}

// CalculateCost prices a completion. Cost is linear in tokens and exact.
func (s *ModelSelector) CalculateCost(model string, inputTokens, outputTokens int) (domain.CostInfo, error) {
	p, ok := s.catalog[model]
	if !ok {
		return domain.CostInfo{}, domain.NewDomainError("ModelSelector.CalculateCost", domain.ErrUnknownModel, model)
	}
	in := lineCost(p.Input, inputTokens)
	out := lineCost(p.Output, outputTokens)
	return domain.CostInfo{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		InputCost:    in,
		OutputCost:   out,
		TotalCost:    in.Add(out),
	}, nil
}

// EstimateCost prices the assumed workload for model.
func (s *ModelSelector) EstimateCost(model string) (decimal.Decimal, error) {
	p, ok := s.catalog[model]
	if !ok {
		return decimal.Zero, fmt.Errorf("estimate %s: %w", model, domain.ErrUnknownModel)
	}
	return estimate(p, EstimateInputTokens, EstimateOutputTokens), nil
}

// Pricing returns the catalog entry for model.
func (s *ModelSelector) Pricing(model string) (domain.ModelPricing, bool) {
	p, ok := s.catalog[model]
	return p, ok
}

// Catalog returns all entries ordered by ascending input price.
func (s *ModelSelector) Catalog() []domain.ModelPricing {
	out := make([]domain.ModelPricing, len(s.byPrice))
	copy(out, s.byPrice)
	return out
}

// DefaultFor exposes the unconstrained choice for c.
func (s *ModelSelector) DefaultFor(c domain.Complexity) string {
	return s.defaultFor(c)
}

func estimate(p domain.ModelPricing, in, out int) decimal.Decimal {
	return lineCost(p.Input, in).Add(lineCost(p.Output, out))
}

func lineCost(pricePerMillion decimal.Decimal, tokens int) decimal.Decimal {
	return decimal.NewFromInt(int64(tokens)).Mul(pricePerMillion).Shift(-6)
}
