package usecase

import (
	"github.com/shopspring/decimal"

	"conductor/internal/domain"
)

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultCatalog is the built-in pricing table, USD per million tokens.
func DefaultCatalog() []domain.ModelPricing {
	return []domain.ModelPricing{
		{
			Model: "gpt-4o-mini", Provider: "openai",
			Input: usd("0.15"), Output: usd("0.60"), CachedInput: usd("0.075"),
			Complexities: []domain.Complexity{domain.ComplexitySimple, domain.ComplexityModerate},
		},
		{
			Model: "gpt-4o", Provider: "openai",
			Input: usd("2.50"), Output: usd("10.00"), CachedInput: usd("1.25"),
			Complexities: []domain.Complexity{domain.ComplexityModerate, domain.ComplexityComplex},
		},
		{
			Model: "o3-mini", Provider: "openai",
			Input: usd("1.10"), Output: usd("4.40"), CachedInput: usd("0.55"),
			Complexities: []domain.Complexity{domain.ComplexityComplex},
		},
		{
			Model: "claude-3-5-haiku-20241022", Provider: "anthropic",
			Input: usd("0.80"), Output: usd("4.00"), CachedInput: usd("0.08"),
			Complexities: []domain.Complexity{domain.ComplexitySimple, domain.ComplexityModerate},
		},
		{
			Model: "claude-sonnet-4-20250514", Provider: "anthropic",
			Input: usd("3.00"), Output: usd("15.00"), CachedInput: usd("0.30"),
			Complexities: []domain.Complexity{domain.ComplexityComplex, domain.ComplexityCritical},
		},
		{
			Model: "claude-opus-4-20250514", Provider: "anthropic",
			Input: usd("15.00"), Output: usd("75.00"), CachedInput: usd("1.50"),
			Complexities: []domain.Complexity{domain.ComplexityCritical},
		},
	}
}

// DefaultModelTable maps each complexity to its unconstrained model.
func DefaultModelTable() map[domain.Complexity]string {
	return map[domain.Complexity]string{
		domain.ComplexitySimple:   "gpt-4o-mini",
		domain.ComplexityModerate: "gpt-4o",
		domain.ComplexityComplex:  "claude-sonnet-4-20250514",
		domain.ComplexityCritical: "claude-opus-4-20250514",
	}
}
