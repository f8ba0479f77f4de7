package main

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/usecase"
)

// buildCatalog overlays the configured pricing rows onto the built-in catalog.
func buildCatalog(rows []config.PricingConfig) ([]domain.ModelPricing, error) {
	catalog := usecase.DefaultCatalog()
	for i, row := range rows {
		p, err := pricingFromConfig(row)
		if err != nil {
			return nil, fmt.Errorf("pricing[%d] (%s): %w", i, row.Model, err)
		}
		catalog = append(catalog, p)
	}
	return catalog, nil
}

func pricingFromConfig(row config.PricingConfig) (domain.ModelPricing, error) {
	p := domain.ModelPricing{Model: row.Model, Provider: row.Provider}
	var err error
	if p.Input, err = decimal.NewFromString(row.Input); err != nil {
		return p, fmt.Errorf("input: %w", err)
	}
	if p.Output, err = decimal.NewFromString(row.Output); err != nil {
		return p, fmt.Errorf("output: %w", err)
	}
	if row.CachedInput != "" {
		if p.CachedInput, err = decimal.NewFromString(row.CachedInput); err != nil {
			return p, fmt.Errorf("cached_input: %w", err)
		}
	}
	for _, name := range row.Complexities {
		c, err := domain.ParseComplexity(name)
		if err != nil {
			return p, err
		}
		if c.Valid() {
			p.Complexities = append(p.Complexities, c)
		}
	}
	return p, nil
}

// modelTable starts from the default complexity table and replaces every model
// no configured provider serves with the cheapest one that is served, preferring
// models recommended for that complexity. With nothing routable the defaults stay.
func modelTable(catalog []domain.ModelPricing, routable func(domain.ModelPricing) bool, log *slog.Logger) map[domain.Complexity]string {
	table := usecase.DefaultModelTable()
	byPrice := usecase.NewModelSelector(catalog, table).Catalog()

	served := make(map[string]bool)
	var anyServed []domain.ModelPricing
	for _, p := range byPrice {
		if routable(p) {
			served[p.Model] = true
			anyServed = append(anyServed, p)
		}
	}
	if len(anyServed) == 0 {
		return table
	}

	for c, model := range table {
		if served[model] {
			continue
		}
		replacement := anyServed[0].Model
		for _, p := range anyServed {
			if p.Recommends(c) {
				replacement = p.Model
				break
			}
		}
		log.Debug("default model not served, substituting",
			"complexity", c.String(), "model", model, "replacement", replacement)
		table[c] = replacement
	}
	return table
}
