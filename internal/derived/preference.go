package derived

import (
	"context"
	"sort"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
)

// BudgetThresholds are the tenant-local AOV quantile cut points (default
// 0.33/0.66).
type BudgetThresholds [2]float64

// DefaultBudgetThresholds matches config.Default().BudgetBandQuantiles.
var DefaultBudgetThresholds = BudgetThresholds{0.33, 0.66}

// RecomputePreferences computes each client's top-2 preferred_families
// by purchase count and a tenant-local budget_band from the
// average_order_value distribution.
func RecomputePreferences(ctx context.Context, s store.Store, tenantID int64, thresholds BudgetThresholds) error {
	clients, err := s.GetClients(ctx, tenantID, store.ClientFilter{})
	if err != nil {
		return err
	}
	sales, err := s.GetSales(ctx, tenantID)
	if err != nil {
		return err
	}
	products, err := s.GetProducts(ctx, tenantID)
	if err != nil {
		return err
	}
	familyByKey := make(map[string]string, len(products))
	for _, p := range products {
		familyByKey[p.ProductKey] = p.FamilyCRM
	}

	familyCounts := make(map[string]map[string]int, len(clients)) // clientCode -> family -> count
	for _, sale := range sales {
		family := familyByKey[sale.ProductKey]
		if family == "" {
			continue
		}
		m, ok := familyCounts[sale.ClientCode]
		if !ok {
			m = map[string]int{}
			familyCounts[sale.ClientCode] = m
		}
		m[family]++
	}

	aovs := make([]float64, 0, len(clients))
	for _, c := range clients {
		aovs = append(aovs, c.AverageOrderValue.InexactFloat64())
	}
	sortedAOV := sortedCopy(aovs)

	for _, c := range clients {
		shares := topFamilyShares(familyCounts[c.ClientCode], 2)
		encoded, err := model.EncodePreferredFamilies(shares)
		if err != nil {
			return err
		}
		c.PreferredFamilies = encoded
		c.BudgetBand = budgetBand(sortedAOV, c.AverageOrderValue.InexactFloat64(), thresholds)
		if err := s.UpdateClientDerived(ctx, tenantID, c); err != nil {
			return err
		}
	}
	return nil
}

func topFamilyShares(counts map[string]int, topN int) []model.FamilyShare {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}
	type pair struct {
		family string
		count  int
	}
	pairs := make([]pair, 0, len(counts))
	for f, n := range counts {
		pairs = append(pairs, pair{f, n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].family < pairs[j].family
	})
	if len(pairs) > topN {
		pairs = pairs[:topN]
	}
	out := make([]model.FamilyShare, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, model.FamilyShare{Family: p.family, Share: float64(p.count) / float64(total)})
	}
	return out
}

func budgetBand(sortedAOV []float64, value float64, thresholds BudgetThresholds) string {
	if len(sortedAOV) == 0 {
		return "Medium"
	}
	q33 := Quantile(sortedAOV, thresholds[0])
	q66 := Quantile(sortedAOV, thresholds[1])
	switch {
	case value <= q33:
		return "Low"
	case value <= q66:
		return "Medium"
	default:
		return "High"
	}
}

// RecomputePopularity sets every product's global_popularity_score to
// sales_count(p)/total_sales(tenant), clamped to [0,1].
func RecomputePopularity(ctx context.Context, s store.Store, tenantID int64) error {
	sales, err := s.GetSales(ctx, tenantID)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, sale := range sales {
		counts[sale.ProductKey]++
	}
	total := len(sales)
	if total == 0 {
		return nil
	}
	products, err := s.GetProducts(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, p := range products {
		score := float64(counts[p.ProductKey]) / float64(total)
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		if err := s.UpdateProductPopularity(ctx, tenantID, p.ProductKey, score); err != nil {
			return err
		}
	}
	return nil
}
