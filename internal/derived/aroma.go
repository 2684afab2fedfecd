package derived

import (
	"context"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
)

const aromaAxisMax = 5.0

type weightedAxes struct {
	axes   model.AromaAxes
	weight float64
}

// RecomputeAromaProfiles computes each client's weighted-average aroma
// profile over its purchased products, weighted by sale amount, and a
// confidence band reflecting both purchase volume and consistency.
func RecomputeAromaProfiles(ctx context.Context, s store.Store, tenantID int64) error {
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

	axesByKey := make(map[string]model.AromaAxes, len(products))
	for _, p := range products {
		if p.AromaAxes == "" {
			continue
		}
		axes, err := model.DecodeAromaAxes(p.AromaAxes)
		if err != nil {
			continue
		}
		axesByKey[p.ProductKey] = axes
	}

	byClient := make(map[string][]weightedAxes)
	for _, sale := range sales {
		axes, ok := axesByKey[sale.ProductKey]
		if !ok {
			continue
		}
		weight := 1.0
		if sale.Amount.Valid {
			weight = sale.Amount.Decimal.InexactFloat64()
			if weight <= 0 {
				weight = 1.0
			}
		}
		byClient[sale.ClientCode] = append(byClient[sale.ClientCode], weightedAxes{axes: axes, weight: weight})
	}

	for _, c := range clients {
		purchases := byClient[c.ClientCode]
		if len(purchases) == 0 {
			continue
		}

		mean := weightedMeanAxes(purchases)
		deviation := meanAbsoluteDeviation(purchases, mean)
		nOrders := float64(len(purchases))

		confidence := 0.2 + 0.8*min1(nOrders/10)*(1-deviation)
		confidence = clamp01(confidence)

		level := "Low"
		switch {
		case confidence >= 0.7:
			level = "High"
		case confidence >= 0.45:
			level = "Medium"
		}

		encoded, err := model.EncodeAromaProfile(model.AromaProfile{
			Axes:       normalizeAxes(mean),
			Confidence: confidence,
			Level:      level,
		})
		if err != nil {
			return err
		}
		c.AromaProfile = encoded
		if err := s.UpdateClientDerived(ctx, tenantID, c); err != nil {
			return err
		}
	}
	return nil
}

func weightedMeanAxes(purchases []weightedAxes) model.AromaAxes {
	var sum model.AromaAxes
	var totalWeight float64
	for _, p := range purchases {
		sum.Fruit += p.axes.Fruit * p.weight
		sum.Floral += p.axes.Floral * p.weight
		sum.Spice += p.axes.Spice * p.weight
		sum.Mineral += p.axes.Mineral * p.weight
		sum.Acidity += p.axes.Acidity * p.weight
		sum.Body += p.axes.Body * p.weight
		sum.Tannin += p.axes.Tannin * p.weight
		totalWeight += p.weight
	}
	if totalWeight == 0 {
		return model.AromaAxes{}
	}
	return model.AromaAxes{
		Fruit:   sum.Fruit / totalWeight,
		Floral:  sum.Floral / totalWeight,
		Spice:   sum.Spice / totalWeight,
		Mineral: sum.Mineral / totalWeight,
		Acidity: sum.Acidity / totalWeight,
		Body:    sum.Body / totalWeight,
		Tannin:  sum.Tannin / totalWeight,
	}
}

func meanAbsoluteDeviation(purchases []weightedAxes, mean model.AromaAxes) float64 {
	if len(purchases) == 0 {
		return 0
	}
	var total float64
	for _, p := range purchases {
		total += absf(p.axes.Fruit-mean.Fruit) + absf(p.axes.Floral-mean.Floral) +
			absf(p.axes.Spice-mean.Spice) + absf(p.axes.Mineral-mean.Mineral) +
			absf(p.axes.Acidity-mean.Acidity) + absf(p.axes.Body-mean.Body) +
			absf(p.axes.Tannin-mean.Tannin)
	}
	const axisCount = 7
	return total / (float64(len(purchases)) * axisCount * aromaAxisMax)
}

func normalizeAxes(a model.AromaAxes) model.AromaAxes {
	return model.AromaAxes{
		Fruit:   a.Fruit / aromaAxisMax,
		Floral:  a.Floral / aromaAxisMax,
		Spice:   a.Spice / aromaAxisMax,
		Mineral: a.Mineral / aromaAxisMax,
		Acidity: a.Acidity / aromaAxisMax,
		Body:    a.Body / aromaAxisMax,
		Tannin:  a.Tannin / aromaAxisMax,
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
