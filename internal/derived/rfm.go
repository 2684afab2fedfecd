package derived

import (
	"context"
	"time"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
)

// RFMThresholds are the per-tenant quintile cut points (default
// 0.2/0.4/0.6/0.8), passed to RecomputeRFM by the caller. The
// orchestrator always passes DefaultRFMThresholds; it does not read
// config.Config.QuantileThresholds.
type RFMThresholds [4]float64

// DefaultRFMThresholds matches config.Default().QuantileThresholds.
var DefaultRFMThresholds = RFMThresholds{0.2, 0.4, 0.6, 0.8}

type clientAgg struct {
	client          model.Client
	lastPurchase    *time.Time
	documentIDs     map[string]bool
	rowCount        int
	monetary        float64
}

// RecomputeRFM recomputes recency/frequency/monetary, rfm_score, and
// rfm_segment for every client of tenantID.
func RecomputeRFM(ctx context.Context, s store.Store, tenantID int64, thresholds RFMThresholds) error {
	clients, err := s.GetClients(ctx, tenantID, store.ClientFilter{})
	if err != nil {
		return err
	}
	sales, err := s.GetSales(ctx, tenantID)
	if err != nil {
		return err
	}

	aggs := make(map[string]*clientAgg, len(clients))
	for _, c := range clients {
		aggs[c.ClientCode] = &clientAgg{client: c, documentIDs: map[string]bool{}}
	}

	var referenceDate time.Time
	for _, sale := range sales {
		if sale.SaleDate != nil && sale.SaleDate.After(referenceDate) {
			referenceDate = *sale.SaleDate
		}
		agg, ok := aggs[sale.ClientCode]
		if !ok {
			continue
		}
		agg.rowCount++
		agg.documentIDs[sale.DocumentID] = true
		if sale.SaleDate != nil && (agg.lastPurchase == nil || sale.SaleDate.After(*agg.lastPurchase)) {
			agg.lastPurchase = sale.SaleDate
		}
		if sale.Amount.Valid {
			agg.monetary += sale.Amount.Decimal.InexactFloat64()
		} else if sale.Quantity != nil {
			agg.monetary += *sale.Quantity
		}
	}
	if referenceDate.IsZero() {
		referenceDate = time.Now().UTC()
	}

	recencies := make([]float64, 0, len(aggs))
	frequencies := make([]float64, 0, len(aggs))
	monetaries := make([]float64, 0, len(aggs))
	for _, agg := range aggs {
		if agg.lastPurchase == nil {
			continue
		}
		recencies = append(recencies, referenceDate.Sub(*agg.lastPurchase).Hours()/24)
		freq := float64(len(agg.documentIDs))
		if freq == 0 {
			freq = float64(agg.rowCount)
		}
		frequencies = append(frequencies, freq)
		monetaries = append(monetaries, agg.monetary)
	}
	recSorted := sortedCopy(recencies)
	freqSorted := sortedCopy(frequencies)
	monSorted := sortedCopy(monetaries)

	for code, agg := range aggs {
		if agg.lastPurchase == nil {
			continue
		}
		recencyDays := referenceDate.Sub(*agg.lastPurchase).Hours() / 24
		freq := float64(len(agg.documentIDs))
		if freq == 0 {
			freq = float64(agg.rowCount)
		}
		mon := agg.monetary

		r := Quintile(recSorted, recencyDays, thresholds, true)
		f := Quintile(freqSorted, freq, thresholds, false)
		m := Quintile(monSorted, mon, thresholds, false)

		c := agg.client
		c.Recency = &recencyDays
		c.Frequency = &freq
		c.Monetary = &mon
		c.RFMScore = r*100 + f*10 + m
		c.RFMSegment = segmentFor(r, f, m)

		if err := s.UpdateClientDerived(ctx, tenantID, c); err != nil {
			return err
		}
		_ = code
	}
	return nil
}

// segmentFor applies the RFM segment classification table, evaluated
// top to bottom; the first match wins.
func segmentFor(r, f, m int) string {
	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return "Champions"
	case f >= 4 && r >= 3:
		return "Loyal"
	case m >= 4 && f >= 3:
		return "Big Spenders"
	case r >= 4 && f <= 2:
		return "Recent"
	case r >= 3 && f >= 2 && m >= 2:
		return "Promising"
	case r <= 2 && f <= 2:
		return "At Risk"
	default:
		return "Others"
	}
}
