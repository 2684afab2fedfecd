// Package scenario chooses a marketing intent per client: one of
// winback, rebuy, cross_sell, upsell, nurture.
package scenario

import (
	"math"
	"time"

	"github.com/iaros/vintage-crm-core/internal/model"
)

// Scenario is the marketing intent chosen for a client.
type Scenario string

const (
	Winback    Scenario = "winback"
	Rebuy      Scenario = "rebuy"
	CrossSell  Scenario = "cross_sell"
	Upsell     Scenario = "upsell"
	Nurture    Scenario = "nurture"
)

// WeightRow is one scenario's feature weights in the default matrix.
type WeightRow struct {
	Recency    float64
	Monetary   float64
	Coverage   float64
	Families   float64
	AromaConf  float64
}

// DefaultWeights is the default weight matrix, one row per scenario.
var DefaultWeights = map[Scenario]WeightRow{
	Winback:   {Recency: 3, Monetary: 2, Coverage: 0, Families: 0, AromaConf: 1},
	Rebuy:     {Recency: -1, Monetary: 1, Coverage: 1, Families: 0, AromaConf: 1},
	CrossSell: {Recency: -1, Monetary: 1, Coverage: 3, Families: 2, AromaConf: 1},
	Upsell:    {Recency: -1, Monetary: 2, Coverage: 1, Families: 0, AromaConf: 2},
	Nurture:   {Recency: 1, Monetary: 1, Coverage: 1, Families: 0, AromaConf: 1},
}

// Features are the nullable-default-0 inputs driving scenario selection.
type Features struct {
	RecencyDays    float64
	Monetary       float64
	Coverage       float64 // sum of shares of top-2 preferred families
	NumFamilies    int     // distinct families purchased
	AromaConf      float64
}

// FamiliesTerm is 1/(1+num_families_purchased).
func (f Features) FamiliesTerm() float64 {
	return 1 / (1 + float64(f.NumFamilies))
}

// ExtractFeatures builds Features from a client's derived state.
func ExtractFeatures(c model.Client, numFamiliesPurchased int) Features {
	f := Features{NumFamilies: numFamiliesPurchased}
	if c.Recency != nil {
		f.RecencyDays = *c.Recency
	}
	if c.Monetary != nil {
		f.Monetary = *c.Monetary
	}
	prefs, err := model.DecodePreferredFamilies(c.PreferredFamilies)
	if err == nil {
		for _, fam := range prefs.Families {
			f.Coverage += fam.Share
		}
	}
	profile, err := model.DecodeAromaProfile(c.AromaProfile)
	if err == nil {
		f.AromaConf = profile.Confidence
	}
	return f
}

// Select runs the weighted scoring across all five scenarios and
// returns the argmax, using weights (typically scoring.Config's
// ScenarioWeights, or DefaultWeights for callers that don't centralize
// config).
func Select(weights map[Scenario]WeightRow, f Features) Scenario {
	var best Scenario
	bestScore := math.Inf(-1)
	// Deterministic iteration order for reproducible tie-breaking.
	for _, s := range []Scenario{Winback, Rebuy, CrossSell, Upsell, Nurture} {
		w, ok := weights[s]
		if !ok {
			w = DefaultWeights[s]
		}
		score := w.Recency*f.RecencyDays + w.Monetary*f.Monetary +
			w.Coverage*f.Coverage + w.Families*f.FamiliesTerm() + w.AromaConf*f.AromaConf
		if score > bestScore {
			bestScore = score
			best = s
		}
	}
	return best
}

// SelectFallback implements the rule-based path. It does not consult
// any weight matrix, and Select does not call it when weights are
// missing (Select uses DefaultWeights instead), so for the same client
// the two can return different scenarios.
func SelectFallback(c model.Client) Scenario {
	if c.RFMScore == 0 {
		return Nurture
	}
	if c.LastPurchaseDate == nil {
		return Nurture
	}
	days := time.Since(*c.LastPurchaseDate).Hours() / 24
	switch {
	case days > 180:
		return Winback
	case days > 30:
		return Rebuy
	case c.BudgetBand == "Low":
		return Upsell
	default:
		return CrossSell
	}
}
