package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iaros/vintage-crm-core/internal/model"
)

func TestSelect_WinbackWinsOnLongRecencyAndHighMonetary(t *testing.T) {
	f := Features{RecencyDays: 200, Monetary: 500, Coverage: 0, NumFamilies: 1, AromaConf: 0.5}
	assert.Equal(t, Winback, Select(DefaultWeights, f))
}

func TestSelect_CrossSellWinsOnHighCoverageAndFamiliesWhenRecencyAndMonetaryAreFlat(t *testing.T) {
	f := Features{RecencyDays: 0, Monetary: 0, Coverage: 1.0, NumFamilies: 5, AromaConf: 0.9}
	assert.Equal(t, CrossSell, Select(DefaultWeights, f))
}

func TestSelect_FallsBackToDefaultWeightsWhenScenarioMissing(t *testing.T) {
	f := Features{RecencyDays: 200, Monetary: 500}
	assert.Equal(t, Winback, Select(map[Scenario]WeightRow{}, f))
}

func TestSelectFallback_NoRFMMeansNurture(t *testing.T) {
	c := model.Client{RFMScore: 0}
	assert.Equal(t, Nurture, SelectFallback(c))
}

func TestSelectFallback_LongSilenceMeansWinback(t *testing.T) {
	last := time.Now().AddDate(0, 0, -200)
	c := model.Client{RFMScore: 111, LastPurchaseDate: &last}
	assert.Equal(t, Winback, SelectFallback(c))
}

func TestSelectFallback_ModerateSilenceMeansRebuy(t *testing.T) {
	last := time.Now().AddDate(0, 0, -60)
	c := model.Client{RFMScore: 111, LastPurchaseDate: &last}
	assert.Equal(t, Rebuy, SelectFallback(c))
}

func TestSelectFallback_RecentLowBudgetMeansUpsell(t *testing.T) {
	last := time.Now().AddDate(0, 0, -5)
	c := model.Client{RFMScore: 111, LastPurchaseDate: &last, BudgetBand: "Low"}
	assert.Equal(t, Upsell, SelectFallback(c))
}

func TestSelectFallback_RecentOtherBudgetMeansCrossSell(t *testing.T) {
	last := time.Now().AddDate(0, 0, -5)
	c := model.Client{RFMScore: 111, LastPurchaseDate: &last, BudgetBand: "High"}
	assert.Equal(t, CrossSell, SelectFallback(c))
}

func TestFamiliesTerm(t *testing.T) {
	f := Features{NumFamilies: 3}
	assert.InDelta(t, 0.25, f.FamiliesTerm(), 0.0001)
}
