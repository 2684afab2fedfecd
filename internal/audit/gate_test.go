package audit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store/storetest"
)

func TestScore_Formula(t *testing.T) {
	assert.Equal(t, 100, Score(0, 0))
	assert.Equal(t, 60, Score(1, 0))
	assert.Equal(t, 90, Score(0, 1))
	assert.Equal(t, 0, Score(3, 0), "score floors at zero, never negative")
}

func TestEvaluateClient_MissingEmailBlocksGating(t *testing.T) {
	c := model.Client{ClientCode: "C-001", Email: ""}
	result := EvaluateClient(c, nil, nil, nil, nil, 90)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "MISSING_EMAIL", result.Issues[0].RuleCode)
	assert.False(t, result.Eligible)
	assert.Equal(t, "MISSING_EMAIL", result.Reason)
}

func TestEvaluateClient_OptOutOrBounceBlocksGating(t *testing.T) {
	c := model.Client{ClientCode: "C-001", Email: "a@example.com", EmailOptOut: true}
	result := EvaluateClient(c, nil, nil, nil, nil, 90)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "OPTOUT_OR_BOUNCE", result.Issues[0].RuleCode)
	assert.False(t, result.Eligible)
}

func TestEvaluateClient_RecentContactWithinSilenceWindowBlocksGating(t *testing.T) {
	c := model.Client{ClientCode: "C-001", Email: "a@example.com"}
	events := []model.ContactEvent{{ContactDate: time.Now().UTC().AddDate(0, 0, -5)}}
	result := EvaluateClient(c, nil, nil, events, nil, 90)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "SILENCE_WINDOW", result.Issues[0].RuleCode)
}

func TestEvaluateClient_UpsellNotHigherThanAveragePurchasePriceIsAnError(t *testing.T) {
	c := model.Client{ClientCode: "C-001", Email: "a@example.com"}
	productByKey := map[string]model.Product{
		"purchased": {ProductKey: "purchased", PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(20))},
		"upsell-product": {ProductKey: "upsell-product", PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(15))},
	}
	purchases := []model.Sale{{ProductKey: "purchased"}}
	recos := []model.RecoOutput{{Scenario: "upsell", ProductKey: "upsell-product"}}

	result := EvaluateClient(c, recos, productByKey, nil, purchases, 90)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "UPSELL_NOT_HIGHER", result.Issues[0].RuleCode)
	assert.False(t, result.Eligible)
}

func TestEvaluateClient_UpsellHigherThanAveragePurchasePriceIsEligible(t *testing.T) {
	c := model.Client{ClientCode: "C-001", Email: "a@example.com"}
	productByKey := map[string]model.Product{
		"purchased":       {ProductKey: "purchased", PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(20))},
		"upsell-product":  {ProductKey: "upsell-product", PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(25))},
	}
	purchases := []model.Sale{{ProductKey: "purchased"}}
	recos := []model.RecoOutput{{Scenario: "upsell", ProductKey: "upsell-product"}}

	result := EvaluateClient(c, recos, productByKey, nil, purchases, 90)
	assert.Empty(t, result.Issues)
	assert.True(t, result.Eligible)
	assert.Equal(t, 100, result.Score)
}

func TestEvaluateClient_DuplicateProductKeyAcrossRecosIsAnError(t *testing.T) {
	c := model.Client{ClientCode: "C-001", Email: "a@example.com"}
	recos := []model.RecoOutput{
		{Scenario: "cross_sell", ProductKey: "p-001"},
		{Scenario: "cross_sell", ProductKey: "p-001"},
	}
	result := EvaluateClient(c, recos, map[string]model.Product{}, nil, nil, 90)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "RECENT_DUPLICATE", result.Issues[0].RuleCode)
}

func TestEvaluateClient_CrossSellOfAlreadyPurchasedIsAWarning(t *testing.T) {
	c := model.Client{ClientCode: "C-001", Email: "a@example.com"}
	purchases := []model.Sale{{ProductKey: "p-001"}}
	recos := []model.RecoOutput{{Scenario: "cross_sell", ProductKey: "p-001"}}
	result := EvaluateClient(c, recos, map[string]model.Product{"p-001": {ProductKey: "p-001"}}, nil, purchases, 90)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, model.SeverityWarn, result.Issues[0].Severity)
	assert.Equal(t, "CROSS_SELL_NOT_NEW", result.Issues[0].RuleCode)
	// A single warn keeps score at 90, still >= 80, so it remains eligible.
	assert.True(t, result.Eligible)
}

func TestEvaluateRun_GateExportRequiresNoErrorsAndScoreAtLeastEighty(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	clients := []model.Client{{ID: 1, ClientCode: "C-001", Email: ""}}
	recosByCustomer := map[string][]model.RecoOutput{"C-001": nil}

	summary, err := EvaluateRun(ctx, s, 1, "run-1", 90, clients, recosByCustomer,
		map[string]model.Product{}, map[int64][]model.ContactEvent{}, map[string][]model.Sale{},
		map[string]string{"C-001": "nurture"})
	require.NoError(t, err)
	assert.False(t, summary.GateExport, "a missing-email error must block export")
	assert.Equal(t, 1, summary.NErrors)
	assert.Equal(t, 60, summary.AuditScore)

	na, ok := s.NextActionFor("run-1", "C-001")
	require.True(t, ok)
	assert.False(t, na.Eligible)
}

func TestEvaluateRun_CleanRunGatesExport(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	clients := []model.Client{{ID: 1, ClientCode: "C-001", Email: "a@example.com"}}
	recosByCustomer := map[string][]model.RecoOutput{"C-001": {{Scenario: "cross_sell", ProductKey: "p-001"}}}

	summary, err := EvaluateRun(ctx, s, 1, "run-2", 90, clients, recosByCustomer,
		map[string]model.Product{"p-001": {ProductKey: "p-001"}}, map[int64][]model.ContactEvent{},
		map[string][]model.Sale{}, map[string]string{"C-001": "cross_sell"})
	require.NoError(t, err)
	assert.True(t, summary.GateExport)
	assert.Equal(t, 1, summary.TotalClients)
	assert.Equal(t, 1, summary.TotalRecommendations)
}
