package reco

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/scenario"
	"github.com/iaros/vintage-crm-core/internal/scoring"
	"github.com/iaros/vintage-crm-core/internal/store/storetest"
)

func TestGenerateRecommendationsRun_RankIsContiguousAndProductKeysDistinct(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()

	rfm := 345
	_, _, err := s.UpsertClients(ctx, 1, []model.Client{{ClientCode: "C-001", RFMScore: rfm, AverageOrderValue: decimal.NewFromInt(20)}})
	require.NoError(t, err)

	var products []model.Product
	for i := 0; i < 8; i++ {
		products = append(products, model.Product{
			ProductKey:            productKeyN(i),
			FamilyCRM:             "red",
			IsActive:              true,
			PriceTTC:              decimal.NewNullDecimal(decimal.NewFromInt(int64(10 + i))),
			GlobalPopularityScore: 0.5,
		})
	}
	_, _, err = s.UpsertProducts(ctx, 1, products)
	require.NoError(t, err)

	result, err := GenerateRecommendationsRun(ctx, s, nil, 1, Options{TopN: 5, Config: scoring.Default()})
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, result.Status)
	require.Len(t, result.Outcomes, 1)

	outputs := result.Outcomes[0].Outputs
	require.Len(t, outputs, 5)
	seen := map[string]bool{}
	for i, o := range outputs {
		assert.Equal(t, i+1, o.Rank)
		assert.False(t, seen[o.ProductKey], "product_key must be distinct within a client's outputs")
		seen[o.ProductKey] = true
	}
}

func TestGenerateRecommendationsRun_CrossSellNeverRecommendsPurchasedProduct(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()

	now := time.Now().UTC()
	_, _, err := s.UpsertClients(ctx, 1, []model.Client{{
		ClientCode: "C-001", RFMScore: 111, LastPurchaseDate: &now, BudgetBand: "High",
	}})
	require.NoError(t, err)

	_, _, err = s.UpsertProducts(ctx, 1, []model.Product{
		{ProductKey: "purchased", FamilyCRM: "red", IsActive: true, PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(20))},
		{ProductKey: "not-purchased", FamilyCRM: "red", IsActive: true, PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(20))},
	})
	require.NoError(t, err)
	_, err = s.InsertSales(ctx, 1, []model.Sale{
		{DocumentID: "d1", ProductKey: "purchased", ClientCode: "C-001", SaleDate: &now},
	})
	require.NoError(t, err)

	// With zero recency/monetary/coverage/aroma-confidence and one
	// purchased family, the default weight matrix's argmax is cross_sell
	// (the families term is the only nonzero one).
	result, err := GenerateRecommendationsRun(ctx, s, nil, 1, Options{TopN: 5, Config: scoring.Default()})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, scenario.CrossSell, result.Outcomes[0].Scenario)
	for _, o := range result.Outcomes[0].Outputs {
		assert.NotEqual(t, "purchased", o.ProductKey, "cross_sell candidates must exclude already-purchased products")
	}
}

func TestGenerateCandidates_UpsellRequiresHigherPriceThanAverage(t *testing.T) {
	info := purchaseInfo{purchasedKeys: map[string]bool{}, recentKeys: map[string]bool{}, families: map[string]bool{"red": true}, avgPrice: 20}
	productByKey := map[string]model.Product{
		"cheaper": {ProductKey: "cheaper", FamilyCRM: "red", PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(15))},
		"pricier": {ProductKey: "pricier", FamilyCRM: "red", PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(30))},
	}

	candidates := generateCandidates(scenario.Upsell, model.Client{}, info, productByKey)
	require.Len(t, candidates, 1)
	assert.Equal(t, "pricier", candidates[0].ProductKey)
}

func TestGenerateCandidates_UpsellExcludesFamilyNotYetPurchased(t *testing.T) {
	info := purchaseInfo{purchasedKeys: map[string]bool{}, recentKeys: map[string]bool{}, families: map[string]bool{"red": true}, avgPrice: 20}
	productByKey := map[string]model.Product{
		"white-pricier": {ProductKey: "white-pricier", FamilyCRM: "white", PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(30))},
	}

	candidates := generateCandidates(scenario.Upsell, model.Client{}, info, productByKey)
	assert.Empty(t, candidates, "upsell must stay within families the client has actually purchased")
}

func TestRank_TieBreaksByProductKeyAscending(t *testing.T) {
	candidates := []scoredCandidate{
		{productKey: "z-product", score: 0.8},
		{productKey: "a-product", score: 0.8},
		{productKey: "m-product", score: 0.9},
	}
	ranked := rank(candidates, 10)
	require.Len(t, ranked, 3)
	assert.Equal(t, "m-product", ranked[0].productKey)
	assert.Equal(t, "a-product", ranked[1].productKey)
	assert.Equal(t, "z-product", ranked[2].productKey)
}

func productKeyN(i int) string {
	return "p-" + string(rune('a'+i))
}
