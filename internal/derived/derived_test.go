package derived

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

func TestRecomputeRFM_SingleSaleScoresAsFiveOneOne(t *testing.T) {
	// A single client with one sale today must land in the top recency
	// band and the only (degenerate) frequency/monetary band: R=5,F=1,M=1,
	// rfm_score=511.
	s := storetest.New()
	ctx := context.Background()
	_, _, err := s.UpsertClients(ctx, 1, []model.Client{{ClientCode: "C-001"}})
	require.NoError(t, err)

	today := time.Now().UTC()
	_, err = s.InsertSales(ctx, 1, []model.Sale{
		{DocumentID: "d-1", ProductKey: "p-001", ClientCode: "C-001", SaleDate: &today, Amount: decimal.NewNullDecimal(decimal.NewFromInt(100))},
	})
	require.NoError(t, err)

	require.NoError(t, RecomputeRFM(ctx, s, 1, DefaultRFMThresholds))

	c, err := s.GetClientByCode(ctx, 1, "C-001")
	require.NoError(t, err)
	require.NotNil(t, c.Recency)
	require.NotNil(t, c.Frequency)
	require.NotNil(t, c.Monetary)
	assert.InDelta(t, 0, *c.Recency, 0.01)
	assert.Equal(t, 1.0, *c.Frequency)
	assert.Equal(t, 100.0, *c.Monetary)
	assert.Equal(t, 511, c.RFMScore)
}

func TestSegmentFor_ClassificationTable(t *testing.T) {
	cases := []struct {
		r, f, m int
		want    string
	}{
		{5, 5, 5, "Champions"},
		{3, 4, 2, "Loyal"},
		{2, 3, 4, "Big Spenders"},
		{4, 1, 1, "Recent"},
		{3, 2, 2, "Promising"},
		{1, 2, 1, "At Risk"},
		{3, 1, 1, "Others"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, segmentFor(c.r, c.f, c.m), "r=%d f=%d m=%d", c.r, c.f, c.m)
	}
}

func TestQuintile_DegenerateSinglePointCollapsesToLowestBand(t *testing.T) {
	sorted := []float64{42}
	assert.Equal(t, 1, Quintile(sorted, 42, DefaultRFMThresholds, false))
	assert.Equal(t, 5, Quintile(sorted, 42, DefaultRFMThresholds, true))
}

func TestQuintile_OrdersDistinctValuesAcrossBands(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 1, Quintile(sorted, 1, DefaultRFMThresholds, false))
	assert.Equal(t, 5, Quintile(sorted, 10, DefaultRFMThresholds, false))
}

func TestRecomputePreferences_BudgetBandFromAOVQuantiles(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	_, _, err := s.UpsertClients(ctx, 1, []model.Client{
		{ClientCode: "LOW", AverageOrderValue: decimal.NewFromInt(10)},
		{ClientCode: "MID", AverageOrderValue: decimal.NewFromInt(50)},
		{ClientCode: "HIGH", AverageOrderValue: decimal.NewFromInt(500)},
	})
	require.NoError(t, err)

	require.NoError(t, RecomputePreferences(ctx, s, 1, DefaultBudgetThresholds))

	low, err := s.GetClientByCode(ctx, 1, "LOW")
	require.NoError(t, err)
	high, err := s.GetClientByCode(ctx, 1, "HIGH")
	require.NoError(t, err)
	assert.Equal(t, "Low", low.BudgetBand)
	assert.Equal(t, "High", high.BudgetBand)
}

func TestRecomputePreferences_TopTwoFamiliesByShare(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	_, _, err := s.UpsertClients(ctx, 1, []model.Client{{ClientCode: "C-001"}})
	require.NoError(t, err)
	_, _, err = s.UpsertProducts(ctx, 1, []model.Product{
		{ProductKey: "p-red", FamilyCRM: "red"},
		{ProductKey: "p-white", FamilyCRM: "white"},
		{ProductKey: "p-rose", FamilyCRM: "rose"},
	})
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = s.InsertSales(ctx, 1, []model.Sale{
		{DocumentID: "d1", ProductKey: "p-red", ClientCode: "C-001", SaleDate: &now},
		{DocumentID: "d2", ProductKey: "p-red", ClientCode: "C-001", SaleDate: &now},
		{DocumentID: "d3", ProductKey: "p-white", ClientCode: "C-001", SaleDate: &now},
		{DocumentID: "d4", ProductKey: "p-rose", ClientCode: "C-001", SaleDate: &now},
	})
	require.NoError(t, err)

	require.NoError(t, RecomputePreferences(ctx, s, 1, DefaultBudgetThresholds))

	c, err := s.GetClientByCode(ctx, 1, "C-001")
	require.NoError(t, err)
	prefs, err := model.DecodePreferredFamilies(c.PreferredFamilies)
	require.NoError(t, err)
	require.Len(t, prefs.Families, 2)
	assert.Equal(t, "red", prefs.Families[0].Family)
	assert.InDelta(t, 0.5, prefs.Families[0].Share, 0.001)
}

func TestRecomputePopularity_ClampedShareOfTotalSales(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	_, _, err := s.UpsertProducts(ctx, 1, []model.Product{{ProductKey: "p-001"}, {ProductKey: "p-002"}})
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = s.InsertSales(ctx, 1, []model.Sale{
		{DocumentID: "d1", ProductKey: "p-001", ClientCode: "C-001", SaleDate: &now},
		{DocumentID: "d2", ProductKey: "p-001", ClientCode: "C-002", SaleDate: &now},
		{DocumentID: "d3", ProductKey: "p-002", ClientCode: "C-001", SaleDate: &now},
	})
	require.NoError(t, err)

	require.NoError(t, RecomputePopularity(ctx, s, 1))

	p1, err := s.GetProductByKey(ctx, 1, "p-001")
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, p1.GlobalPopularityScore, 0.001)
}

func TestRecomputeAromaProfiles_WeightedByAmountAndConfidenceBanded(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	_, _, err := s.UpsertClients(ctx, 1, []model.Client{{ClientCode: "C-001"}})
	require.NoError(t, err)

	axes, err := model.EncodeAromaAxes(model.AromaAxes{Fruit: 5, Floral: 5, Spice: 5, Mineral: 5, Acidity: 5, Body: 5, Tannin: 5})
	require.NoError(t, err)
	_, _, err = s.UpsertProducts(ctx, 1, []model.Product{{ProductKey: "p-001", AromaAxes: axes}})
	require.NoError(t, err)

	now := time.Now().UTC()
	var sales []model.Sale
	for i := 0; i < 10; i++ {
		sales = append(sales, model.Sale{
			DocumentID: "d" + string(rune('0'+i)), ProductKey: "p-001", ClientCode: "C-001",
			SaleDate: &now, Amount: decimal.NewNullDecimal(decimal.NewFromInt(10)),
		})
	}
	_, err = s.InsertSales(ctx, 1, sales)
	require.NoError(t, err)

	require.NoError(t, RecomputeAromaProfiles(ctx, s, 1))

	c, err := s.GetClientByCode(ctx, 1, "C-001")
	require.NoError(t, err)
	profile, err := model.DecodeAromaProfile(c.AromaProfile)
	require.NoError(t, err)
	assert.Equal(t, 1.0, profile.Axes.Fruit, "all purchases at max axis value normalize to 1.0")
	assert.Equal(t, "High", profile.Level, "10 consistent orders should reach High confidence")
}

func seedClustersFixture(t *testing.T) *storetest.Fake {
	t.Helper()
	s := storetest.New()
	ctx := context.Background()
	r1, f1, m1 := 1.0, 10.0, 1000.0
	r2, f2, m2 := 30.0, 1.0, 20.0
	_, _, err := s.UpsertClients(ctx, 1, []model.Client{
		{ClientCode: "A", Recency: &r1, Frequency: &f1, Monetary: &m1},
		{ClientCode: "B", Recency: &r2, Frequency: &f2, Monetary: &m2},
		{ClientCode: "C", Recency: &r1, Frequency: &f1, Monetary: &m1},
		{ClientCode: "D", Recency: &r2, Frequency: &f2, Monetary: &m2},
	})
	require.NoError(t, err)
	return s
}

func clusterLabels(t *testing.T, s *storetest.Fake) map[string]string {
	t.Helper()
	ctx := context.Background()
	out := map[string]string{}
	for _, code := range []string{"A", "B", "C", "D"} {
		c, err := s.GetClientByCode(ctx, 1, code)
		require.NoError(t, err)
		out[code] = c.Cluster
	}
	return out
}

func TestRecomputeClusters_DeterministicForFixedSeed(t *testing.T) {
	s1 := seedClustersFixture(t)
	require.NoError(t, RecomputeClusters(context.Background(), s1, 1, 42, 2))
	labels1 := clusterLabels(t, s1)

	s2 := seedClustersFixture(t)
	require.NoError(t, RecomputeClusters(context.Background(), s2, 1, 42, 2))
	labels2 := clusterLabels(t, s2)

	assert.Equal(t, labels1, labels2, "the same seed over the same input must reproduce the same assignment")
	assert.Equal(t, labels1["A"], labels1["C"], "identical feature vectors must land in the same cluster")
	assert.Equal(t, labels1["B"], labels1["D"])
}
