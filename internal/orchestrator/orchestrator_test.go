package orchestrator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaros/vintage-crm-core/internal/logging"
	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/scoring"
	"github.com/iaros/vintage-crm-core/internal/store/storetest"
)

func seedTenant(t *testing.T, s *storetest.Fake, tenantID int64) {
	t.Helper()
	ctx := context.Background()
	_, _, err := s.UpsertClients(ctx, tenantID, []model.Client{{ClientCode: "C-001", Email: "a@example.com"}})
	require.NoError(t, err)
	_, _, err = s.UpsertProducts(ctx, tenantID, []model.Product{
		{ProductKey: "p-001", FamilyCRM: "red", IsActive: true, PriceTTC: decimal.NewNullDecimal(decimal.NewFromInt(20))},
	})
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = s.InsertSales(ctx, tenantID, []model.Sale{
		{DocumentID: "d1", ProductKey: "p-001", ClientCode: "C-001", SaleDate: &now, Amount: decimal.NewNullDecimal(decimal.NewFromInt(20))},
	})
	require.NoError(t, err)
}

func TestRunTenant_ProducesACompletedRunAndSummary(t *testing.T) {
	s := storetest.New()
	seedTenant(t, s, 1)
	log := logging.New("test")

	outcome := RunTenant(context.Background(), s, nil, log, 1, Options{
		TopN: 5, SilenceWindowDays: 90, KMeansSeed: 1, ScoringConfig: scoring.Default(),
	})
	require.True(t, outcome.Success, "%v", outcome.Errors)
	require.NotEmpty(t, outcome.RunID)

	run, err := s.GetRun(context.Background(), 1, outcome.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
}

func TestRunAll_ProcessesEveryTenantWithBoundedConcurrency(t *testing.T) {
	s := storetest.New()
	seedTenant(t, s, 1)
	seedTenant(t, s, 2)
	log := logging.New("test")

	outcomes := RunAll(context.Background(), s, nil, log, []int64{1, 2}, 1, Options{
		TopN: 5, SilenceWindowDays: 90, KMeansSeed: 1, ScoringConfig: scoring.Default(),
	})
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Success, "%v", o.Errors)
	}
}

func TestRunTenant_IngestsAndLoadsFromDataDirWhenSet(t *testing.T) {
	s := storetest.New()
	log := logging.New("test")
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(dataDir+"/products.csv",
		[]byte("product_key,name\np-001,Chateau Margaux\n"), 0o644))
	require.NoError(t, os.WriteFile(dataDir+"/clients.csv",
		[]byte("client_code,name,email\nC-001,Jane,jane@example.com\n"), 0o644))
	require.NoError(t, os.WriteFile(dataDir+"/sales.csv",
		[]byte("document_id,product_label,client_code,quantity,amount,sale_date\n"+
			"d-1,Chateau Margaux,C-001,1,20,2024-01-15\n"), 0o644))

	outcome := RunTenant(context.Background(), s, nil, log, 1, Options{
		TopN: 5, SilenceWindowDays: 90, KMeansSeed: 1, ScoringConfig: scoring.Default(),
		DataDir: dataDir,
	})
	require.True(t, outcome.Success, "%v", outcome.Errors)
	assert.Equal(t, 1, outcome.Verification.ResolvedAliases)
	assert.Empty(t, outcome.Verification.UnknownLabels)

	sales, err := s.GetSales(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "p-001", sales[0].ProductKey)
}
