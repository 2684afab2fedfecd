package summary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store/storetest"
)

func TestPersistAndLoad_RoundTrip(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()

	in := model.Summary{
		GatingRate:           0.5,
		TotalClients:         10,
		TotalRecommendations: 40,
		ScenarioCounts:       map[string]int{"cross_sell": 10},
		NErrors:              0,
		NWarns:               2,
		AuditScore:           90,
		GateExport:           true,
	}
	require.NoError(t, Persist(ctx, s, 1, "run-1", in))

	out, err := Load(ctx, s, 1, "run-1")
	require.NoError(t, err)
	assert.Equal(t, in.TotalClients, out.TotalClients)
	assert.Equal(t, in.GateExport, out.GateExport)
	assert.Equal(t, in.ScenarioCounts, out.ScenarioCounts)
}

func TestLoad_UnknownRunIsAnError(t *testing.T) {
	s := storetest.New()
	_, err := Load(context.Background(), s, 1, "missing-run")
	assert.Error(t, err)
}
