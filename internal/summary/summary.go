// Package summary persists the run-level RunSummary produced by the
// audit engine's aggregate.
package summary

import (
	"context"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
)

// Persist encodes s as JSON and upserts the RunSummary row for runID.
func Persist(ctx context.Context, st store.Store, tenantID int64, runID string, s model.Summary) error {
	encoded, err := model.EncodeSummary(s)
	if err != nil {
		return err
	}
	return st.PutRunSummary(ctx, model.RunSummary{
		RunID:       runID,
		TenantID:    tenantID,
		SummaryJSON: encoded,
	})
}

// Load fetches and decodes a tenant's RunSummary.
func Load(ctx context.Context, st store.Store, tenantID int64, runID string) (model.Summary, error) {
	row, err := st.GetRunSummary(ctx, tenantID, runID)
	if err != nil {
		return model.Summary{}, err
	}
	return model.DecodeSummary(row.SummaryJSON)
}
