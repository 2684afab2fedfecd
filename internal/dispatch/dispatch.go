// Package dispatch is the marketing dispatch collaborator boundary: it
// never sends outbound marketing itself, it only enforces the export
// gate and records ContactEvent rows, optionally in dry-run mode.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/iaros/vintage-crm-core/internal/corerr"
	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
	"github.com/iaros/vintage-crm-core/internal/summary"
)

const (
	minBatchSize = 200
	maxBatchSize = 300
)

// Request is one dispatch invocation.
type Request struct {
	RunID     string
	DryRun    bool
	BatchSize int
}

// Result reports what Dispatch did.
type Result struct {
	ContactEventsCreated int
	DryRun               bool
}

// CheckExportGate refuses to proceed unless the run's summary reports
// gate_export == true: consumers must refuse to dispatch marketing when
// run_summary.gate_export is false.
func CheckExportGate(ctx context.Context, s store.Store, tenantID int64, runID string) error {
	sum, err := summary.Load(ctx, s, tenantID, runID)
	if err != nil {
		return err
	}
	if !sum.GateExport {
		return corerr.New(corerr.Conflict, "dispatch.CheckExportGate", "run_summary.gate_export is false")
	}
	return nil
}

// Dispatch targets every client runID's gating pass marked eligible, up
// to req.BatchSize. When req.DryRun is set, one
// ContactEvent{status=dry_run} is created per targeted client, otherwise
// one with status delivered; a zero Request has DryRun false. No external
// network call is made in either mode.
func Dispatch(ctx context.Context, s store.Store, tenantID int64, req Request) (Result, error) {
	if req.BatchSize < minBatchSize || req.BatchSize > maxBatchSize {
		return Result{}, corerr.New(corerr.ContractError, "dispatch.Dispatch",
			fmt.Sprintf("batch_size %d outside [%d,%d]", req.BatchSize, minBatchSize, maxBatchSize))
	}
	if err := CheckExportGate(ctx, s, tenantID, req.RunID); err != nil {
		return Result{}, err
	}

	run, err := s.GetRun(ctx, tenantID, req.RunID)
	if err != nil {
		return Result{}, err
	}
	if run.Status != model.RunCompleted {
		return Result{}, corerr.New(corerr.Conflict, "dispatch.Dispatch", "run is not completed")
	}

	clients, err := s.GetClients(ctx, tenantID, store.ClientFilter{})
	if err != nil {
		return Result{}, err
	}

	nextActions, err := s.GetNextActionOutputs(ctx, tenantID, req.RunID)
	if err != nil {
		return Result{}, err
	}
	eligible := make(map[string]bool, len(nextActions))
	for _, na := range nextActions {
		if na.Eligible {
			eligible[na.CustomerCode] = true
		}
	}

	status := "delivered"
	if req.DryRun {
		status = "dry_run"
	}

	created := 0
	for _, c := range clients {
		if !eligible[c.ClientCode] {
			continue
		}
		if created >= req.BatchSize {
			break
		}
		ev := model.ContactEvent{
			TenantID:    tenantID,
			ClientID:    c.ID,
			ContactDate: time.Now().UTC(),
			Channel:     "email",
			Status:      status,
			CampaignID:  req.RunID,
		}
		if err := s.InsertContactEvent(ctx, tenantID, ev); err != nil {
			return Result{}, err
		}
		created++
	}

	return Result{ContactEventsCreated: created, DryRun: req.DryRun}, nil
}
