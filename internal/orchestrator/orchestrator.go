// Package orchestrator sequences the pipeline for one tenant (ingest ->
// load -> derived metrics recompute -> recommendation run -> audit/gating
// -> summary) and fans out across tenants with a bounded worker pool:
// parallel workers across tenants, single-threaded cooperative within a
// run.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/iaros/vintage-crm-core/internal/audit"
	"github.com/iaros/vintage-crm-core/internal/contract"
	"github.com/iaros/vintage-crm-core/internal/derived"
	"github.com/iaros/vintage-crm-core/internal/ingest"
	"github.com/iaros/vintage-crm-core/internal/loader"
	"github.com/iaros/vintage-crm-core/internal/lock"
	"github.com/iaros/vintage-crm-core/internal/logging"
	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/reco"
	"github.com/iaros/vintage-crm-core/internal/scoring"
	"github.com/iaros/vintage-crm-core/internal/store"
	"github.com/iaros/vintage-crm-core/internal/summary"
)

// VerificationOutcome mirrors a per-tenant outcome's verification block.
type VerificationOutcome struct {
	Success         bool
	TotalRows       int
	ResolvedAliases int
	UnknownLabels   map[string]int
}

// TenantOutcome is the orchestrator's per-tenant result.
type TenantOutcome struct {
	TenantID      int64
	Success       bool
	TotalDuration time.Duration
	RunID         string
	Verification  VerificationOutcome
	Errors        []string
}

// Options configures one tenant's pipeline run.
type Options struct {
	TopN              int
	SilenceWindowDays int
	KMeansSeed        int64
	ClusterCount      int
	DatasetVersion    string
	CodeVersion       string
	ScoringConfig     scoring.Config
	BatchSize         int

	// DataDir, when set, is walked for clients*/products*/sales* CSV
	// exports and loaded into curated storage before derived metrics are
	// recomputed. Left empty, RunTenant assumes curated storage is
	// already populated (e.g. a test seeding the store directly) and
	// skips straight to derive -> recommend -> audit.
	DataDir string
	// RunsDir is where each ingestion run's raw/curated archive is
	// written; defaults to DataDir/runs.
	RunsDir string
}

// RunTenant executes derived-metrics recompute, a recommendation run,
// and audit/gating + summary persistence for a single tenant, guarded by
// a per-tenant advisory lock: each run acquires exclusive write access
// to avoid interleaving with a running recommendation job.
func RunTenant(ctx context.Context, s store.Store, locker *lock.TenantLocker, log *logging.Logger, tenantID int64, opts Options) TenantOutcome {
	start := time.Now()
	outcome := TenantOutcome{TenantID: tenantID}

	var lease *lock.Lease
	if locker != nil {
		l, err := locker.Acquire(ctx, tenantID, "pending")
		if err != nil {
			outcome.Errors = append(outcome.Errors, err.Error())
			outcome.TotalDuration = time.Since(start)
			return outcome
		}
		lease = l
		defer lease.Release()
	}

	var verification VerificationOutcome
	if opts.DataDir != "" {
		runsDir := opts.RunsDir
		if runsDir == "" {
			runsDir = opts.DataDir + "/runs"
		}
		_, rowsByTable, err := ingest.RunTenantDirectory(log, tenantID, opts.DataDir, runsDir)
		if err != nil {
			outcome.Errors = append(outcome.Errors, err.Error())
			outcome.TotalDuration = time.Since(start)
			return outcome
		}
		results, err := loader.LoadAllCuratedForTenant(ctx, s, log, tenantID, rowsByTable)
		if err != nil {
			outcome.Errors = append(outcome.Errors, err.Error())
			outcome.TotalDuration = time.Since(start)
			return outcome
		}
		for table, r := range results {
			if table != contract.TableSales {
				continue
			}
			verification.ResolvedAliases += r.ResolvedAliases
			if len(r.UnknownLabels) > 0 {
				if verification.UnknownLabels == nil {
					verification.UnknownLabels = make(map[string]int, len(r.UnknownLabels))
				}
				for label, n := range r.UnknownLabels {
					verification.UnknownLabels[label] += n
				}
			}
		}
	}

	if err := derived.RecomputePopularity(ctx, s, tenantID); err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.TotalDuration = time.Since(start)
		return outcome
	}
	if err := derived.RecomputeRFM(ctx, s, tenantID, derived.DefaultRFMThresholds); err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.TotalDuration = time.Since(start)
		return outcome
	}
	if err := derived.RecomputePreferences(ctx, s, tenantID, derived.DefaultBudgetThresholds); err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.TotalDuration = time.Since(start)
		return outcome
	}
	if err := derived.RecomputeAromaProfiles(ctx, s, tenantID); err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.TotalDuration = time.Since(start)
		return outcome
	}
	if err := derived.RecomputeClusters(ctx, s, tenantID, opts.KMeansSeed, opts.ClusterCount); err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.TotalDuration = time.Since(start)
		return outcome
	}

	runResult, err := reco.GenerateRecommendationsRun(ctx, s, log, tenantID, reco.Options{
		TopN:              opts.TopN,
		SilenceWindowDays: opts.SilenceWindowDays,
		DatasetVersion:    opts.DatasetVersion,
		CodeVersion:       opts.CodeVersion,
		Config:            opts.ScoringConfig,
	})
	if err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.TotalDuration = time.Since(start)
		return outcome
	}
	outcome.RunID = runResult.RunID

	sum, err := evaluateAndPersist(ctx, s, tenantID, runResult, opts.SilenceWindowDays)
	if err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.TotalDuration = time.Since(start)
		return outcome
	}

	verification.Success = true
	verification.TotalRows = sum.TotalRecommendations

	outcome.Success = true
	outcome.TotalDuration = time.Since(start)
	outcome.Verification = verification
	return outcome
}

func evaluateAndPersist(ctx context.Context, s store.Store, tenantID int64, runResult reco.RunResult, silenceWindowDays int) (model.Summary, error) {
	clients, err := s.GetClients(ctx, tenantID, store.ClientFilter{})
	if err != nil {
		return model.Summary{}, err
	}
	products, err := s.GetProducts(ctx, tenantID)
	if err != nil {
		return model.Summary{}, err
	}
	productByKey := make(map[string]model.Product, len(products))
	for _, p := range products {
		productByKey[p.ProductKey] = p
	}

	recosByCustomer := make(map[string][]model.RecoOutput, len(runResult.Outcomes))
	scenarioByCustomer := make(map[string]string, len(runResult.Outcomes))
	purchasesByCustomer := make(map[string][]model.Sale, len(runResult.Outcomes))
	contactEventsByClientID := make(map[int64][]model.ContactEvent, len(clients))

	since := time.Now().AddDate(0, 0, -silenceWindowDays)
	for _, c := range clients {
		recosByCustomer[c.ClientCode] = nil
		sales, err := s.GetSalesByClient(ctx, tenantID, c.ClientCode)
		if err != nil {
			return model.Summary{}, err
		}
		purchasesByCustomer[c.ClientCode] = sales

		events, err := s.GetRecentContactEvents(ctx, tenantID, c.ID, since)
		if err != nil {
			return model.Summary{}, err
		}
		contactEventsByClientID[c.ID] = events
	}
	for _, outcome := range runResult.Outcomes {
		recosByCustomer[outcome.CustomerCode] = outcome.Outputs
		scenarioByCustomer[outcome.CustomerCode] = string(outcome.Scenario)
	}

	sum, err := audit.EvaluateRun(
		ctx, s, tenantID, runResult.RunID, silenceWindowDays,
		clients, recosByCustomer, productByKey, contactEventsByClientID,
		purchasesByCustomer, scenarioByCustomer,
	)
	if err != nil {
		return model.Summary{}, err
	}

	if err := summary.Persist(ctx, s, tenantID, runResult.RunID, sum); err != nil {
		return model.Summary{}, err
	}
	return sum, nil
}

// RunAll fans RunTenant out across tenantIDs with at most concurrency
// workers in flight at once, using a worker pool with bounded channels.
func RunAll(ctx context.Context, s store.Store, locker *lock.TenantLocker, log *logging.Logger, tenantIDs []int64, concurrency int, opts Options) []TenantOutcome {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	results := make([]TenantOutcome, len(tenantIDs))

	var wg sync.WaitGroup
	for i, tenantID := range tenantIDs {
		wg.Add(1)
		go func(i int, tenantID int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = RunTenant(ctx, s, locker, log, tenantID, opts)
		}(i, tenantID)
	}
	wg.Wait()
	return results
}
