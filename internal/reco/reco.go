// Package reco is the recommendation run engine: candidate generation,
// composite scoring, ranking, and run persistence.
package reco

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iaros/vintage-crm-core/internal/corerr"
	"github.com/iaros/vintage-crm-core/internal/logging"
	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/scenario"
	"github.com/iaros/vintage-crm-core/internal/scoring"
	"github.com/iaros/vintage-crm-core/internal/store"
)

// Options configures one run of GenerateRecommendationsRun.
type Options struct {
	TopN               int
	SilenceWindowDays  int
	DatasetVersion     string
	CodeVersion        string
	Config             scoring.Config
}

// ClientOutcome is one client's generated suggestions within a run.
type ClientOutcome struct {
	CustomerCode string
	Scenario     scenario.Scenario
	Outputs      []model.RecoOutput
}

// RunResult is what GenerateRecommendationsRun returns to its caller.
type RunResult struct {
	RunID    string
	Status   model.RunStatus
	Outcomes []ClientOutcome
}

type purchaseInfo struct {
	purchasedKeys  map[string]bool
	avgPrice       float64
	recentKeys     map[string]bool // purchased within last 30 days
	families       map[string]bool
}

// GenerateRecommendationsRun executes the per-client recommendation
// pipeline for every client of tenantID and persists the run as a
// single logical transaction: created running, outputs appended, then
// marked completed (or failed on error).
func GenerateRecommendationsRun(ctx context.Context, s store.Store, log *logging.Logger, tenantID int64, opts Options) (RunResult, error) {
	if opts.TopN <= 0 {
		opts.TopN = 5
	}

	runID := uuid.NewString()
	run := model.RecoRun{
		TenantID:       tenantID,
		RunID:          runID,
		StartedAt:      time.Now().UTC(),
		DatasetVersion: opts.DatasetVersion,
		CodeVersion:    opts.CodeVersion,
		Status:         model.RunRunning,
	}
	if _, err := s.CreateRun(ctx, run); err != nil {
		return RunResult{}, err
	}

	outcomes, err := runClients(ctx, s, log, tenantID, runID, opts)
	if err != nil {
		_ = s.DeleteRunOutputs(ctx, tenantID, runID)
		finishedAt := time.Now().UTC()
		_ = s.SetRunStatus(ctx, tenantID, runID, model.RunFailed, &finishedAt)
		return RunResult{RunID: runID, Status: model.RunFailed}, err
	}

	var allOutputs []model.RecoOutput
	for _, o := range outcomes {
		allOutputs = append(allOutputs, o.Outputs...)
	}
	if err := s.AppendRecoOutputs(ctx, allOutputs); err != nil {
		finishedAt := time.Now().UTC()
		_ = s.SetRunStatus(ctx, tenantID, runID, model.RunFailed, &finishedAt)
		return RunResult{RunID: runID, Status: model.RunFailed}, err
	}

	finishedAt := time.Now().UTC()
	if err := s.SetRunStatus(ctx, tenantID, runID, model.RunCompleted, &finishedAt); err != nil {
		return RunResult{RunID: runID, Status: model.RunFailed}, err
	}

	if log != nil {
		log.WithRun(runID).PipelineStageLogger("reco:run", time.Since(run.StartedAt), len(allOutputs))
	}
	return RunResult{RunID: runID, Status: model.RunCompleted, Outcomes: outcomes}, nil
}

func runClients(ctx context.Context, s store.Store, log *logging.Logger, tenantID int64, runID string, opts Options) ([]ClientOutcome, error) {
	clients, err := s.GetClients(ctx, tenantID, store.ClientFilter{})
	if err != nil {
		return nil, err
	}
	products, err := s.GetProducts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	productByKey := make(map[string]model.Product, len(products))
	var maxPrice, maxRFM float64
	for _, p := range products {
		productByKey[p.ProductKey] = p
		if p.PriceTTC.Valid {
			if v := p.PriceTTC.Decimal.InexactFloat64(); v > maxPrice {
				maxPrice = v
			}
		}
	}
	for _, c := range clients {
		if float64(c.RFMScore) > maxRFM {
			maxRFM = float64(c.RFMScore)
		}
	}
	if maxRFM == 0 {
		maxRFM = 1
	}
	if maxPrice == 0 {
		maxPrice = 1
	}

	outcomes := make([]ClientOutcome, 0, len(clients))
	for _, c := range clients {
		select {
		case <-ctx.Done():
			return nil, corerr.New(corerr.Cancelled, "reco.runClients", "run cancelled")
		default:
		}

		sales, err := s.GetSalesByClient(ctx, tenantID, c.ClientCode)
		if err != nil {
			return nil, err
		}
		info := buildPurchaseInfo(sales, productByKey)

		numFamilies := len(info.families)
		features := scenario.ExtractFeatures(c, numFamilies)
		sc := scenario.Select(opts.Config.ScenarioWeights, features)

		candidates := generateCandidates(sc, c, info, productByKey)
		scored := scoreCandidates(sc, c, candidates, info, maxPrice, maxRFM, opts.Config.RecoWeights[sc])
		ranked := rank(scored, opts.TopN)

		outputs := make([]model.RecoOutput, 0, len(ranked))
		for i, sc2 := range ranked {
			reasons, _ := model.EncodeReasons(sc2.terms)
			outputs = append(outputs, model.RecoOutput{
				RunID:        runID,
				TenantID:     tenantID,
				CustomerCode: c.ClientCode,
				Scenario:     string(sc),
				Rank:         i + 1,
				ProductKey:   sc2.productKey,
				Score:        sc2.score,
				ExplainShort: explainShort(sc, sc2),
				ReasonsJSON:  reasons,
			})
		}
		outcomes = append(outcomes, ClientOutcome{CustomerCode: c.ClientCode, Scenario: sc, Outputs: outputs})
	}
	return outcomes, nil
}

func buildPurchaseInfo(sales []model.Sale, productByKey map[string]model.Product) purchaseInfo {
	info := purchaseInfo{
		purchasedKeys: map[string]bool{},
		recentKeys:    map[string]bool{},
		families:      map[string]bool{},
	}
	var totalPrice float64
	var priceCount int
	cutoff := time.Now().AddDate(0, 0, -30)
	for _, sale := range sales {
		info.purchasedKeys[sale.ProductKey] = true
		if sale.SaleDate != nil && sale.SaleDate.After(cutoff) {
			info.recentKeys[sale.ProductKey] = true
		}
		if p, ok := productByKey[sale.ProductKey]; ok {
			if p.PriceTTC.Valid {
				totalPrice += p.PriceTTC.Decimal.InexactFloat64()
				priceCount++
			}
			if p.FamilyCRM != "" {
				info.families[p.FamilyCRM] = true
			}
		}
	}
	if priceCount > 0 {
		info.avgPrice = totalPrice / float64(priceCount)
	}
	return info
}

func generateCandidates(sc scenario.Scenario, c model.Client, info purchaseInfo, productByKey map[string]model.Product) []model.Product {
	var candidates []model.Product
	for _, p := range productByKey {
		if p.IsArchived {
			continue
		}
		purchased := info.purchasedKeys[p.ProductKey]
		switch sc {
		case scenario.Rebuy:
			if !purchased || info.recentKeys[p.ProductKey] {
				continue
			}
		case scenario.CrossSell:
			if purchased {
				continue
			}
		case scenario.Upsell:
			if purchased || !info.families[p.FamilyCRM] {
				continue
			}
			if !p.PriceTTC.Valid || p.PriceTTC.Decimal.InexactFloat64() <= info.avgPrice {
				continue
			}
		case scenario.Winback, scenario.Nurture:
			if purchased || !p.IsActive {
				continue
			}
		}
		candidates = append(candidates, p)
	}
	return candidates
}

type scoredCandidate struct {
	productKey string
	score      float64
	terms      map[string]float64
}

func scoreCandidates(sc scenario.Scenario, c model.Client, candidates []model.Product, info purchaseInfo, maxPrice, maxRFM float64, weights scoring.RecoWeights) []scoredCandidate {
	prefs, _ := model.DecodePreferredFamilies(c.PreferredFamilies)
	preferredSet := make(map[string]bool, len(prefs.Families))
	for _, f := range prefs.Families {
		preferredSet[f.Family] = true
	}

	aov := c.AverageOrderValue.InexactFloat64()

	out := make([]scoredCandidate, 0, len(candidates))
	for _, p := range candidates {
		popularity := clamp01Gen(p.GlobalPopularityScore)

		priceFit := 0.5
		if p.PriceTTC.Valid && maxPrice > 0 {
			price := p.PriceTTC.Decimal.InexactFloat64()
			diff := absGen(price - aov)
			priceFit = clamp01Gen(1 - diff/maxPrice)
		}

		familyFit := 0.0
		if preferredSet[p.FamilyCRM] {
			familyFit = 1.0
		}

		rfmNorm := clamp01Gen(float64(c.RFMScore) / maxRFM)

		score := weights.Popularity*popularity + weights.Price*priceFit + weights.Family*familyFit + weights.RFM*rfmNorm

		out = append(out, scoredCandidate{
			productKey: p.ProductKey,
			score:      score,
			terms: map[string]float64{
				"popularity": popularity,
				"price_fit":  priceFit,
				"family_fit": familyFit,
				"rfm_norm":   rfmNorm,
			},
		})
	}
	return out
}

func rank(candidates []scoredCandidate, topN int) []scoredCandidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].productKey < candidates[j].productKey
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates
}

func explainShort(sc scenario.Scenario, c scoredCandidate) string {
	return fmt.Sprintf("%s suggestion, score=%.2f", sc, c.score)
}

func clamp01Gen(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absGen(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
