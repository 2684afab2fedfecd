// Package audit evaluates the run-level gating rules and the distinct
// data-quality audit surface (quality.go), sharing the audit-score
// formula but never the rule set or storage table.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
)

// ClientResult is one client's gating outcome within a run.
type ClientResult struct {
	CustomerCode string
	Issues       []model.AuditOutput
	Score        int
	Eligible     bool
	Reason       string
}

// RunSummaryInput groups per-scenario client counts. EvaluateRun does
// not take it; it counts scenarios from its own scenarioByCustomer
// argument.
type RunSummaryInput struct {
	ScenarioCounts map[string]int
}

// Score computes the audit_score formula shared by both audit
// surfaces: max(0, 100 - 40*errors - 10*warns).
func Score(errors, warns int) int {
	score := 100 - 40*errors - 10*warns
	if score < 0 {
		score = 0
	}
	return score
}

// EvaluateClient runs the eight gating rules for one client's recos
// within a run and returns its gating outcome.
func EvaluateClient(
	c model.Client,
	recos []model.RecoOutput,
	productByKey map[string]model.Product,
	recentEvents []model.ContactEvent,
	purchases []model.Sale,
	silenceWindowDays int,
) ClientResult {
	var issues []model.AuditOutput
	now := time.Now().UTC()

	add := func(severity model.AuditSeverity, ruleCode, details string) {
		issues = append(issues, model.AuditOutput{
			CustomerCode: c.ClientCode,
			Severity:     severity,
			RuleCode:     ruleCode,
			DetailsJSON:  details,
		})
	}

	if c.Email == "" {
		add(model.SeverityError, "MISSING_EMAIL", "")
	}

	optedOutOrBounced := c.EmailOptOut
	for _, ev := range recentEvents {
		if ev.Status == "bounce" || ev.Status == "unsubscribe" {
			optedOutOrBounced = true
		}
	}
	if optedOutOrBounced {
		add(model.SeverityError, "OPTOUT_OR_BOUNCE", "")
	}

	cutoff := now.AddDate(0, 0, -silenceWindowDays)
	for _, ev := range recentEvents {
		if !ev.ContactDate.Before(cutoff) {
			add(model.SeverityError, "SILENCE_WINDOW", "")
			break
		}
	}

	seenKeys := map[string]bool{}
	duplicate := false
	for _, r := range recos {
		if seenKeys[r.ProductKey] {
			duplicate = true
		}
		seenKeys[r.ProductKey] = true
	}
	if duplicate {
		add(model.SeverityError, "RECENT_DUPLICATE", "")
	}

	avgPrice := averagePurchasePrice(purchases, productByKey)
	for _, r := range recos {
		if r.Scenario != "upsell" {
			continue
		}
		p, ok := productByKey[r.ProductKey]
		if !ok || !p.PriceTTC.Valid {
			continue
		}
		if p.PriceTTC.Decimal.InexactFloat64() <= avgPrice {
			add(model.SeverityError, "UPSELL_NOT_HIGHER", "")
			break
		}
	}

	purchasedKeys := map[string]bool{}
	for _, s := range purchases {
		purchasedKeys[s.ProductKey] = true
	}
	for _, r := range recos {
		if r.Scenario == "cross_sell" && purchasedKeys[r.ProductKey] {
			add(model.SeverityWarn, "CROSS_SELL_NOT_NEW", "")
			break
		}
	}

	if len(recos) >= 3 {
		familyCounts := map[string]int{}
		for _, r := range recos {
			if p, ok := productByKey[r.ProductKey]; ok && p.FamilyCRM != "" {
				familyCounts[p.FamilyCRM]++
			}
		}
		for _, n := range familyCounts {
			if float64(n)/float64(len(recos)) > 0.7 {
				add(model.SeverityWarn, "LOW_DIVERSITY", "")
				break
			}
		}
	}

	dominantSucrosity := dominantPurchasedSucrosity(purchases, productByKey)
	if dominantSucrosity != "" {
		for _, r := range recos {
			if p, ok := productByKey[r.ProductKey]; ok && p.SucrositeNiveau != "" && p.SucrositeNiveau != dominantSucrosity {
				add(model.SeverityWarn, "SUGAR_MISMATCH", "")
				break
			}
		}
	}

	errCount, warnCount := 0, 0
	for _, iss := range issues {
		if iss.Severity == model.SeverityError {
			errCount++
		} else {
			warnCount++
		}
	}
	score := Score(errCount, warnCount)
	eligible := errCount == 0 && score >= 80
	reason := ""
	if !eligible {
		if len(issues) > 0 {
			reason = issues[0].RuleCode
		} else {
			reason = "AUDIT_SCORE_BELOW_THRESHOLD"
		}
	}

	return ClientResult{CustomerCode: c.ClientCode, Issues: issues, Score: score, Eligible: eligible, Reason: reason}
}

func averagePurchasePrice(purchases []model.Sale, productByKey map[string]model.Product) float64 {
	var total float64
	var count int
	for _, s := range purchases {
		if p, ok := productByKey[s.ProductKey]; ok && p.PriceTTC.Valid {
			total += p.PriceTTC.Decimal.InexactFloat64()
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func dominantPurchasedSucrosity(purchases []model.Sale, productByKey map[string]model.Product) string {
	counts := map[string]int{}
	for _, s := range purchases {
		if p, ok := productByKey[s.ProductKey]; ok && p.SucrositeNiveau != "" {
			counts[p.SucrositeNiveau]++
		}
	}
	best := ""
	bestCount := 0
	for niveau, n := range counts {
		if n > bestCount {
			bestCount = n
			best = niveau
		}
	}
	return best
}

// EvaluateRun evaluates every client in a run, persists AuditOutput and
// NextActionOutput rows, and returns the run-level Summary.
func EvaluateRun(
	ctx context.Context,
	s store.Store,
	tenantID int64,
	runID string,
	silenceWindowDays int,
	clients []model.Client,
	recosByCustomer map[string][]model.RecoOutput,
	productByKey map[string]model.Product,
	contactEventsByClientID map[int64][]model.ContactEvent,
	purchasesByCustomer map[string][]model.Sale,
	scenarioByCustomer map[string]string,
) (model.Summary, error) {
	var auditOutputs []model.AuditOutput
	var nextActions []model.NextActionOutput
	totalErrors, totalWarns := 0, 0
	eligibleCount := 0
	scenarioCounts := map[string]int{}
	ruleCounts := map[string]int{}

	for _, c := range clients {
		recos := recosByCustomer[c.ClientCode]
		result := EvaluateClient(
			c, recos, productByKey,
			contactEventsByClientID[c.ID],
			purchasesByCustomer[c.ClientCode],
			silenceWindowDays,
		)

		for i := range result.Issues {
			result.Issues[i].RunID = runID
			result.Issues[i].TenantID = tenantID
			if result.Issues[i].Severity == model.SeverityError {
				totalErrors++
			} else {
				totalWarns++
			}
			ruleCounts[result.Issues[i].RuleCode]++
		}
		auditOutputs = append(auditOutputs, result.Issues...)

		if result.Eligible {
			eligibleCount++
		}
		sc := scenarioByCustomer[c.ClientCode]
		scenarioCounts[sc]++

		nextActions = append(nextActions, model.NextActionOutput{
			RunID:        runID,
			TenantID:     tenantID,
			CustomerCode: c.ClientCode,
			Eligible:     result.Eligible,
			Reason:       result.Reason,
			Scenario:     sc,
			AuditScore:   result.Score,
		})
	}

	if err := s.AppendAuditOutputs(ctx, auditOutputs); err != nil {
		return model.Summary{}, err
	}
	if err := s.AppendNextActionOutputs(ctx, nextActions); err != nil {
		return model.Summary{}, err
	}

	totalClients := len(clients)
	gatingRate := 0.0
	if totalClients > 0 {
		gatingRate = float64(eligibleCount) / float64(totalClients)
	}
	runScore := Score(totalErrors, totalWarns)

	var totalRecos int
	for _, recos := range recosByCustomer {
		totalRecos += len(recos)
	}

	summary := model.Summary{
		GatingRate:           gatingRate,
		TotalClients:         totalClients,
		TotalRecommendations: totalRecos,
		ScenarioCounts:       scenarioCounts,
		TopErrors:            topRuleCounts(ruleCounts, 5),
		NErrors:              totalErrors,
		NWarns:               totalWarns,
		AuditScore:           runScore,
		GateExport:           totalErrors == 0 && runScore >= 80,
	}
	return summary, nil
}

func topRuleCounts(counts map[string]int, topN int) []model.RuleCount {
	out := make([]model.RuleCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, model.RuleCount{RuleCode: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RuleCode < out[j].RuleCode
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
