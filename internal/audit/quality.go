package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
)

// QualityReport is the outcome of RunDataQualityAudit for one tenant.
type QualityReport struct {
	Logs  []model.AuditLog
	Score int
}

// RunDataQualityAudit evaluates the simpler, rule-set-distinct
// data-quality surface and persists it to
// AuditLog, never to AuditOutput. It shares the Score formula with the
// run-level gating engine but nothing else: no run_id, no eligibility.
func RunDataQualityAudit(ctx context.Context, s store.Store, tenantID int64) (QualityReport, error) {
	clients, err := s.GetClients(ctx, tenantID, store.ClientFilter{})
	if err != nil {
		return QualityReport{}, err
	}
	products, err := s.GetProducts(ctx, tenantID)
	if err != nil {
		return QualityReport{}, err
	}
	sales, err := s.GetSales(ctx, tenantID)
	if err != nil {
		return QualityReport{}, err
	}

	productByKey := make(map[string]model.Product, len(products))
	for _, p := range products {
		productByKey[p.ProductKey] = p
	}
	clientByCode := make(map[string]model.Client, len(clients))
	seenEmails := map[string]int{}
	for _, c := range clients {
		clientByCode[c.ClientCode] = c
		if c.Email != "" {
			seenEmails[c.Email]++
		}
	}

	now := time.Now().UTC()
	var logs []model.AuditLog

	add := func(code string, severity model.AuditSeverity, customerCode, details string) {
		logs = append(logs, model.AuditLog{
			TenantID:     tenantID,
			CustomerCode: customerCode,
			Severity:     severity,
			RuleCode:     code,
			DetailsJSON:  details,
		})
	}

	for _, c := range clients {
		if c.Email == "" {
			add("MISSING_EMAIL", model.SeverityError, c.ClientCode, "")
		}
		if c.Email != "" && seenEmails[c.Email] > 1 {
			add("DUPLICATE_EMAIL", model.SeverityWarn, c.ClientCode, "")
		}
		if c.LastContactDate != nil && now.Sub(*c.LastContactDate).Hours()/24 > 365 {
			add("SILENCE_WINDOW", model.SeverityWarn, c.ClientCode, "365d+")
		}
		if c.LastPurchaseDate != nil && now.Sub(*c.LastPurchaseDate).Hours()/24 > 365 {
			add("CHURN_WARNING", model.SeverityWarn, c.ClientCode, "")
		}
		if c.RFMScore == 0 {
			add("INCOMPLETE_RFM", model.SeverityWarn, c.ClientCode, "")
		}
		prefs, _ := model.DecodePreferredFamilies(c.PreferredFamilies)
		if len(prefs.Families) == 0 {
			add("MISSING_FAMILY", model.SeverityWarn, c.ClientCode, "")
		} else if len(prefs.Families) == 1 && prefs.Families[0].Share > 0.7 {
			add("LOW_DIVERSITY", model.SeverityWarn, c.ClientCode, "")
		}
	}

	for _, p := range products {
		if p.PriceTTC.Valid {
			price := p.PriceTTC.Decimal.InexactFloat64()
			if price <= 0 || price > 10000 {
				add("UNREALISTIC_PRICE", model.SeverityError, "", p.ProductKey)
			}
		}
		if p.Margin.Valid && p.Margin.Decimal.IsNegative() {
			add("NEGATIVE_MARGIN", model.SeverityError, "", p.ProductKey)
		}
	}

	documentKeys := map[string]bool{}
	for _, s := range sales {
		if !s.Amount.Valid && s.Quantity == nil {
			add("INVALID_SALE_VALUE", model.SeverityError, s.ClientCode, s.DocumentID)
		}
		if s.Quantity != nil && *s.Quantity == 0 {
			add("ZERO_QUANTITY", model.SeverityWarn, s.ClientCode, s.DocumentID)
		}
		if _, ok := productByKey[s.ProductKey]; !ok {
			add("UNKNOWN_PRODUCT", model.SeverityError, s.ClientCode, s.ProductKey)
		}
		if _, ok := clientByCode[s.ClientCode]; !ok {
			add("UNKNOWN_CLIENT", model.SeverityError, s.ClientCode, "")
		}
		dupKey := fmt.Sprintf("%s|%s|%s", s.DocumentID, s.ProductKey, s.ClientCode)
		recentWindow := now.AddDate(0, 0, -30)
		if s.SaleDate != nil && s.SaleDate.After(recentWindow) {
			if documentKeys[dupKey] {
				add("RECENT_DUPLICATE", model.SeverityWarn, s.ClientCode, s.DocumentID)
			}
			documentKeys[dupKey] = true
		}
	}

	purchasedClients := map[string]bool{}
	for _, s := range sales {
		purchasedClients[s.ClientCode] = true
	}
	for _, c := range clients {
		if !purchasedClients[c.ClientCode] {
			add("NO_PURCHASE_DATA", model.SeverityWarn, c.ClientCode, "")
		}
	}

	errCount, warnCount := 0, 0
	for _, l := range logs {
		if l.Severity == model.SeverityError {
			errCount++
		} else {
			warnCount++
		}
	}
	score := Score(errCount, warnCount)

	if err := s.AppendAuditLogs(ctx, logs); err != nil {
		return QualityReport{}, err
	}
	return QualityReport{Logs: logs, Score: score}, nil
}
