// Package loader takes contract-validated ingest.RawRow batches and
// writes them into curated storage: natural-key dedup (keep last),
// tenant tagging, and product alias resolution.
package loader

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/iaros/vintage-crm-core/internal/contract"
	"github.com/iaros/vintage-crm-core/internal/ingest"
	"github.com/iaros/vintage-crm-core/internal/logging"
	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
)

// Confidence bands for product alias resolution.
const (
	ConfidenceManual  = 1.0
	ConfidenceSuggest = 0.7
	ConfidenceAuto    = 0.5
)

// Result reports what a Load* call did, for the run summary and metrics.
// ResolvedAliases and UnknownLabels are populated only by LoadSales:
// resolving a sale's product_label through the alias table increments
// ResolvedAliases, and a label with no match increments its own count in
// UnknownLabels, keyed by its normalized form.
type Result struct {
	Inserted        int
	Updated         int
	Duplicates      int
	ResolvedAliases int
	UnknownLabels   map[string]int
}

func dedupByLastWins(rows []ingest.RawRow, keyFn func(map[string]string) string) ([]ingest.RawRow, int) {
	order := make([]string, 0, len(rows))
	byKey := make(map[string]ingest.RawRow, len(rows))
	for _, row := range rows {
		k := keyFn(row.Values)
		if _, exists := byKey[k]; !exists {
			order = append(order, k)
		}
		byKey[k] = row // last wins
	}
	duplicates := len(rows) - len(order)
	out := make([]ingest.RawRow, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, duplicates
}

// LoadClients dedups by client_code (keep last) and upserts into the
// curated clients table.
func LoadClients(ctx context.Context, s store.Store, log *logging.Logger, tenantID int64, rows []ingest.RawRow) (Result, error) {
	deduped, dupes := dedupByLastWins(rows, func(v map[string]string) string { return v["client_code"] })

	clients := make([]model.Client, 0, len(deduped))
	for _, row := range deduped {
		v := row.Values
		c := model.Client{
			TenantID:   tenantID,
			ClientCode: v["client_code"],
			Name:       v["name"],
			Email:      v["email"],
		}
		if t, ok, _ := ingest.ParseDate(v["last_purchase_date"]); ok {
			c.LastPurchaseDate = &t
		}
		if f, err := strconv.ParseFloat(v["total_spent"], 64); err == nil {
			c.TotalSpent = decimal.NewFromFloat(f)
		}
		if n, err := strconv.Atoi(v["total_orders"]); err == nil {
			c.TotalOrders = n
		}
		if f, err := strconv.ParseFloat(v["average_order_value"], 64); err == nil {
			c.AverageOrderValue = decimal.NewFromFloat(f)
		}
		clients = append(clients, c)
	}

	inserted, updated, err := s.UpsertClients(ctx, tenantID, clients)
	if err != nil {
		return Result{}, err
	}
	if log != nil {
		log.PipelineStageLogger("load:clients", 0, len(clients))
	}
	return Result{Inserted: inserted, Updated: updated, Duplicates: dupes}, nil
}

// LoadProducts dedups by product_key (keep last), upserts into the
// curated products table, and auto-registers a product_alias for the
// product's own normalized name at ConfidenceAuto unless an alias of
// equal or higher confidence already claims that label.
func LoadProducts(ctx context.Context, s store.Store, log *logging.Logger, tenantID int64, rows []ingest.RawRow) (Result, error) {
	deduped, dupes := dedupByLastWins(rows, func(v map[string]string) string { return v["product_key"] })

	products := make([]model.Product, 0, len(deduped))
	for _, row := range deduped {
		v := row.Values
		p := model.Product{
			TenantID:        tenantID,
			ProductKey:      v["product_key"],
			Name:            v["name"],
			FamilyCRM:       v["family_crm"],
			SubFamily:       v["sub_family"],
			Cepage:          v["cepage"],
			SucrositeNiveau: v["sucrosite_niveau"],
			SeasonTags:      v["season_tags"],
			IsActive:        true,
		}
		if f, err := strconv.ParseFloat(v["price_ttc"], 64); err == nil {
			p.PriceTTC = decimal.NewNullDecimal(decimal.NewFromFloat(f))
		}
		if f, err := strconv.ParseFloat(v["margin"], 64); err == nil {
			p.Margin = decimal.NewNullDecimal(decimal.NewFromFloat(f))
		}
		if b, err := strconv.ParseBool(v["is_active"]); err == nil {
			p.IsActive = b
		}
		if b, err := strconv.ParseBool(v["is_archived"]); err == nil {
			p.IsArchived = b
		}
		products = append(products, p)
	}

	inserted, updated, err := s.UpsertProducts(ctx, tenantID, products)
	if err != nil {
		return Result{}, err
	}

	existing, err := s.GetAliases(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	byLabel := make(map[string]model.ProductAlias, len(existing))
	for _, a := range existing {
		byLabel[a.LabelNorm] = a
	}

	for _, row := range deduped {
		labelNorm := row.Values["label_norm"]
		if labelNorm == "" {
			continue
		}
		if current, ok := byLabel[labelNorm]; ok && current.Confidence >= ConfidenceAuto {
			continue
		}
		alias := model.ProductAlias{
			TenantID:   tenantID,
			LabelNorm:  labelNorm,
			ProductKey: row.Values["product_key"],
			LabelRaw:   row.Values["name"],
			Confidence: ConfidenceAuto,
			Source:     "auto",
		}
		if err := s.UpsertAlias(ctx, tenantID, alias); err != nil {
			return Result{}, err
		}
	}

	if log != nil {
		log.PipelineStageLogger("load:products", 0, len(products))
	}
	return Result{Inserted: inserted, Updated: updated, Duplicates: dupes}, nil
}

// saleDedupKey derives the natural key a sales row dedups on before its
// product reference is resolved against the catalog: an explicit
// product_key takes priority, falling back to whatever label the row
// carries so two rows naming the same unresolved wine still collide.
func saleDedupKey(v map[string]string) string {
	ref := v["product_key"]
	if ref == "" {
		ref = v["label_norm"]
	}
	if ref == "" {
		ref = v["product_label"]
	}
	return v["document_id"] + "|" + ref + "|" + v["client_code"]
}

// resolveSaleProductKey returns the curated product_key for a sale row.
// A product_key already present and known to the catalog is used as-is.
// Otherwise the row's label - product_key itself when it was populated
// with a raw label rather than a key, else label_norm staged from
// product_label by ingestion, else product_label normalized on the spot
// - is looked up in the alias table. ok is false when no label could be
// resolved to a known product.
func resolveSaleProductKey(v map[string]string, knownKeys map[string]bool, byLabel map[string]string) (productKey, labelNorm string, ok bool) {
	if pk := v["product_key"]; pk != "" && knownKeys[pk] {
		return pk, "", true
	}

	switch {
	case v["product_key"] != "":
		labelNorm = ingest.NormalizeLabel(v["product_key"])
	case v["label_norm"] != "":
		labelNorm = v["label_norm"]
	case v["product_label"] != "":
		labelNorm = ingest.NormalizeLabel(v["product_label"])
	default:
		return "", "", false
	}

	resolved, found := byLabel[labelNorm]
	if !found {
		return "", labelNorm, false
	}
	return resolved, labelNorm, true
}

// LoadSales dedups by (document_id, product_key, client_code) natural
// key (keep last), resolves each row's product reference - by key when
// already known, otherwise by label through the alias table - and
// inserts the curated sales rows. A row whose label resolves to nothing
// is dropped and counted in Result.UnknownLabels rather than inserted
// with a missing product_key.
func LoadSales(ctx context.Context, s store.Store, log *logging.Logger, tenantID int64, rows []ingest.RawRow) (Result, error) {
	deduped, dupes := dedupByLastWins(rows, saleDedupKey)

	products, err := s.GetProducts(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	knownKeys := make(map[string]bool, len(products))
	for _, p := range products {
		knownKeys[p.ProductKey] = true
	}

	aliases, err := s.GetAliases(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	byLabel := make(map[string]string, len(aliases))
	for _, a := range aliases {
		byLabel[a.LabelNorm] = a.ProductKey
	}

	sales := make([]model.Sale, 0, len(deduped))
	resolvedAliases := 0
	unknownLabels := make(map[string]int)

	for _, row := range deduped {
		v := row.Values
		productKey, labelNorm, ok := resolveSaleProductKey(v, knownKeys, byLabel)
		if !ok {
			if labelNorm != "" {
				unknownLabels[labelNorm]++
			}
			continue
		}
		if labelNorm != "" {
			resolvedAliases++
		}

		sale := model.Sale{
			TenantID:   tenantID,
			DocumentID: v["document_id"],
			ProductKey: productKey,
			ClientCode: v["client_code"],
		}
		if f, err := strconv.ParseFloat(v["quantity"], 64); err == nil {
			sale.Quantity = &f
		}
		if f, err := strconv.ParseFloat(v["amount"], 64); err == nil {
			sale.Amount = decimal.NewNullDecimal(decimal.NewFromFloat(f))
		}
		if t, ok, _ := ingest.ParseDate(v["sale_date"]); ok {
			sale.SaleDate = &t
		}
		sales = append(sales, sale)
	}

	inserted, err := s.InsertSales(ctx, tenantID, sales)
	if err != nil {
		return Result{}, err
	}
	if log != nil {
		log.PipelineStageLogger("load:sales", 0, len(sales))
	}
	return Result{Inserted: inserted, Duplicates: dupes, ResolvedAliases: resolvedAliases, UnknownLabels: unknownLabels}, nil
}

// LoadAllCuratedForTenant runs LoadClients, LoadProducts, and LoadSales
// in that order - clients and products must exist before sales can
// resolve against the catalog and alias table - over one ingestion
// run's curated batches, keyed by table. A table missing from rowsByTable
// is simply skipped.
func LoadAllCuratedForTenant(ctx context.Context, s store.Store, log *logging.Logger, tenantID int64, rowsByTable map[contract.Table][]ingest.RawRow) (map[contract.Table]Result, error) {
	results := make(map[contract.Table]Result, len(rowsByTable))

	if rows, ok := rowsByTable[contract.TableClients]; ok {
		r, err := LoadClients(ctx, s, log, tenantID, rows)
		if err != nil {
			return nil, err
		}
		results[contract.TableClients] = r
	}
	if rows, ok := rowsByTable[contract.TableProducts]; ok {
		r, err := LoadProducts(ctx, s, log, tenantID, rows)
		if err != nil {
			return nil, err
		}
		results[contract.TableProducts] = r
	}
	if rows, ok := rowsByTable[contract.TableSales]; ok {
		r, err := LoadSales(ctx, s, log, tenantID, rows)
		if err != nil {
			return nil, err
		}
		results[contract.TableSales] = r
	}
	return results, nil
}
