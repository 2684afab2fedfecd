// Package contract defines the per-table CSV data contracts ingestion
// validates against before any row is staged.
package contract

import (
	"fmt"
	"strings"

	"github.com/iaros/vintage-crm-core/internal/corerr"
)

// Table names the three raw CSV sources the pipeline accepts.
type Table string

const (
	TableClients  Table = "clients"
	TableProducts Table = "products"
	TableSales    Table = "sales"
)

// Contract describes one table's required and optional columns.
// RequiredOneOf holds groups where at least one column of each group must
// be present (e.g. a sale identifies its product by key or by label).
type Contract struct {
	Required      []string
	RequiredOneOf [][]string
	Optional      []string
}

var contracts = map[Table]Contract{
	TableClients: {
		Required: []string{"client_code"},
		Optional: []string{"name", "email", "last_purchase_date", "total_spent", "total_orders", "average_order_value"},
	},
	TableProducts: {
		Required: []string{"product_key", "name"},
		Optional: []string{
			"family_crm", "sub_family", "cepage", "sucrosite_niveau", "price_ttc", "margin",
			"season_tags", "is_active", "is_archived",
		},
	},
	TableSales: {
		Required:      []string{"document_id", "client_code"},
		RequiredOneOf: [][]string{{"product_key", "product_label"}},
		Optional:      []string{"product_key", "product_label", "quantity", "amount", "sale_date"},
	},
}

// For returns the contract for table, or a ContractError if table is
// unknown.
func For(table Table) (Contract, error) {
	c, ok := contracts[table]
	if !ok {
		return Contract{}, corerr.New(corerr.ContractError, "contract.For", fmt.Sprintf("unknown table %q", table))
	}
	return c, nil
}

// Validate checks that header contains every required column for table,
// plus at least one column from each RequiredOneOf group. Unknown extra
// columns are tolerated and ignored downstream. header is expected
// already normalized (see NormalizeHeader).
func Validate(table Table, header []string) error {
	c, err := For(table)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, req := range c.Required {
		if !present[req] {
			missing = append(missing, req)
		}
	}
	for _, group := range c.RequiredOneOf {
		if !anyPresent(present, group) {
			missing = append(missing, strings.Join(group, " or "))
		}
	}
	if len(missing) > 0 {
		return corerr.New(corerr.ContractError, "contract.Validate",
			fmt.Sprintf("table %s missing required columns: %s", table, strings.Join(missing, ", ")))
	}
	return nil
}

func anyPresent(present map[string]bool, group []string) bool {
	for _, col := range group {
		if present[col] {
			return true
		}
	}
	return false
}

// NormalizeHeader lower-cases, trims, and underscores each column name so
// "Client Code"/"client-code"/"CLIENT_CODE" all map to "client_code".
func NormalizeHeader(raw []string) []string {
	out := make([]string, len(raw))
	for i, h := range raw {
		out[i] = NormalizeColumnName(h)
	}
	return out
}

// NormalizeColumnName applies the single-column version of NormalizeHeader.
func NormalizeColumnName(raw string) string {
	h := strings.TrimSpace(strings.ToLower(raw))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}
