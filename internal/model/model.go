// Package model defines the multi-tenant domain entities.
// Every entity that can be loaded by the ingestion pipeline or written by
// a recommendation run carries an explicit TenantID column; there are
// no in-memory back-pointers, cyclic references become foreign keys
// fetched per operation.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tenant is the root of isolation. Administration creates tenants; the
// core never deletes one while dependent rows exist.
type Tenant struct {
	ID     int64  `gorm:"primaryKey"`
	Name   string `gorm:"uniqueIndex;size:200;not null"`
	Domain string `gorm:"size:200"`
}

func (Tenant) TableName() string { return "tenants" }

// Client is a tenant's customer record, enriched in place by the derived
// metrics services. preferred_families/aroma_profile are stored as
// JSON text and decoded through model.PreferredFamilies/AromaProfile.
type Client struct {
	ID                int64  `gorm:"primaryKey"`
	TenantID          int64  `gorm:"index:idx_clients_tenant_code,unique,priority:1;not null"`
	ClientCode        string `gorm:"index:idx_clients_tenant_code,unique,priority:2;size:100;not null"`
	Name              string `gorm:"size:200"`
	Email             string `gorm:"size:320"`
	LastPurchaseDate  *time.Time
	TotalSpent        decimal.Decimal `gorm:"type:numeric(14,2)"`
	TotalOrders       int
	AverageOrderValue decimal.Decimal `gorm:"type:numeric(14,2)"`
	Recency           *float64
	Frequency         *float64
	Monetary          *float64
	RFMScore          int
	RFMSegment        string `gorm:"size:40"`
	PreferredFamilies string `gorm:"type:text"` // JSON, see PreferredFamilies
	BudgetBand        string `gorm:"size:10"`   // Low|Medium|High
	AromaProfile      string `gorm:"type:text"` // JSON, see AromaProfile
	Cluster           string `gorm:"size:10"`   // "cN"
	LastContactDate   *time.Time
	EmailOptOut       bool
}

func (Client) TableName() string { return "clients" }

// Product is a tenant's catalog entry. AromaAxes holds the seven 0..5
// fruit/floral/spice/mineral/acidity/body/tannin scores as JSON text.
type Product struct {
	ID                     int64  `gorm:"primaryKey"`
	TenantID               int64  `gorm:"index:idx_products_tenant_key,unique,priority:1;not null"`
	ProductKey             string `gorm:"index:idx_products_tenant_key,unique,priority:2;size:100;not null"`
	Name                   string `gorm:"size:300;not null"`
	FamilyCRM              string `gorm:"size:100"`
	SubFamily              string `gorm:"size:100"`
	Cepage                 string `gorm:"size:100"`
	SucrositeNiveau        string `gorm:"size:40"`
	PriceTTC               decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	Margin                 decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	PremiumTier            string              `gorm:"size:40"`
	PriceBand              string              `gorm:"size:10"`
	AromaAxes              string              `gorm:"type:text"` // JSON, see AromaAxes
	GlobalPopularityScore  float64
	SeasonTags             string `gorm:"size:200"`
	IsActive               bool   `gorm:"default:true"`
	IsArchived             bool
}

func (Product) TableName() string { return "products" }

// Sale is a single sold line. The natural key for dedup/idempotency is
// (TenantID, DocumentID, ProductKey, ClientCode).
type Sale struct {
	ID         int64  `gorm:"primaryKey"`
	TenantID   int64  `gorm:"index:idx_sales_natural,unique,priority:1;not null"`
	DocumentID string `gorm:"index:idx_sales_natural,unique,priority:2;size:100;not null"`
	ProductKey string `gorm:"index:idx_sales_natural,unique,priority:3;size:100;not null"`
	ClientCode string `gorm:"index:idx_sales_natural,unique,priority:4;size:100;not null"`
	Quantity   *float64
	Amount     decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	SaleDate   *time.Time
}

func (Sale) TableName() string { return "sales" }

// ProductAlias maps a normalized raw label to a canonical product_key.
type ProductAlias struct {
	ID         int64  `gorm:"primaryKey"`
	TenantID   int64  `gorm:"index:idx_alias_tenant_label,unique,priority:1;not null"`
	LabelNorm  string `gorm:"index:idx_alias_tenant_label,unique,priority:2;size:200;not null"`
	ProductKey string `gorm:"size:100;not null"`
	LabelRaw   string `gorm:"size:200"`
	Confidence float64
	Source     string `gorm:"size:10"` // manual|suggest|auto
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ProductAlias) TableName() string { return "product_aliases" }

// ContactEvent records a marketing touch for silence-window and
// opt-out/bounce gating.
type ContactEvent struct {
	ID          int64  `gorm:"primaryKey"`
	TenantID    int64  `gorm:"index;not null"`
	ClientID    int64  `gorm:"index;not null"`
	ContactDate time.Time
	Channel     string `gorm:"size:40"`
	Status      string `gorm:"size:20"` // delivered|open|click|bounce|unsubscribe|dry_run
	CampaignID  string `gorm:"size:100"`
}

func (ContactEvent) TableName() string { return "contact_events" }

// RunStatus is the lifecycle of a RecoRun. Transitions are
// running -> completed|failed only; never back to running.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RecoRun is the header row for one recommendation run.
type RecoRun struct {
	ID             int64  `gorm:"primaryKey"`
	TenantID       int64  `gorm:"index;not null"`
	RunID          string `gorm:"uniqueIndex;size:64;not null"`
	StartedAt      time.Time
	FinishedAt     *time.Time
	DatasetVersion string `gorm:"size:64"`
	ConfigHash     string `gorm:"size:64"`
	CodeVersion    string `gorm:"size:40"`
	Status         RunStatus `gorm:"size:10;not null"`
}

func (RecoRun) TableName() string { return "reco_runs" }

// RecoOutput is one ranked suggestion. Invariant: for a given
// (RunID, CustomerCode), Rank values are contiguous starting at 1 and
// ProductKey values are distinct.
type RecoOutput struct {
	ID           int64   `gorm:"primaryKey"`
	RunID        string  `gorm:"index:idx_reco_run_customer;size:64;not null"`
	TenantID     int64   `gorm:"index;not null"`
	CustomerCode string  `gorm:"index:idx_reco_run_customer;size:100;not null"`
	Scenario     string  `gorm:"size:20;not null"`
	Rank         int     `gorm:"not null"`
	ProductKey   string  `gorm:"size:100;not null"`
	Score        float64 `gorm:"not null"`
	ExplainShort string  `gorm:"size:300"`
	ReasonsJSON  string  `gorm:"type:text"` // JSON, see Reasons
}

func (RecoOutput) TableName() string { return "reco_outputs" }

// AuditSeverity is ERROR or WARN.
type AuditSeverity string

const (
	SeverityError AuditSeverity = "ERROR"
	SeverityWarn  AuditSeverity = "WARN"
)

// AuditOutput is one rule hit against a (run, client) pair.
type AuditOutput struct {
	ID           int64         `gorm:"primaryKey"`
	RunID        string        `gorm:"index:idx_audit_run_customer;size:64;not null"`
	TenantID     int64         `gorm:"index;not null"`
	CustomerCode string        `gorm:"index:idx_audit_run_customer;size:100;not null"`
	Severity     AuditSeverity `gorm:"size:10;not null"`
	RuleCode     string        `gorm:"size:60;not null"`
	DetailsJSON  string        `gorm:"type:text"`
}

func (AuditOutput) TableName() string { return "audit_outputs" }

// NextActionOutput is the per-client, per-run eligibility decision. One
// row per (RunID, CustomerCode).
type NextActionOutput struct {
	ID           int64  `gorm:"primaryKey"`
	RunID        string `gorm:"index:idx_next_action_run_customer,unique,priority:1;size:64;not null"`
	TenantID     int64  `gorm:"index;not null"`
	CustomerCode string `gorm:"index:idx_next_action_run_customer,unique,priority:2;size:100;not null"`
	Eligible     bool
	Reason       string `gorm:"size:60"`
	Scenario     string `gorm:"size:20"`
	AuditScore   int
}

func (NextActionOutput) TableName() string { return "next_action_outputs" }

// RunSummary aggregates one run's outcome, including the gate_export
// flag that downstream export/dispatch collaborators must honor.
type RunSummary struct {
	ID          int64  `gorm:"primaryKey"`
	RunID       string `gorm:"uniqueIndex;size:64;not null"`
	TenantID    int64  `gorm:"index;not null"`
	SummaryJSON string `gorm:"type:text;not null"` // JSON, see Summary
}

func (RunSummary) TableName() string { return "run_summaries" }

// AuditLog is the distinct, simpler data-quality audit surface: it
// shares the scoring formula with AuditOutput but never the rule set or
// the storage table.
type AuditLog struct {
	ID           int64         `gorm:"primaryKey"`
	TenantID     int64         `gorm:"index;not null"`
	CustomerCode string        `gorm:"size:100"`
	Severity     AuditSeverity `gorm:"size:10;not null"`
	RuleCode     string        `gorm:"size:60;not null"`
	DetailsJSON  string        `gorm:"type:text"`
	CreatedAt    time.Time
}

func (AuditLog) TableName() string { return "audit_logs" }
