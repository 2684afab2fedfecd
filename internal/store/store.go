// Package store abstracts the relational backing store behind a narrow
// interface passed explicitly to each operation, with no module-level
// globals. postgres.go is the only implementation; tests use
// storetest.Fake.
package store

import (
	"context"
	"time"

	"github.com/iaros/vintage-crm-core/internal/model"
)

// ClientFilter narrows GetClients to a subset of clients, selected by
// client code, without forcing callers to build raw SQL.
type ClientFilter struct {
	ClientCodes []string // empty = all
}

// Store is every read/write the core needs from the relational backing
// store. All methods take tenantID explicitly; no method may return rows
// for a different tenant.
type Store interface {
	// Tenants
	GetTenant(ctx context.Context, tenantID int64) (model.Tenant, error)
	UpsertTenant(ctx context.Context, t model.Tenant) (model.Tenant, error)

	// Clients
	UpsertClients(ctx context.Context, tenantID int64, clients []model.Client) (inserted, updated int, err error)
	GetClients(ctx context.Context, tenantID int64, filter ClientFilter) ([]model.Client, error)
	GetClientByCode(ctx context.Context, tenantID int64, clientCode string) (model.Client, error)
	UpdateClientDerived(ctx context.Context, tenantID int64, c model.Client) error

	// Products
	UpsertProducts(ctx context.Context, tenantID int64, products []model.Product) (inserted, updated int, err error)
	GetProducts(ctx context.Context, tenantID int64) ([]model.Product, error)
	GetProductByKey(ctx context.Context, tenantID int64, productKey string) (model.Product, error)
	UpdateProductPopularity(ctx context.Context, tenantID int64, productKey string, score float64) error

	// Sales
	InsertSales(ctx context.Context, tenantID int64, sales []model.Sale) (inserted int, err error)
	GetSales(ctx context.Context, tenantID int64) ([]model.Sale, error)
	GetSalesByClient(ctx context.Context, tenantID int64, clientCode string) ([]model.Sale, error)

	// Product aliases
	GetAliases(ctx context.Context, tenantID int64) ([]model.ProductAlias, error)
	UpsertAlias(ctx context.Context, tenantID int64, alias model.ProductAlias) error

	// Contact events
	InsertContactEvent(ctx context.Context, tenantID int64, ev model.ContactEvent) error
	GetRecentContactEvents(ctx context.Context, tenantID, clientID int64, since time.Time) ([]model.ContactEvent, error)

	// Recommendation runs
	CreateRun(ctx context.Context, run model.RecoRun) (model.RecoRun, error)
	SetRunStatus(ctx context.Context, tenantID int64, runID string, status model.RunStatus, finishedAt *time.Time) error
	GetRun(ctx context.Context, tenantID int64, runID string) (model.RecoRun, error)
	DeleteRunOutputs(ctx context.Context, tenantID int64, runID string) error

	AppendRecoOutputs(ctx context.Context, outputs []model.RecoOutput) error
	AppendAuditOutputs(ctx context.Context, outputs []model.AuditOutput) error
	AppendNextActionOutputs(ctx context.Context, outputs []model.NextActionOutput) error
	GetNextActionOutputs(ctx context.Context, tenantID int64, runID string) ([]model.NextActionOutput, error)
	PutRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, tenantID int64, runID string) (model.RunSummary, error)

	// Data-quality audit (distinct storage from AuditOutput)
	AppendAuditLogs(ctx context.Context, logs []model.AuditLog) error

	// WithinTx runs fn inside a single logical transaction. The
	// recommendation run lifecycle in internal/reco does not call it.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	Close() error
}
