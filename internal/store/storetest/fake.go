// Package storetest provides an in-memory store.Store for unit tests,
// avoiding a live Postgres dependency in package tests by testing
// against the interface rather than the database driver.
package storetest

import (
	"context"
	"sort"
	"time"

	"github.com/iaros/vintage-crm-core/internal/corerr"
	"github.com/iaros/vintage-crm-core/internal/model"
	"github.com/iaros/vintage-crm-core/internal/store"
)

// Fake is a single-process, mutex-free (single-goroutine test use only)
// implementation of store.Store.
type Fake struct {
	tenants      map[int64]model.Tenant
	clients      map[int64]map[string]model.Client
	products     map[int64]map[string]model.Product
	sales        map[int64]map[string]model.Sale
	aliases      map[int64]map[string]model.ProductAlias
	contacts     map[int64][]model.ContactEvent
	runs         map[int64]map[string]model.RecoRun
	recoOutputs  []model.RecoOutput
	auditOutputs []model.AuditOutput
	nextActions  map[string]model.NextActionOutput
	summaries    map[string]model.RunSummary
	auditLogs    []model.AuditLog
	nextID       int64
}

// New returns an empty Fake store ready for use.
func New() *Fake {
	return &Fake{
		tenants:     map[int64]model.Tenant{},
		clients:     map[int64]map[string]model.Client{},
		products:    map[int64]map[string]model.Product{},
		sales:       map[int64]map[string]model.Sale{},
		aliases:     map[int64]map[string]model.ProductAlias{},
		contacts:    map[int64][]model.ContactEvent{},
		runs:        map[int64]map[string]model.RecoRun{},
		nextActions: map[string]model.NextActionOutput{},
		summaries:   map[string]model.RunSummary{},
	}
}

func (f *Fake) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *Fake) GetTenant(_ context.Context, tenantID int64) (model.Tenant, error) {
	t, ok := f.tenants[tenantID]
	if !ok {
		return t, corerr.New(corerr.NotFound, "storetest.GetTenant", "not found")
	}
	return t, nil
}

func (f *Fake) UpsertTenant(_ context.Context, t model.Tenant) (model.Tenant, error) {
	if t.ID == 0 {
		t.ID = f.id()
	}
	f.tenants[t.ID] = t
	return t, nil
}

func (f *Fake) UpsertClients(_ context.Context, tenantID int64, clients []model.Client) (int, int, error) {
	bucket, ok := f.clients[tenantID]
	if !ok {
		bucket = map[string]model.Client{}
		f.clients[tenantID] = bucket
	}
	inserted, updated := 0, 0
	for _, c := range clients {
		c.TenantID = tenantID
		if existing, ok := bucket[c.ClientCode]; ok {
			c.ID = existing.ID
			updated++
		} else {
			c.ID = f.id()
			inserted++
		}
		bucket[c.ClientCode] = c
	}
	return inserted, updated, nil
}

func (f *Fake) GetClients(_ context.Context, tenantID int64, filter store.ClientFilter) ([]model.Client, error) {
	bucket := f.clients[tenantID]
	wanted := map[string]bool{}
	for _, code := range filter.ClientCodes {
		wanted[code] = true
	}
	var out []model.Client
	for code, c := range bucket {
		if len(wanted) > 0 && !wanted[code] {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientCode < out[j].ClientCode })
	return out, nil
}

func (f *Fake) GetClientByCode(_ context.Context, tenantID int64, clientCode string) (model.Client, error) {
	c, ok := f.clients[tenantID][clientCode]
	if !ok {
		return c, corerr.New(corerr.NotFound, "storetest.GetClientByCode", "not found")
	}
	return c, nil
}

func (f *Fake) UpdateClientDerived(_ context.Context, tenantID int64, c model.Client) error {
	bucket := f.clients[tenantID]
	existing, ok := bucket[c.ClientCode]
	if !ok {
		return corerr.New(corerr.NotFound, "storetest.UpdateClientDerived", "not found")
	}
	existing.Recency = c.Recency
	existing.Frequency = c.Frequency
	existing.Monetary = c.Monetary
	existing.RFMScore = c.RFMScore
	existing.RFMSegment = c.RFMSegment
	existing.PreferredFamilies = c.PreferredFamilies
	existing.BudgetBand = c.BudgetBand
	existing.AromaProfile = c.AromaProfile
	existing.Cluster = c.Cluster
	bucket[c.ClientCode] = existing
	return nil
}

func (f *Fake) UpsertProducts(_ context.Context, tenantID int64, products []model.Product) (int, int, error) {
	bucket, ok := f.products[tenantID]
	if !ok {
		bucket = map[string]model.Product{}
		f.products[tenantID] = bucket
	}
	inserted, updated := 0, 0
	for _, p := range products {
		p.TenantID = tenantID
		if existing, ok := bucket[p.ProductKey]; ok {
			p.ID = existing.ID
			p.GlobalPopularityScore = existing.GlobalPopularityScore
			updated++
		} else {
			p.ID = f.id()
			inserted++
		}
		bucket[p.ProductKey] = p
	}
	return inserted, updated, nil
}

func (f *Fake) GetProducts(_ context.Context, tenantID int64) ([]model.Product, error) {
	bucket := f.products[tenantID]
	out := make([]model.Product, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductKey < out[j].ProductKey })
	return out, nil
}

func (f *Fake) GetProductByKey(_ context.Context, tenantID int64, productKey string) (model.Product, error) {
	p, ok := f.products[tenantID][productKey]
	if !ok {
		return p, corerr.New(corerr.NotFound, "storetest.GetProductByKey", "not found")
	}
	return p, nil
}

func (f *Fake) UpdateProductPopularity(_ context.Context, tenantID int64, productKey string, score float64) error {
	bucket := f.products[tenantID]
	p, ok := bucket[productKey]
	if !ok {
		return corerr.New(corerr.NotFound, "storetest.UpdateProductPopularity", "not found")
	}
	p.GlobalPopularityScore = score
	bucket[productKey] = p
	return nil
}

func salesKey(documentID, productKey, clientCode string) string {
	return documentID + "|" + productKey + "|" + clientCode
}

func (f *Fake) InsertSales(_ context.Context, tenantID int64, sales []model.Sale) (int, error) {
	bucket, ok := f.sales[tenantID]
	if !ok {
		bucket = map[string]model.Sale{}
		f.sales[tenantID] = bucket
	}
	for _, s := range sales {
		s.TenantID = tenantID
		key := salesKey(s.DocumentID, s.ProductKey, s.ClientCode)
		if existing, ok := bucket[key]; ok {
			s.ID = existing.ID
		} else {
			s.ID = f.id()
		}
		bucket[key] = s
	}
	return len(sales), nil
}

func (f *Fake) GetSales(_ context.Context, tenantID int64) ([]model.Sale, error) {
	bucket := f.sales[tenantID]
	out := make([]model.Sale, 0, len(bucket))
	for _, s := range bucket {
		out = append(out, s)
	}
	return out, nil
}

func (f *Fake) GetSalesByClient(_ context.Context, tenantID int64, clientCode string) ([]model.Sale, error) {
	var out []model.Sale
	for _, s := range f.sales[tenantID] {
		if s.ClientCode == clientCode {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *Fake) GetAliases(_ context.Context, tenantID int64) ([]model.ProductAlias, error) {
	bucket := f.aliases[tenantID]
	out := make([]model.ProductAlias, 0, len(bucket))
	for _, a := range bucket {
		out = append(out, a)
	}
	return out, nil
}

func (f *Fake) UpsertAlias(_ context.Context, tenantID int64, alias model.ProductAlias) error {
	bucket, ok := f.aliases[tenantID]
	if !ok {
		bucket = map[string]model.ProductAlias{}
		f.aliases[tenantID] = bucket
	}
	alias.TenantID = tenantID
	now := time.Now().UTC()
	if existing, ok := bucket[alias.LabelNorm]; ok {
		alias.ID = existing.ID
		alias.CreatedAt = existing.CreatedAt
	} else {
		alias.ID = f.id()
		alias.CreatedAt = now
	}
	alias.UpdatedAt = now
	bucket[alias.LabelNorm] = alias
	return nil
}

func (f *Fake) InsertContactEvent(_ context.Context, tenantID int64, ev model.ContactEvent) error {
	ev.TenantID = tenantID
	ev.ID = f.id()
	f.contacts[tenantID] = append(f.contacts[tenantID], ev)
	return nil
}

func (f *Fake) GetRecentContactEvents(_ context.Context, tenantID, clientID int64, since time.Time) ([]model.ContactEvent, error) {
	var out []model.ContactEvent
	for _, ev := range f.contacts[tenantID] {
		if ev.ClientID == clientID && !ev.ContactDate.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *Fake) CreateRun(_ context.Context, run model.RecoRun) (model.RecoRun, error) {
	bucket, ok := f.runs[run.TenantID]
	if !ok {
		bucket = map[string]model.RecoRun{}
		f.runs[run.TenantID] = bucket
	}
	run.ID = f.id()
	bucket[run.RunID] = run
	return run, nil
}

func (f *Fake) SetRunStatus(_ context.Context, tenantID int64, runID string, status model.RunStatus, finishedAt *time.Time) error {
	bucket := f.runs[tenantID]
	run, ok := bucket[runID]
	if !ok {
		return corerr.New(corerr.NotFound, "storetest.SetRunStatus", "not found")
	}
	run.Status = status
	run.FinishedAt = finishedAt
	bucket[runID] = run
	return nil
}

func (f *Fake) GetRun(_ context.Context, tenantID int64, runID string) (model.RecoRun, error) {
	run, ok := f.runs[tenantID][runID]
	if !ok {
		return run, corerr.New(corerr.NotFound, "storetest.GetRun", "not found")
	}
	return run, nil
}

func (f *Fake) DeleteRunOutputs(_ context.Context, tenantID int64, runID string) error {
	var reco []model.RecoOutput
	for _, o := range f.recoOutputs {
		if !(o.TenantID == tenantID && o.RunID == runID) {
			reco = append(reco, o)
		}
	}
	f.recoOutputs = reco

	var audit []model.AuditOutput
	for _, o := range f.auditOutputs {
		if !(o.TenantID == tenantID && o.RunID == runID) {
			audit = append(audit, o)
		}
	}
	f.auditOutputs = audit

	for key, na := range f.nextActions {
		if na.TenantID == tenantID && na.RunID == runID {
			delete(f.nextActions, key)
		}
	}
	return nil
}

func (f *Fake) AppendRecoOutputs(_ context.Context, outputs []model.RecoOutput) error {
	for _, o := range outputs {
		o.ID = f.id()
		f.recoOutputs = append(f.recoOutputs, o)
	}
	return nil
}

// RecoOutputsForRun is a test helper exposing recorded RecoOutput rows.
func (f *Fake) RecoOutputsForRun(runID string) []model.RecoOutput {
	var out []model.RecoOutput
	for _, o := range f.recoOutputs {
		if o.RunID == runID {
			out = append(out, o)
		}
	}
	return out
}

func (f *Fake) AppendAuditOutputs(_ context.Context, outputs []model.AuditOutput) error {
	for _, o := range outputs {
		o.ID = f.id()
		f.auditOutputs = append(f.auditOutputs, o)
	}
	return nil
}

// AuditOutputsForRun is a test helper exposing recorded AuditOutput rows.
func (f *Fake) AuditOutputsForRun(runID string) []model.AuditOutput {
	var out []model.AuditOutput
	for _, o := range f.auditOutputs {
		if o.RunID == runID {
			out = append(out, o)
		}
	}
	return out
}

func (f *Fake) AppendNextActionOutputs(_ context.Context, outputs []model.NextActionOutput) error {
	for _, o := range outputs {
		key := o.RunID + "|" + o.CustomerCode
		if existing, ok := f.nextActions[key]; ok {
			o.ID = existing.ID
		} else {
			o.ID = f.id()
		}
		f.nextActions[key] = o
	}
	return nil
}

// NextActionFor is a test helper exposing one recorded NextActionOutput.
func (f *Fake) NextActionFor(runID, customerCode string) (model.NextActionOutput, bool) {
	na, ok := f.nextActions[runID+"|"+customerCode]
	return na, ok
}

func (f *Fake) GetNextActionOutputs(_ context.Context, tenantID int64, runID string) ([]model.NextActionOutput, error) {
	var out []model.NextActionOutput
	for _, na := range f.nextActions {
		if na.RunID == runID && na.TenantID == tenantID {
			out = append(out, na)
		}
	}
	return out, nil
}

func (f *Fake) PutRunSummary(_ context.Context, summary model.RunSummary) error {
	if existing, ok := f.summaries[summary.RunID]; ok {
		summary.ID = existing.ID
	} else {
		summary.ID = f.id()
	}
	f.summaries[summary.RunID] = summary
	return nil
}

func (f *Fake) GetRunSummary(_ context.Context, tenantID int64, runID string) (model.RunSummary, error) {
	s, ok := f.summaries[runID]
	if !ok || s.TenantID != tenantID {
		return model.RunSummary{}, corerr.New(corerr.NotFound, "storetest.GetRunSummary", "not found")
	}
	return s, nil
}

func (f *Fake) AppendAuditLogs(_ context.Context, logs []model.AuditLog) error {
	now := time.Now().UTC()
	for _, l := range logs {
		l.ID = f.id()
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		f.auditLogs = append(f.auditLogs, l)
	}
	return nil
}

// AuditLogsForTenant is a test helper exposing recorded AuditLog rows.
func (f *Fake) AuditLogsForTenant(tenantID int64) []model.AuditLog {
	var out []model.AuditLog
	for _, l := range f.auditLogs {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out
}

// WithinTx runs fn against the same Fake: the in-memory store has no
// partial-write semantics to roll back, so this only provides interface
// parity for callers written against store.Store.
func (f *Fake) WithinTx(_ context.Context, fn func(tx store.Store) error) error {
	return fn(f)
}

func (f *Fake) Close() error { return nil }

var _ store.Store = (*Fake)(nil)
