package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/iaros/vintage-crm-core/internal/corerr"
	"github.com/iaros/vintage-crm-core/internal/model"
)

// pgStore is the Store implementation backed by gorm.io/gorm +
// gorm.io/driver/postgres, paired with golang-migrate for schema
// management.
type pgStore struct {
	db *gorm.DB
}

// New opens dsn, applies embedded migrations, and returns a ready Store.
func New(dsn string) (Store, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, corerr.NewStorageError("store.New.migrate", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, corerr.NewStorageError("store.New.open", err)
	}
	return &pgStore{db: db}, nil
}

func (s *pgStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return corerr.Wrap(corerr.StorageError, "store.Close", err)
	}
	return sqlDB.Close()
}

func (s *pgStore) GetTenant(ctx context.Context, tenantID int64) (model.Tenant, error) {
	var t model.Tenant
	if err := s.db.WithContext(ctx).First(&t, "id = ?", tenantID).Error; err != nil {
		return t, mapReadErr("store.GetTenant", err)
	}
	return t, nil
}

func (s *pgStore) UpsertTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"domain"}),
	}).Create(&t).Error
	if err != nil {
		return t, corerr.NewStorageError("store.UpsertTenant", err)
	}
	return t, nil
}

func (s *pgStore) UpsertClients(ctx context.Context, tenantID int64, clients []model.Client) (int, int, error) {
	if len(clients) == 0 {
		return 0, 0, nil
	}
	for i := range clients {
		clients[i].TenantID = tenantID
	}
	before := s.countClients(ctx, tenantID)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "client_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "email", "last_purchase_date", "total_spent", "total_orders",
			"average_order_value",
		}),
	}).Create(&clients).Error
	if err != nil {
		return 0, 0, corerr.NewStorageError("store.UpsertClients", err)
	}
	after := s.countClients(ctx, tenantID)
	inserted := after - before
	if inserted < 0 {
		inserted = 0
	}
	return inserted, len(clients) - inserted, nil
}

func (s *pgStore) countClients(ctx context.Context, tenantID int64) int {
	var n int64
	s.db.WithContext(ctx).Model(&model.Client{}).Where("tenant_id = ?", tenantID).Count(&n)
	return int(n)
}

func (s *pgStore) GetClients(ctx context.Context, tenantID int64, filter ClientFilter) ([]model.Client, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if len(filter.ClientCodes) > 0 {
		q = q.Where("client_code IN ?", filter.ClientCodes)
	}
	var clients []model.Client
	if err := q.Order("client_code").Find(&clients).Error; err != nil {
		return nil, corerr.NewStorageError("store.GetClients", err)
	}
	return clients, nil
}

func (s *pgStore) GetClientByCode(ctx context.Context, tenantID int64, clientCode string) (model.Client, error) {
	var c model.Client
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND client_code = ?", tenantID, clientCode).
		First(&c).Error
	if err != nil {
		return c, mapReadErr("store.GetClientByCode", err)
	}
	return c, nil
}

func (s *pgStore) UpdateClientDerived(ctx context.Context, tenantID int64, c model.Client) error {
	err := s.db.WithContext(ctx).
		Model(&model.Client{}).
		Where("tenant_id = ? AND client_code = ?", tenantID, c.ClientCode).
		Updates(map[string]any{
			"recency":            c.Recency,
			"frequency":          c.Frequency,
			"monetary":           c.Monetary,
			"rfm_score":          c.RFMScore,
			"rfm_segment":        c.RFMSegment,
			"preferred_families": c.PreferredFamilies,
			"budget_band":        c.BudgetBand,
			"aroma_profile":      c.AromaProfile,
			"cluster":            c.Cluster,
		}).Error
	if err != nil {
		return corerr.NewStorageError("store.UpdateClientDerived", err)
	}
	return nil
}

func (s *pgStore) UpsertProducts(ctx context.Context, tenantID int64, products []model.Product) (int, int, error) {
	if len(products) == 0 {
		return 0, 0, nil
	}
	for i := range products {
		products[i].TenantID = tenantID
	}
	var before int64
	s.db.WithContext(ctx).Model(&model.Product{}).Where("tenant_id = ?", tenantID).Count(&before)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "product_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "family_crm", "sub_family", "cepage", "sucrosite_niveau",
			"price_ttc", "margin", "premium_tier", "price_band", "aroma_axes",
			"season_tags", "is_active", "is_archived",
		}),
	}).Create(&products).Error
	if err != nil {
		return 0, 0, corerr.NewStorageError("store.UpsertProducts", err)
	}

	var after int64
	s.db.WithContext(ctx).Model(&model.Product{}).Where("tenant_id = ?", tenantID).Count(&after)
	inserted := int(after - before)
	if inserted < 0 {
		inserted = 0
	}
	return inserted, len(products) - inserted, nil
}

func (s *pgStore) GetProducts(ctx context.Context, tenantID int64) ([]model.Product, error) {
	var products []model.Product
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("product_key").Find(&products).Error; err != nil {
		return nil, corerr.NewStorageError("store.GetProducts", err)
	}
	return products, nil
}

func (s *pgStore) GetProductByKey(ctx context.Context, tenantID int64, productKey string) (model.Product, error) {
	var p model.Product
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND product_key = ?", tenantID, productKey).
		First(&p).Error
	if err != nil {
		return p, mapReadErr("store.GetProductByKey", err)
	}
	return p, nil
}

func (s *pgStore) UpdateProductPopularity(ctx context.Context, tenantID int64, productKey string, score float64) error {
	err := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("tenant_id = ? AND product_key = ?", tenantID, productKey).
		Update("global_popularity_score", score).Error
	if err != nil {
		return corerr.NewStorageError("store.UpdateProductPopularity", err)
	}
	return nil
}

func (s *pgStore) InsertSales(ctx context.Context, tenantID int64, sales []model.Sale) (int, error) {
	if len(sales) == 0 {
		return 0, nil
	}
	for i := range sales {
		sales[i].TenantID = tenantID
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "document_id"}, {Name: "product_key"}, {Name: "client_code"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "amount", "sale_date"}),
	}).Create(&sales).Error
	if err != nil {
		return 0, corerr.NewStorageError("store.InsertSales", err)
	}
	return len(sales), nil
}

func (s *pgStore) GetSales(ctx context.Context, tenantID int64) ([]model.Sale, error) {
	var sales []model.Sale
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&sales).Error; err != nil {
		return nil, corerr.NewStorageError("store.GetSales", err)
	}
	return sales, nil
}

func (s *pgStore) GetSalesByClient(ctx context.Context, tenantID int64, clientCode string) ([]model.Sale, error) {
	var sales []model.Sale
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND client_code = ?", tenantID, clientCode).
		Order("sale_date").Find(&sales).Error
	if err != nil {
		return nil, corerr.NewStorageError("store.GetSalesByClient", err)
	}
	return sales, nil
}

func (s *pgStore) GetAliases(ctx context.Context, tenantID int64) ([]model.ProductAlias, error) {
	var aliases []model.ProductAlias
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&aliases).Error; err != nil {
		return nil, corerr.NewStorageError("store.GetAliases", err)
	}
	return aliases, nil
}

func (s *pgStore) UpsertAlias(ctx context.Context, tenantID int64, alias model.ProductAlias) error {
	alias.TenantID = tenantID
	now := time.Now().UTC()
	alias.UpdatedAt = now
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = now
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "label_norm"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_key", "label_raw", "confidence", "source", "updated_at"}),
	}).Create(&alias).Error
	if err != nil {
		return corerr.NewStorageError("store.UpsertAlias", err)
	}
	return nil
}

func (s *pgStore) InsertContactEvent(ctx context.Context, tenantID int64, ev model.ContactEvent) error {
	ev.TenantID = tenantID
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return corerr.NewStorageError("store.InsertContactEvent", err)
	}
	return nil
}

func (s *pgStore) GetRecentContactEvents(ctx context.Context, tenantID, clientID int64, since time.Time) ([]model.ContactEvent, error) {
	var events []model.ContactEvent
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND client_id = ? AND contact_date >= ?", tenantID, clientID, since).
		Order("contact_date DESC").Find(&events).Error
	if err != nil {
		return nil, corerr.NewStorageError("store.GetRecentContactEvents", err)
	}
	return events, nil
}

func (s *pgStore) CreateRun(ctx context.Context, run model.RecoRun) (model.RecoRun, error) {
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return run, corerr.NewStorageError("store.CreateRun", err)
	}
	return run, nil
}

func (s *pgStore) SetRunStatus(ctx context.Context, tenantID int64, runID string, status model.RunStatus, finishedAt *time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&model.RecoRun{}).
		Where("tenant_id = ? AND run_id = ?", tenantID, runID).
		Updates(map[string]any{"status": status, "finished_at": finishedAt}).Error
	if err != nil {
		return corerr.NewStorageError("store.SetRunStatus", err)
	}
	return nil
}

func (s *pgStore) GetRun(ctx context.Context, tenantID int64, runID string) (model.RecoRun, error) {
	var run model.RecoRun
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND run_id = ?", tenantID, runID).
		First(&run).Error
	if err != nil {
		return run, mapReadErr("store.GetRun", err)
	}
	return run, nil
}

func (s *pgStore) DeleteRunOutputs(ctx context.Context, tenantID int64, runID string) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Where("tenant_id = ? AND run_id = ?", tenantID, runID).Delete(&model.RecoOutput{}).Error; err != nil {
		return corerr.NewStorageError("store.DeleteRunOutputs.reco", err)
	}
	if err := tx.Where("tenant_id = ? AND run_id = ?", tenantID, runID).Delete(&model.AuditOutput{}).Error; err != nil {
		return corerr.NewStorageError("store.DeleteRunOutputs.audit", err)
	}
	if err := tx.Where("tenant_id = ? AND run_id = ?", tenantID, runID).Delete(&model.NextActionOutput{}).Error; err != nil {
		return corerr.NewStorageError("store.DeleteRunOutputs.nextaction", err)
	}
	return nil
}

func (s *pgStore) AppendRecoOutputs(ctx context.Context, outputs []model.RecoOutput) error {
	if len(outputs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&outputs).Error; err != nil {
		return corerr.NewStorageError("store.AppendRecoOutputs", err)
	}
	return nil
}

func (s *pgStore) AppendAuditOutputs(ctx context.Context, outputs []model.AuditOutput) error {
	if len(outputs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&outputs).Error; err != nil {
		return corerr.NewStorageError("store.AppendAuditOutputs", err)
	}
	return nil
}

func (s *pgStore) AppendNextActionOutputs(ctx context.Context, outputs []model.NextActionOutput) error {
	if len(outputs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "customer_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"eligible", "reason", "scenario", "audit_score"}),
	}).Create(&outputs).Error
	if err != nil {
		return corerr.NewStorageError("store.AppendNextActionOutputs", err)
	}
	return nil
}

func (s *pgStore) GetNextActionOutputs(ctx context.Context, tenantID int64, runID string) ([]model.NextActionOutput, error) {
	var outputs []model.NextActionOutput
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND run_id = ?", tenantID, runID).
		Find(&outputs).Error
	if err != nil {
		return nil, corerr.NewStorageError("store.GetNextActionOutputs", err)
	}
	return outputs, nil
}

func (s *pgStore) PutRunSummary(ctx context.Context, summary model.RunSummary) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary_json"}),
	}).Create(&summary).Error
	if err != nil {
		return corerr.NewStorageError("store.PutRunSummary", err)
	}
	return nil
}

func (s *pgStore) GetRunSummary(ctx context.Context, tenantID int64, runID string) (model.RunSummary, error) {
	var rs model.RunSummary
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND run_id = ?", tenantID, runID).
		First(&rs).Error
	if err != nil {
		return rs, mapReadErr("store.GetRunSummary", err)
	}
	return rs, nil
}

func (s *pgStore) AppendAuditLogs(ctx context.Context, logs []model.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range logs {
		if logs[i].CreatedAt.IsZero() {
			logs[i].CreatedAt = now
		}
	}
	if err := s.db.WithContext(ctx).Create(&logs).Error; err != nil {
		return corerr.NewStorageError("store.AppendAuditLogs", err)
	}
	return nil
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&pgStore{db: gtx})
	})
}

func mapReadErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return corerr.New(corerr.NotFound, op, "record not found")
	}
	return corerr.NewStorageError(op, err)
}
