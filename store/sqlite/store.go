package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/availability"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/inspector"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/node"
	"github.com/xraph/tally/revenue"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/types"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Tier Store ====================

func (s *Store) PutTier(ctx context.Context, t *tier.Tier) error {
	m := toTierModel(t)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("storage_bytes = EXCLUDED.storage_bytes").
		Set("transfer_bytes = EXCLUDED.transfer_bytes").
		Set("price = EXCLUDED.price").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetTier(ctx context.Context, tierID uint32) (*tier.Tier, error) {
	m := new(tierModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(tierID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrUnknownTier
		}
		return nil, err
	}
	return fromTierModel(m), nil
}

func (s *Store) ListTiers(ctx context.Context) ([]*tier.Tier, error) {
	var models []tierModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*tier.Tier, len(models))
	for i := range models {
		result[i] = fromTierModel(&models[i])
	}
	return result, nil
}

// ==================== Node Store ====================

func (s *Store) PutNode(ctx context.Context, n *node.Node) error {
	m := toNodeModel(n)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("p2p_addr = EXCLUDED.p2p_addr").
		Set("url = EXCLUDED.url").
		Set("status = EXCLUDED.status").
		Set("last_seen = EXCLUDED.last_seen").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetNode(ctx context.Context, nodeID id.NodeID) (*node.Node, error) {
	m := new(nodeModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", nodeID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrUnknownNode
		}
		return nil, err
	}
	return fromNodeModel(m)
}

func (s *Store) ListNodes(ctx context.Context, opts node.ListOpts) ([]*node.Node, error) {
	var models []nodeModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*node.Node, len(models))
	for i := range models {
		n, err := fromNodeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = n
	}
	return result, nil
}

// ==================== Inspector Store ====================

func (s *Store) PutInspector(ctx context.Context, ins *inspector.Inspector) error {
	m := toInspectorModel(ins)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("current_day = EXCLUDED.current_day").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetInspector(ctx context.Context, inspectorID id.InspectorID) (*inspector.Inspector, error) {
	m := new(inspectorModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", inspectorID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrUnknownInspector
		}
		return nil, err
	}
	return fromInspectorModel(m)
}

func (s *Store) ListInspectors(ctx context.Context) ([]*inspector.Inspector, error) {
	var models []inspectorModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*inspector.Inspector, len(models))
	for i := range models {
		ins, err := fromInspectorModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ins
	}
	return result, nil
}

func (s *Store) DeleteInspector(ctx context.Context, inspectorID id.InspectorID) error {
	res, err := s.sdb.NewDelete((*inspectorModel)(nil)).
		Where("id = ?", inspectorID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrUnknownInspector
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(app_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, app id.AppID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("app_id = ?", app.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrNoSubscription
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrNoSubscription
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, app id.AppID) error {
	_, err := s.sdb.NewDelete((*subscriptionModel)(nil)).
		Where("app_id = ?", app.String()).
		Exec(ctx)
	return err
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models)

	if opts.Suspended != nil {
		q = q.Where("suspended = ?", *opts.Suspended)
	}
	if !opts.AfterApp.IsNil() {
		q = q.Where("app_id > ?", opts.AfterApp.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("app_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Metric Store ====================

func (s *Store) PutReport(ctx context.Context, r *metric.Report) error {
	m := toReportModel(r)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(report_key) DO UPDATE").
		Set("stored_bytes = EXCLUDED.stored_bytes").
		Set("read_bytes = EXCLUDED.read_bytes").
		Set("written_bytes = EXCLUDED.written_bytes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ListReports(ctx context.Context, app id.AppID, nodeID id.NodeID, day metric.Day) ([]*metric.Report, error) {
	var models []reportModel
	err := s.sdb.NewSelect(&models).
		Where("app_id = ?", app.String()).
		Where("node_id = ?", nodeID.String()).
		Where("day = ?", int32(day)).
		OrderExpr("inspector_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*metric.Report, len(models))
	for i := range models {
		r, err := fromReportModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) PutMerged(ctx context.Context, mg *metric.Merged) error {
	m := toMergedModel(mg)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(merged_key) DO UPDATE").
		Set("stored_bytes = EXCLUDED.stored_bytes").
		Set("read_bytes = EXCLUDED.read_bytes").
		Set("written_bytes = EXCLUDED.written_bytes").
		Set("reporters = EXCLUDED.reporters").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ListMergedByApp(ctx context.Context, app id.AppID, w metric.Window) ([]*metric.Merged, error) {
	var models []mergedModel
	err := s.sdb.NewSelect(&models).
		Where("app_id = ?", app.String()).
		Where("day >= ?", int32(w.From)).
		Where("day <= ?", int32(w.To)).
		OrderExpr("day ASC, node_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromMergedModels(models)
}

func (s *Store) ListMergedByNode(ctx context.Context, nodeID id.NodeID, w metric.Window) ([]*metric.Merged, error) {
	var models []mergedModel
	err := s.sdb.NewSelect(&models).
		Where("node_id = ?", nodeID.String()).
		Where("day >= ?", int32(w.From)).
		Where("day <= ?", int32(w.To)).
		OrderExpr("day ASC, app_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromMergedModels(models)
}

// EvictMetricsBefore deletes raw reports first, then merged rows, so a
// bounded pass always reclaims the larger table before the derived one.
func (s *Store) EvictMetricsBefore(ctx context.Context, cutoff metric.Day, limit int) (int64, error) {
	reports, err := s.evictReports(ctx, cutoff, limit)
	if err != nil {
		return reports, err
	}
	if limit > 0 && reports >= int64(limit) {
		return reports, nil
	}

	remaining := 0
	if limit > 0 {
		remaining = limit - int(reports)
	}
	merged, err := s.evictMerged(ctx, cutoff, remaining)
	return reports + merged, err
}

// evictReports deletes up to limit report rows older than cutoff. DELETE
// with LIMIT is an optional SQLite build flag, so the bound goes through
// a key subquery instead.
func (s *Store) evictReports(ctx context.Context, cutoff metric.Day, limit int) (int64, error) {
	q := s.sdb.NewDelete((*reportModel)(nil))
	if limit > 0 {
		q = q.Where("report_key IN (SELECT report_key FROM tally_reports WHERE day < ? LIMIT ?)", int32(cutoff), limit)
	} else {
		q = q.Where("day < ?", int32(cutoff))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) evictMerged(ctx context.Context, cutoff metric.Day, limit int) (int64, error) {
	q := s.sdb.NewDelete((*mergedModel)(nil))
	if limit > 0 {
		q = q.Where("merged_key IN (SELECT merged_key FROM tally_merged WHERE day < ? LIMIT ?)", int32(cutoff), limit)
	} else {
		q = q.Where("day < ?", int32(cutoff))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Revenue Store ====================

func (s *Store) GetPool(ctx context.Context) (*revenue.Pool, error) {
	m := new(poolModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", singletonRow).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrNoRevenuePool
		}
		return nil, err
	}
	return fromPoolModel(m), nil
}

func (s *Store) PutPool(ctx context.Context, p *revenue.Pool) error {
	m := toPoolModel(p)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("withdrawn = EXCLUDED.withdrawn").
		Set("unattributed = EXCLUDED.unattributed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetShare(ctx context.Context, nodeID id.NodeID) (*revenue.Share, error) {
	m := new(shareModel)
	err := s.sdb.NewSelect(m).
		Where("node_id = ?", nodeID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrNotFound
		}
		return nil, err
	}
	return fromShareModel(m)
}

func (s *Store) PutShare(ctx context.Context, sh *revenue.Share) error {
	m := toShareModel(sh)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(node_id) DO UPDATE").
		Set("attributed = EXCLUDED.attributed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ListShares(ctx context.Context) ([]*revenue.Share, error) {
	var models []shareModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("node_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*revenue.Share, len(models))
	for i := range models {
		sh, err := fromShareModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sh
	}
	return result, nil
}

// ==================== Availability Store ====================

func (s *Store) AppendTransition(ctx context.Context, tr *availability.Transition) error {
	m := toTransitionModel(tr)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) LastTransition(ctx context.Context, nodeID id.NodeID) (*availability.Transition, error) {
	m := new(transitionModel)
	err := s.sdb.NewSelect(m).
		Where("node_id = ?", nodeID.String()).
		OrderExpr("at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrNotFound
		}
		return nil, err
	}
	return fromTransitionModel(m)
}

func (s *Store) LastTransitionBefore(ctx context.Context, nodeID id.NodeID, at time.Time) (*availability.Transition, error) {
	m := new(transitionModel)
	err := s.sdb.NewSelect(m).
		Where("node_id = ?", nodeID.String()).
		Where("at < ?", at).
		OrderExpr("at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrNotFound
		}
		return nil, err
	}
	return fromTransitionModel(m)
}

func (s *Store) ListTransitions(ctx context.Context, nodeID id.NodeID, from, to time.Time) ([]*availability.Transition, error) {
	var models []transitionModel
	err := s.sdb.NewSelect(&models).
		Where("node_id = ?", nodeID.String()).
		Where("at >= ?", from).
		Where("at <= ?", to).
		OrderExpr("at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*availability.Transition, len(models))
	for i := range models {
		tr, err := fromTransitionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = tr
	}
	return result, nil
}

// ==================== Settings Store ====================

func (s *Store) GetSettings(ctx context.Context) (*types.Settings, error) {
	m := new(settingsModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", singletonRow).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrNoSettings
		}
		return nil, err
	}
	return fromSettingsModel(m)
}

func (s *Store) PutSettings(ctx context.Context, st *types.Settings) error {
	m := toSettingsModel(st)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("operator_id = EXCLUDED.operator_id").
		Set("paused = EXCLUDED.paused").
		Set("first_report_at = EXCLUDED.first_report_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Helpers ====================

func fromMergedModels(models []mergedModel) ([]*metric.Merged, error) {
	result := make([]*metric.Merged, len(models))
	for i := range models {
		mg, err := fromMergedModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = mg
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
