package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("id = $1", int64(tierID)).
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
	err := s.pg.NewSelect(&models).
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
	_, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("id = $1", nodeID.String()).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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
	_, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("id = $1", inspectorID.String()).
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
	err := s.pg.NewSelect(&models).
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
	res, err := s.pg.NewDelete((*inspectorModel)(nil)).
		Where("id = $1", inspectorID.String()).
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
	res, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("app_id = $1", app.String()).
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	_, err := s.pg.NewDelete((*subscriptionModel)(nil)).
		Where("app_id = $1", app.String()).
		Exec(ctx)
	return err
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Suspended != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("suspended = $%d", argIdx), *opts.Suspended)
	}
	if !opts.AfterApp.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("app_id > $%d", argIdx), opts.AfterApp.String())
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
	_, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(&models).
		Where("app_id = $1", app.String()).
		Where("node_id = $2", nodeID.String()).
		Where("day = $3", int32(day)).
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
	_, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(&models).
		Where("app_id = $1", app.String()).
		Where("day >= $2", int32(w.From)).
		Where("day <= $3", int32(w.To)).
		OrderExpr("day ASC, node_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromMergedModels(models)
}

func (s *Store) ListMergedByNode(ctx context.Context, nodeID id.NodeID, w metric.Window) ([]*metric.Merged, error) {
	var models []mergedModel
	err := s.pg.NewSelect(&models).
		Where("node_id = $1", nodeID.String()).
		Where("day >= $2", int32(w.From)).
		Where("day <= $3", int32(w.To)).
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

// evictReports deletes up to limit report rows older than cutoff. Postgres
// DELETE has no LIMIT clause, so the bound goes through a key subquery.
func (s *Store) evictReports(ctx context.Context, cutoff metric.Day, limit int) (int64, error) {
	q := s.pg.NewDelete((*reportModel)(nil))
	if limit > 0 {
		q = q.Where("report_key IN (SELECT report_key FROM tally_reports WHERE day < $1 LIMIT $2)", int32(cutoff), limit)
	} else {
		q = q.Where("day < $1", int32(cutoff))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) evictMerged(ctx context.Context, cutoff metric.Day, limit int) (int64, error) {
	q := s.pg.NewDelete((*mergedModel)(nil))
	if limit > 0 {
		q = q.Where("merged_key IN (SELECT merged_key FROM tally_merged WHERE day < $1 LIMIT $2)", int32(cutoff), limit)
	} else {
		q = q.Where("day < $1", int32(cutoff))
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
	err := s.pg.NewSelect(m).
		Where("id = $1", singletonRow).
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
	_, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("node_id = $1", nodeID.String()).
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
	_, err := s.pg.NewInsert(m).
		OnConflict("(node_id) DO UPDATE").
		Set("attributed = EXCLUDED.attributed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) ListShares(ctx context.Context) ([]*revenue.Share, error) {
	var models []shareModel
	err := s.pg.NewSelect(&models).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) LastTransition(ctx context.Context, nodeID id.NodeID) (*availability.Transition, error) {
	m := new(transitionModel)
	err := s.pg.NewSelect(m).
		Where("node_id = $1", nodeID.String()).
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
	err := s.pg.NewSelect(m).
		Where("node_id = $1", nodeID.String()).
		Where("at < $2", at).
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
	err := s.pg.NewSelect(&models).
		Where("node_id = $1", nodeID.String()).
		Where("at >= $2", from).
		Where("at <= $3", to).
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
	err := s.pg.NewSelect(m).
		Where("id = $1", singletonRow).
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
	_, err := s.pg.NewInsert(m).
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
