package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colTiers         = "tally_tiers"
	colNodes         = "tally_nodes"
	colInspectors    = "tally_inspectors"
	colSubscriptions = "tally_subscriptions"
	colReports       = "tally_reports"
	colMerged        = "tally_merged"
	colPool          = "tally_revenue_pool"
	colShares        = "tally_shares"
	colTransitions   = "tally_transitions"
	colSettings      = "tally_settings"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"storage_bytes":  m.StorageBytes,
			"transfer_bytes": m.TransferBytes,
			"price":          m.Price,
			"created_at":     m.CreatedAt,
			"updated_at":     m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: put tier: %w", err)
	}
	return nil
}

func (s *Store) GetTier(ctx context.Context, tierID uint32) (*tier.Tier, error) {
	var m tierModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(tierID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrUnknownTier
		}
		return nil, fmt.Errorf("tally/mongo: get tier: %w", err)
	}
	return fromTierModel(&m), nil
}

func (s *Store) ListTiers(ctx context.Context) ([]*tier.Tier, error) {
	var models []tierModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list tiers: %w", err)
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
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"p2p_addr":   m.P2PAddr,
			"url":        m.URL,
			"status":     m.Status,
			"last_seen":  m.LastSeen,
			"created_at": m.CreatedAt,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: put node: %w", err)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, nodeID id.NodeID) (*node.Node, error) {
	var m nodeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": nodeID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrUnknownNode
		}
		return nil, fmt.Errorf("tally/mongo: get node: %w", err)
	}
	return fromNodeModel(&m)
}

func (s *Store) ListNodes(ctx context.Context, opts node.ListOpts) ([]*node.Node, error) {
	var models []nodeModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list nodes: %w", err)
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
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"name":        m.Name,
			"current_day": m.CurrentDay,
			"created_at":  m.CreatedAt,
			"updated_at":  m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: put inspector: %w", err)
	}
	return nil
}

func (s *Store) GetInspector(ctx context.Context, inspectorID id.InspectorID) (*inspector.Inspector, error) {
	var m inspectorModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": inspectorID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrUnknownInspector
		}
		return nil, fmt.Errorf("tally/mongo: get inspector: %w", err)
	}
	return fromInspectorModel(&m)
}

func (s *Store) ListInspectors(ctx context.Context) ([]*inspector.Inspector, error) {
	var models []inspectorModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list inspectors: %w", err)
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
	res, err := s.mdb.NewDelete((*inspectorModel)(nil)).
		Filter(bson.M{"_id": inspectorID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete inspector: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrUnknownInspector
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, app id.AppID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": app.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrNoSubscription
		}
		return nil, fmt.Errorf("tally/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.AppID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrNoSubscription
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, app id.AppID) error {
	_, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": app.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if opts.Suspended != nil {
		filter["suspended"] = *opts.Suspended
	}
	if !opts.AfterApp.IsNil() {
		filter["_id"] = bson.M{"$gt": opts.AfterApp.String()}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list subscriptions: %w", err)
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
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ReportKey}).
		SetUpdate(bson.M{"$set": bson.M{
			"inspector_id":  m.InspectorID,
			"app_id":        m.AppID,
			"node_id":       m.NodeID,
			"day":           m.Day,
			"stored_bytes":  m.StoredBytes,
			"read_bytes":    m.ReadBytes,
			"written_bytes": m.WrittenBytes,
			"created_at":    m.CreatedAt,
			"updated_at":    m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: put report: %w", err)
	}
	return nil
}

func (s *Store) ListReports(ctx context.Context, app id.AppID, nodeID id.NodeID, day metric.Day) ([]*metric.Report, error) {
	var models []reportModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"app_id":  app.String(),
			"node_id": nodeID.String(),
			"day":     int32(day),
		}).
		Sort(bson.D{{Key: "inspector_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list reports: %w", err)
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
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.MergedKey}).
		SetUpdate(bson.M{"$set": bson.M{
			"app_id":        m.AppID,
			"node_id":       m.NodeID,
			"day":           m.Day,
			"stored_bytes":  m.StoredBytes,
			"read_bytes":    m.ReadBytes,
			"written_bytes": m.WrittenBytes,
			"reporters":     m.Reporters,
			"created_at":    m.CreatedAt,
			"updated_at":    m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: put merged: %w", err)
	}
	return nil
}

func (s *Store) ListMergedByApp(ctx context.Context, app id.AppID, w metric.Window) ([]*metric.Merged, error) {
	var models []mergedModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"app_id": app.String(),
			"day":    bson.M{"$gte": int32(w.From), "$lte": int32(w.To)},
		}).
		Sort(bson.D{{Key: "day", Value: 1}, {Key: "node_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list merged by app: %w", err)
	}
	return fromMergedModels(models)
}

func (s *Store) ListMergedByNode(ctx context.Context, nodeID id.NodeID, w metric.Window) ([]*metric.Merged, error) {
	var models []mergedModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"node_id": nodeID.String(),
			"day":     bson.M{"$gte": int32(w.From), "$lte": int32(w.To)},
		}).
		Sort(bson.D{{Key: "day", Value: 1}, {Key: "app_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list merged by node: %w", err)
	}
	return fromMergedModels(models)
}

// EvictMetricsBefore deletes raw reports first, then merged rows, so a
// bounded pass always reclaims the larger collection before the derived one.
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

// evictReports deletes up to limit report documents older than cutoff.
// deleteMany has no limit option, so a bounded pass resolves keys first.
func (s *Store) evictReports(ctx context.Context, cutoff metric.Day, limit int) (int64, error) {
	filter := bson.M{"day": bson.M{"$lt": int32(cutoff)}}

	if limit > 0 {
		var models []reportModel
		err := s.mdb.NewFind(&models).
			Filter(filter).
			Limit(int64(limit)).
			Scan(ctx)
		if err != nil {
			return 0, fmt.Errorf("tally/mongo: evict reports find: %w", err)
		}
		if len(models) == 0 {
			return 0, nil
		}
		keys := make([]string, len(models))
		for i := range models {
			keys[i] = models[i].ReportKey
		}
		filter = bson.M{"_id": bson.M{"$in": keys}}
	}

	res, err := s.mdb.NewDelete((*reportModel)(nil)).
		Filter(filter).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("tally/mongo: evict reports: %w", err)
	}
	return res.DeletedCount(), nil
}

func (s *Store) evictMerged(ctx context.Context, cutoff metric.Day, limit int) (int64, error) {
	filter := bson.M{"day": bson.M{"$lt": int32(cutoff)}}

	if limit > 0 {
		var models []mergedModel
		err := s.mdb.NewFind(&models).
			Filter(filter).
			Limit(int64(limit)).
			Scan(ctx)
		if err != nil {
			return 0, fmt.Errorf("tally/mongo: evict merged find: %w", err)
		}
		if len(models) == 0 {
			return 0, nil
		}
		keys := make([]string, len(models))
		for i := range models {
			keys[i] = models[i].MergedKey
		}
		filter = bson.M{"_id": bson.M{"$in": keys}}
	}

	res, err := s.mdb.NewDelete((*mergedModel)(nil)).
		Filter(filter).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("tally/mongo: evict merged: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Revenue Store ====================

func (s *Store) GetPool(ctx context.Context) (*revenue.Pool, error) {
	var m poolModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": singletonRow}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrNoRevenuePool
		}
		return nil, fmt.Errorf("tally/mongo: get pool: %w", err)
	}
	return fromPoolModel(&m), nil
}

func (s *Store) PutPool(ctx context.Context, p *revenue.Pool) error {
	m := toPoolModel(p)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"balance":      m.Balance,
			"withdrawn":    m.Withdrawn,
			"unattributed": m.Unattributed,
			"created_at":   m.CreatedAt,
			"updated_at":   m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: put pool: %w", err)
	}
	return nil
}

func (s *Store) GetShare(ctx context.Context, nodeID id.NodeID) (*revenue.Share, error) {
	var m shareModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": nodeID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get share: %w", err)
	}
	return fromShareModel(&m)
}

func (s *Store) PutShare(ctx context.Context, sh *revenue.Share) error {
	m := toShareModel(sh)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.NodeID}).
		SetUpdate(bson.M{"$set": bson.M{
			"attributed": m.Attributed,
			"created_at": m.CreatedAt,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: put share: %w", err)
	}
	return nil
}

func (s *Store) ListShares(ctx context.Context) ([]*revenue.Share, error) {
	var models []shareModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list shares: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: append transition: %w", err)
	}
	return nil
}

func (s *Store) LastTransition(ctx context.Context, nodeID id.NodeID) (*availability.Transition, error) {
	var m transitionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"node_id": nodeID.String()}).
		Sort(bson.D{{Key: "at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrNotFound
		}
		return nil, fmt.Errorf("tally/mongo: last transition: %w", err)
	}
	return fromTransitionModel(&m)
}

func (s *Store) LastTransitionBefore(ctx context.Context, nodeID id.NodeID, at time.Time) (*availability.Transition, error) {
	var m transitionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"node_id": nodeID.String(),
			"at":      bson.M{"$lt": at},
		}).
		Sort(bson.D{{Key: "at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrNotFound
		}
		return nil, fmt.Errorf("tally/mongo: last transition before: %w", err)
	}
	return fromTransitionModel(&m)
}

func (s *Store) ListTransitions(ctx context.Context, nodeID id.NodeID, from, to time.Time) ([]*availability.Transition, error) {
	var models []transitionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"node_id": nodeID.String(),
			"at":      bson.M{"$gte": from, "$lte": to},
		}).
		Sort(bson.D{{Key: "at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list transitions: %w", err)
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
	var m settingsModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": singletonRow}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrNoSettings
		}
		return nil, fmt.Errorf("tally/mongo: get settings: %w", err)
	}
	return fromSettingsModel(&m)
}

func (s *Store) PutSettings(ctx context.Context, st *types.Settings) error {
	m := toSettingsModel(st)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"operator_id":     m.OperatorID,
			"paused":          m.Paused,
			"first_report_at": m.FirstReportAt,
			"created_at":      m.CreatedAt,
			"updated_at":      m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: put settings: %w", err)
	}
	return nil
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTiers:      {},
		colInspectors: {},
		colPool:       {},
		colShares:     {},
		colSettings:   {},
		colNodes: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "suspended", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colReports: {
			{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "node_id", Value: 1}, {Key: "day", Value: 1}}},
			{Keys: bson.D{{Key: "day", Value: 1}}},
		},
		colMerged: {
			{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "day", Value: 1}}},
			{Keys: bson.D{{Key: "node_id", Value: 1}, {Key: "day", Value: 1}}},
			{Keys: bson.D{{Key: "day", Value: 1}}},
		},
		colTransitions: {
			{
				Keys:    bson.D{{Key: "node_id", Value: 1}, {Key: "at", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
