package postgres

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tally/availability"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/inspector"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/node"
	"github.com/xraph/tally/revenue"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/types"
)

// singletonRow is the fixed primary key of the one-row tables (pool, settings).
const singletonRow = 1

// ==================== Tier models ====================

type tierModel struct {
	grove.BaseModel `grove:"table:tally_tiers"`

	ID            int64     `grove:"id,pk"`
	StorageBytes  int64     `grove:"storage_bytes"`
	TransferBytes int64     `grove:"transfer_bytes"`
	Price         int64     `grove:"price"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toTierModel(t *tier.Tier) *tierModel {
	return &tierModel{
		ID:            int64(t.ID),
		StorageBytes:  int64(t.StorageBytes),
		TransferBytes: int64(t.TransferBytes),
		Price:         int64(t.Price),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func fromTierModel(m *tierModel) *tier.Tier {
	return &tier.Tier{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            uint32(m.ID),
		StorageBytes:  uint64(m.StorageBytes),
		TransferBytes: uint64(m.TransferBytes),
		Price:         types.Tokens(m.Price),
	}
}

// ==================== Node models ====================

type nodeModel struct {
	grove.BaseModel `grove:"table:tally_nodes"`

	ID        string     `grove:"id,pk"`
	P2PAddr   string     `grove:"p2p_addr"`
	URL       string     `grove:"url"`
	Status    string     `grove:"status"`
	LastSeen  *time.Time `grove:"last_seen"`
	CreatedAt time.Time  `grove:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at"`
}

func toNodeModel(n *node.Node) *nodeModel {
	return &nodeModel{
		ID:        n.ID.String(),
		P2PAddr:   n.P2PAddr,
		URL:       n.URL,
		Status:    string(n.Status),
		LastSeen:  timePtr(n.LastSeen),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func fromNodeModel(m *nodeModel) (*node.Node, error) {
	nodeID, err := id.ParseNodeID(m.ID)
	if err != nil {
		return nil, err
	}

	return &node.Node{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       nodeID,
		P2PAddr:  m.P2PAddr,
		URL:      m.URL,
		Status:   node.Status(m.Status),
		LastSeen: timeVal(m.LastSeen),
	}, nil
}

// ==================== Inspector models ====================

type inspectorModel struct {
	grove.BaseModel `grove:"table:tally_inspectors"`

	ID         string    `grove:"id,pk"`
	Name       string    `grove:"name"`
	CurrentDay int32     `grove:"current_day"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toInspectorModel(ins *inspector.Inspector) *inspectorModel {
	return &inspectorModel{
		ID:         ins.ID.String(),
		Name:       ins.Name,
		CurrentDay: int32(ins.CurrentDay),
		CreatedAt:  ins.CreatedAt,
		UpdatedAt:  ins.UpdatedAt,
	}
}

func fromInspectorModel(m *inspectorModel) (*inspector.Inspector, error) {
	inspectorID, err := id.ParseInspectorID(m.ID)
	if err != nil {
		return nil, err
	}

	return &inspector.Inspector{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         inspectorID,
		Name:       m.Name,
		CurrentDay: metric.Day(m.CurrentDay),
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:tally_subscriptions"`

	AppID         string     `grove:"app_id,pk"`
	TierID        int64      `grove:"tier_id"`
	PrevTierID    int64      `grove:"prev_tier_id"`
	TierChangedAt *time.Time `grove:"tier_changed_at"`
	Balance       int64      `grove:"balance"`
	Deposited     int64      `grove:"deposited"`
	Consumed      int64      `grove:"consumed"`
	PaidThrough   time.Time  `grove:"paid_through"`
	Suspended     bool       `grove:"suspended"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		AppID:         s.App.String(),
		TierID:        int64(s.TierID),
		PrevTierID:    int64(s.PrevTierID),
		TierChangedAt: timePtr(s.TierChangedAt),
		Balance:       int64(s.Balance),
		Deposited:     int64(s.Deposited),
		Consumed:      int64(s.Consumed),
		PaidThrough:   s.PaidThrough,
		Suspended:     s.Suspended,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	app, err := id.ParseAppID(m.AppID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		App:           app,
		TierID:        uint32(m.TierID),
		PrevTierID:    uint32(m.PrevTierID),
		TierChangedAt: timeVal(m.TierChangedAt),
		Balance:       types.Tokens(m.Balance),
		Deposited:     types.Tokens(m.Deposited),
		Consumed:      types.Tokens(m.Consumed),
		PaidThrough:   m.PaidThrough,
		Suspended:     m.Suspended,
	}, nil
}

// ==================== Metric models ====================

type reportModel struct {
	grove.BaseModel `grove:"table:tally_reports"`

	ReportKey    string    `grove:"report_key,pk"`
	InspectorID  string    `grove:"inspector_id"`
	AppID        string    `grove:"app_id"`
	NodeID       string    `grove:"node_id"`
	Day          int32     `grove:"day"`
	StoredBytes  int64     `grove:"stored_bytes"`
	ReadBytes    int64     `grove:"read_bytes"`
	WrittenBytes int64     `grove:"written_bytes"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func reportKey(inspectorID id.InspectorID, app id.AppID, nodeID id.NodeID, day metric.Day) string {
	return fmt.Sprintf("%s|%s|%s|%d", inspectorID, app, nodeID, day)
}

func toReportModel(r *metric.Report) *reportModel {
	return &reportModel{
		ReportKey:    reportKey(r.Inspector, r.App, r.Node, r.Day),
		InspectorID:  r.Inspector.String(),
		AppID:        r.App.String(),
		NodeID:       r.Node.String(),
		Day:          int32(r.Day),
		StoredBytes:  int64(r.Counters.StoredBytes),
		ReadBytes:    int64(r.Counters.ReadBytes),
		WrittenBytes: int64(r.Counters.WrittenBytes),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromReportModel(m *reportModel) (*metric.Report, error) {
	inspectorID, err := id.ParseInspectorID(m.InspectorID)
	if err != nil {
		return nil, err
	}
	app, err := id.ParseAppID(m.AppID)
	if err != nil {
		return nil, err
	}
	nodeID, err := id.ParseNodeID(m.NodeID)
	if err != nil {
		return nil, err
	}

	return &metric.Report{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Inspector: inspectorID,
		App:       app,
		Node:      nodeID,
		Day:       metric.Day(m.Day),
		Counters: metric.Counters{
			StoredBytes:  uint64(m.StoredBytes),
			ReadBytes:    uint64(m.ReadBytes),
			WrittenBytes: uint64(m.WrittenBytes),
		},
	}, nil
}

type mergedModel struct {
	grove.BaseModel `grove:"table:tally_merged"`

	MergedKey    string    `grove:"merged_key,pk"`
	AppID        string    `grove:"app_id"`
	NodeID       string    `grove:"node_id"`
	Day          int32     `grove:"day"`
	StoredBytes  int64     `grove:"stored_bytes"`
	ReadBytes    int64     `grove:"read_bytes"`
	WrittenBytes int64     `grove:"written_bytes"`
	Reporters    int       `grove:"reporters"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func mergedKey(app id.AppID, nodeID id.NodeID, day metric.Day) string {
	return fmt.Sprintf("%s|%s|%d", app, nodeID, day)
}

func toMergedModel(mg *metric.Merged) *mergedModel {
	return &mergedModel{
		MergedKey:    mergedKey(mg.App, mg.Node, mg.Day),
		AppID:        mg.App.String(),
		NodeID:       mg.Node.String(),
		Day:          int32(mg.Day),
		StoredBytes:  int64(mg.Counters.StoredBytes),
		ReadBytes:    int64(mg.Counters.ReadBytes),
		WrittenBytes: int64(mg.Counters.WrittenBytes),
		Reporters:    mg.Reporters,
		CreatedAt:    mg.CreatedAt,
		UpdatedAt:    mg.UpdatedAt,
	}
}

func fromMergedModel(m *mergedModel) (*metric.Merged, error) {
	app, err := id.ParseAppID(m.AppID)
	if err != nil {
		return nil, err
	}
	nodeID, err := id.ParseNodeID(m.NodeID)
	if err != nil {
		return nil, err
	}

	return &metric.Merged{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		App:  app,
		Node: nodeID,
		Day:  metric.Day(m.Day),
		Counters: metric.Counters{
			StoredBytes:  uint64(m.StoredBytes),
			ReadBytes:    uint64(m.ReadBytes),
			WrittenBytes: uint64(m.WrittenBytes),
		},
		Reporters: m.Reporters,
	}, nil
}

// ==================== Revenue models ====================

type poolModel struct {
	grove.BaseModel `grove:"table:tally_revenue_pool"`

	ID           int64     `grove:"id,pk"`
	Balance      int64     `grove:"balance"`
	Withdrawn    int64     `grove:"withdrawn"`
	Unattributed int64     `grove:"unattributed"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func toPoolModel(p *revenue.Pool) *poolModel {
	return &poolModel{
		ID:           singletonRow,
		Balance:      int64(p.Balance),
		Withdrawn:    int64(p.Withdrawn),
		Unattributed: int64(p.Unattributed),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func fromPoolModel(m *poolModel) *revenue.Pool {
	return &revenue.Pool{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Balance:      types.Tokens(m.Balance),
		Withdrawn:    types.Tokens(m.Withdrawn),
		Unattributed: types.Tokens(m.Unattributed),
	}
}

type shareModel struct {
	grove.BaseModel `grove:"table:tally_shares"`

	NodeID     string    `grove:"node_id,pk"`
	Attributed int64     `grove:"attributed"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toShareModel(sh *revenue.Share) *shareModel {
	return &shareModel{
		NodeID:     sh.Node.String(),
		Attributed: int64(sh.Attributed),
		CreatedAt:  sh.CreatedAt,
		UpdatedAt:  sh.UpdatedAt,
	}
}

func fromShareModel(m *shareModel) (*revenue.Share, error) {
	nodeID, err := id.ParseNodeID(m.NodeID)
	if err != nil {
		return nil, err
	}

	return &revenue.Share{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Node:       nodeID,
		Attributed: types.Tokens(m.Attributed),
	}, nil
}

// ==================== Availability models ====================

type transitionModel struct {
	grove.BaseModel `grove:"table:tally_transitions"`

	TransitionKey string    `grove:"transition_key,pk"`
	NodeID        string    `grove:"node_id"`
	State         string    `grove:"state"`
	At            time.Time `grove:"at"`
	CreatedAt     time.Time `grove:"created_at"`
}

func transitionKey(nodeID id.NodeID, at time.Time) string {
	return fmt.Sprintf("%s|%d", nodeID, at.UnixNano())
}

func toTransitionModel(tr *availability.Transition) *transitionModel {
	return &transitionModel{
		TransitionKey: transitionKey(tr.Node, tr.At),
		NodeID:        tr.Node.String(),
		State:         string(tr.State),
		At:            tr.At,
		CreatedAt:     tr.CreatedAt,
	}
}

func fromTransitionModel(m *transitionModel) (*availability.Transition, error) {
	nodeID, err := id.ParseNodeID(m.NodeID)
	if err != nil {
		return nil, err
	}

	return &availability.Transition{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.CreatedAt,
		},
		Node:  nodeID,
		State: availability.State(m.State),
		At:    m.At,
	}, nil
}

// ==================== Settings models ====================

type settingsModel struct {
	grove.BaseModel `grove:"table:tally_settings"`

	ID            int64      `grove:"id,pk"`
	OperatorID    string     `grove:"operator_id"`
	Paused        bool       `grove:"paused"`
	FirstReportAt *time.Time `grove:"first_report_at"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toSettingsModel(st *types.Settings) *settingsModel {
	return &settingsModel{
		ID:            singletonRow,
		OperatorID:    st.Operator.String(),
		Paused:        st.Paused,
		FirstReportAt: timePtr(st.FirstReportAt),
		CreatedAt:     st.CreatedAt,
		UpdatedAt:     st.UpdatedAt,
	}
}

func fromSettingsModel(m *settingsModel) (*types.Settings, error) {
	operator, err := id.ParseOperatorID(m.OperatorID)
	if err != nil {
		return nil, err
	}

	return &types.Settings{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Operator:      operator,
		Paused:        m.Paused,
		FirstReportAt: timeVal(m.FirstReportAt),
	}, nil
}

// ==================== Helpers ====================

// timePtr maps the zero time to NULL so "never happened" round-trips.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
