package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store.
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_tiers",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_tiers (
    id             BIGINT PRIMARY KEY,
    storage_bytes  BIGINT NOT NULL DEFAULT 0,
    transfer_bytes BIGINT NOT NULL DEFAULT 0,
    price          BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_tiers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_nodes",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_nodes (
    id         TEXT PRIMARY KEY,
    p2p_addr   TEXT NOT NULL DEFAULT '',
    url        TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active',
    last_seen  TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_nodes_status ON tally_nodes (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_nodes`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_inspectors",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_inspectors (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    current_day INT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_inspectors`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_subscriptions",
			Version: "20250301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_subscriptions (
    app_id          TEXT PRIMARY KEY,
    tier_id         BIGINT NOT NULL DEFAULT 0,
    prev_tier_id    BIGINT NOT NULL DEFAULT 0,
    tier_changed_at TIMESTAMPTZ,
    balance         BIGINT NOT NULL DEFAULT 0,
    deposited       BIGINT NOT NULL DEFAULT 0,
    consumed        BIGINT NOT NULL DEFAULT 0,
    paid_through    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    suspended       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_subs_suspended ON tally_subscriptions (suspended, app_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_reports",
			Version: "20250301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_reports (
    report_key    TEXT PRIMARY KEY,
    inspector_id  TEXT NOT NULL DEFAULT '',
    app_id        TEXT NOT NULL DEFAULT '',
    node_id       TEXT NOT NULL DEFAULT '',
    day           INT NOT NULL DEFAULT 0,
    stored_bytes  BIGINT NOT NULL DEFAULT 0,
    read_bytes    BIGINT NOT NULL DEFAULT 0,
    written_bytes BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_reports_triple ON tally_reports (app_id, node_id, day);
CREATE INDEX IF NOT EXISTS idx_tally_reports_day ON tally_reports (day);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_reports`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_merged",
			Version: "20250301000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_merged (
    merged_key    TEXT PRIMARY KEY,
    app_id        TEXT NOT NULL DEFAULT '',
    node_id       TEXT NOT NULL DEFAULT '',
    day           INT NOT NULL DEFAULT 0,
    stored_bytes  BIGINT NOT NULL DEFAULT 0,
    read_bytes    BIGINT NOT NULL DEFAULT 0,
    written_bytes BIGINT NOT NULL DEFAULT 0,
    reporters     INT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_merged_app_day ON tally_merged (app_id, day);
CREATE INDEX IF NOT EXISTS idx_tally_merged_node_day ON tally_merged (node_id, day);
CREATE INDEX IF NOT EXISTS idx_tally_merged_day ON tally_merged (day);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_merged`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_revenue_pool",
			Version: "20250301000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_revenue_pool (
    id           BIGINT PRIMARY KEY,
    balance      BIGINT NOT NULL DEFAULT 0,
    withdrawn    BIGINT NOT NULL DEFAULT 0,
    unattributed BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_revenue_pool`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_shares",
			Version: "20250301000008",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_shares (
    node_id    TEXT PRIMARY KEY,
    attributed BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_shares`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_transitions",
			Version: "20250301000009",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_transitions (
    transition_key TEXT PRIMARY KEY,
    node_id        TEXT NOT NULL DEFAULT '',
    state          TEXT NOT NULL DEFAULT '',
    at             TIMESTAMPTZ NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tally_transitions_node_at ON tally_transitions (node_id, at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_transitions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_settings",
			Version: "20250301000010",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_settings (
    id              BIGINT PRIMARY KEY,
    operator_id     TEXT NOT NULL DEFAULT '',
    paused          BOOLEAN NOT NULL DEFAULT FALSE,
    first_report_at TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_settings`)
				return err
			},
		},
	)
}
