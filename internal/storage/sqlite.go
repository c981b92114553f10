package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DatabaseFile is the SQLite file created under the data directory.
const DatabaseFile = "observer.db"

// OpenSQLite opens (creating if needed) the SQLite database under dataDir,
// applies WAL pragmas and runs migrations.
func OpenSQLite(ctx context.Context, dataDir string) (*SQLStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("storage: sqlite data dir is empty")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	// A single connection keeps PRAGMAs and writes consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: pragma %q: %w", p, err)
		}
	}

	s := &SQLStore{db: db, dialect: sqliteDialect}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migration: %w", err)
	}
	return s, nil
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *SQLStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS pulse_signals (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			source      TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			payload     TEXT,
			processed   INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_intents (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			signal_id   TEXT,
			intent_type TEXT NOT NULL,
			confidence  REAL,
			reasoning   TEXT,
			status      TEXT NOT NULL DEFAULT 'open',
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_drafts (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			intent_id  TEXT,
			draft_type TEXT NOT NULL,
			content    TEXT,
			metadata   TEXT,
			confidence REAL,
			status     TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_outcomes (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			draft_id      TEXT,
			outcome_type  TEXT NOT NULL,
			user_feedback TEXT,
			metrics       TEXT,
			created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_predictions (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			prediction_type     TEXT NOT NULL,
			predicted_value     TEXT NOT NULL,
			confidence          REAL NOT NULL,
			context             TEXT,
			actual_value        TEXT,
			accuracy_score      REAL,
			outcome_recorded_at TEXT,
			created_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_goals (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT,
			status      TEXT NOT NULL DEFAULT 'active',
			priority    INTEGER,
			due_date    TEXT,
			progress    REAL NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_user_autonomy (
			user_id    TEXT PRIMARY KEY,
			level      TEXT NOT NULL,
			reason     TEXT,
			granted_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_improvement_proposals (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			kind       TEXT NOT NULL,
			target_id  TEXT,
			payload    TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending_review',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_constraints (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			constraint_type TEXT NOT NULL,
			description     TEXT,
			rule            TEXT,
			severity        TEXT NOT NULL DEFAULT 'warn',
			active          INTEGER NOT NULL DEFAULT 1,
			created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pulse_autonomy_levels (
			level             TEXT PRIMARY KEY,
			name              TEXT NOT NULL,
			description       TEXT,
			allowed_actions   TEXT,
			requires_approval INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_signals_user     ON pulse_signals(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_intents_user     ON pulse_intents(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_drafts_user      ON pulse_drafts(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_outcomes_user    ON pulse_outcomes(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_predictions_user ON pulse_predictions(user_id, prediction_type, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_goals_user       ON pulse_goals(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_proposals_user   ON pulse_improvement_proposals(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_proposals_target ON pulse_improvement_proposals(target_id, kind);
	`
	if _, err := s.execHook(ctx, schema); err != nil {
		return err
	}

	// Calibration view: one row per user, prediction type and month.
	if _, err := s.execHook(ctx, `
		CREATE VIEW IF NOT EXISTS pulse_calibration_summary AS
		SELECT
			user_id,
			prediction_type,
			substr(created_at, 1, 7)                AS period,
			COUNT(*)                                AS total_predictions,
			COUNT(outcome_recorded_at)              AS resolved_predictions,
			AVG(confidence)                         AS mean_confidence,
			AVG(accuracy_score)                     AS mean_accuracy,
			AVG(CASE WHEN accuracy_score IS NOT NULL
				THEN ABS(confidence - accuracy_score) END) AS calibration_error
		FROM pulse_predictions
		GROUP BY user_id, prediction_type, substr(created_at, 1, 7)
	`); err != nil {
		return err
	}

	// Autonomy reference data (idempotent).
	if _, err := s.execHook(ctx, `
		INSERT OR IGNORE INTO pulse_autonomy_levels (level, name, description, allowed_actions, requires_approval) VALUES
			('L0', 'Observe',  'Read-only observation; no drafts or actions',               '[]',                                 1),
			('L1', 'Suggest',  'May surface suggestions for the user to act on',           '["suggest"]',                        1),
			('L2', 'Draft',    'May prepare drafts that the user approves before sending', '["suggest","draft"]',                1),
			('L3', 'Delegate', 'May act within constraints after Guardian approval',       '["suggest","draft","act_approved"]', 1)
	`); err != nil {
		return err
	}
	return nil
}
