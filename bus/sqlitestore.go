package bus

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/runtime"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStoreConfig configures the SQLite notification store.
type SQLiteStoreConfig struct {
	// DSN is the database connection string.
	DSN string

	// RetentionAge deletes notifications older than this duration (0 = no age pruning).
	RetentionAge time.Duration

	// RetentionCount keeps at most this many notifications per run (0 = no count pruning).
	RetentionCount int

	// PruneInterval is how often to run pruning (default 1 hour).
	PruneInterval time.Duration
}

// SQLiteStore persists notifications to a SQLite database. It satisfies the
// NotificationStore interface and supports WAL mode for concurrent read
// access and a background pruner goroutine.
type SQLiteStore struct {
	db   *sql.DB
	cfg  SQLiteStoreConfig
	stop chan struct{}
	done chan struct{}
}

// NewSQLiteStore opens (or creates) a SQLite notification store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
	}

	// Create schema.
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}

	s := &SQLiteStore{
		db:   db,
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	// Start background pruner if any retention is configured.
	if cfg.RetentionAge > 0 || cfg.RetentionCount > 0 {
		go s.pruneLoop()
	} else {
		close(s.done)
	}

	return s, nil
}

// Append stores a notification in the database.
func (s *SQLiteStore) Append(ctx context.Context, n runtime.Notification) error {
	payload := n.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications (run_id, seq, kind, block_key, statement, label, depth, time, payload, trace_id, span_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.RunID,
		n.Seq,
		string(n.Kind),
		string(n.Block),
		int(n.Statement),
		n.Label,
		n.Depth,
		n.Time.Format(time.RFC3339Nano),
		string(payloadJSON),
		n.TraceID,
		n.SpanID,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: append: %w", err)
	}
	return nil
}

// List returns notifications for a run, optionally filtered by afterSeq and
// limit.
func (s *SQLiteStore) List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Notification, error) {
	var rows *sql.Rows
	var err error

	query := `SELECT run_id, seq, kind, block_key, statement, label, depth, time, payload, trace_id, span_id
	           FROM notifications WHERE run_id = ? AND seq > ? ORDER BY seq ASC`
	args := []any{runID, afterSeq}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// Runs summarizes every stored run, most recent first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, MIN(time), MAX(time), COUNT(*)
		   FROM notifications GROUP BY run_id ORDER BY MIN(time) DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			sum      RunSummary
			startStr string
			endStr   string
		)
		if err := rows.Scan(&sum.RunID, &startStr, &endStr, &sum.Count); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan run summary: %w", err)
		}
		if sum.Started, err = time.Parse(time.RFC3339Nano, startStr); err != nil {
			return nil, fmt.Errorf("sqlitestore: parse time %q: %w", startStr, err)
		}
		if sum.Finished, err = time.Parse(time.RFC3339Nano, endStr); err != nil {
			return nil, fmt.Errorf("sqlitestore: parse time %q: %w", endStr, err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// LatestSeq returns the highest Seq for a run (0 if none stored).
func (s *SQLiteStore) LatestSeq(ctx context.Context, runID string) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM notifications WHERE run_id = ?`, runID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: latest seq: %w", err)
	}
	if !seq.Valid || seq.Int64 < 0 {
		return 0, nil
	}
	return uint64(seq.Int64), nil // #nosec G115 -- seq is always non-negative
}

// Close stops the background pruner and closes the database connection.
func (s *SQLiteStore) Close() error {
	select {
	case <-s.stop:
		// Already closed.
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}

// Prune runs a single pruning pass. Exported for testing.
func (s *SQLiteStore) Prune(ctx context.Context) error {
	if s.cfg.RetentionAge > 0 {
		cutoff := time.Now().Add(-s.cfg.RetentionAge).Format(time.RFC3339Nano)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM notifications WHERE time < ?`, cutoff,
		); err != nil {
			return fmt.Errorf("sqlitestore: prune by age: %w", err)
		}
	}

	if s.cfg.RetentionCount > 0 {
		// For each run, keep only the most recent RetentionCount notifications.
		rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT run_id FROM notifications`)
		if err != nil {
			return fmt.Errorf("sqlitestore: prune list runs: %w", err)
		}
		var runIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("sqlitestore: prune scan run id: %w", err)
			}
			runIDs = append(runIDs, id)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("sqlitestore: prune rows err: %w", err)
		}

		for _, runID := range runIDs {
			if _, err := s.db.ExecContext(ctx,
				`DELETE FROM notifications WHERE run_id = ? AND id NOT IN (
					SELECT id FROM notifications WHERE run_id = ? ORDER BY seq DESC LIMIT ?
				)`, runID, runID, s.cfg.RetentionCount,
			); err != nil {
				return fmt.Errorf("sqlitestore: prune by count for %s: %w", runID, err)
			}
		}
	}

	return nil
}

func (s *SQLiteStore) pruneLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.Prune(context.Background())
		}
	}
}

func scanNotifications(rows *sql.Rows) ([]runtime.Notification, error) {
	var notes []runtime.Notification
	for rows.Next() {
		var (
			n           runtime.Notification
			kind        string
			blockKey    string
			statement   int
			timeStr     string
			payloadJSON string
		)
		err := rows.Scan(
			&n.RunID,
			&n.Seq,
			&kind,
			&blockKey,
			&statement,
			&n.Label,
			&n.Depth,
			&timeStr,
			&payloadJSON,
			&n.TraceID,
			&n.SpanID,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan notification: %w", err)
		}

		n.Kind = runtime.NotificationKind(kind)
		n.Block = core.BlockKey(blockKey)
		n.Statement = core.StatementID(statement)

		t, err := time.Parse(time.RFC3339Nano, timeStr)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse time %q: %w", timeStr, err)
		}
		n.Time = t

		if payloadJSON != "" && payloadJSON != "{}" {
			if err := json.Unmarshal([]byte(payloadJSON), &n.Payload); err != nil {
				return nil, fmt.Errorf("sqlitestore: unmarshal payload: %w", err)
			}
		} else {
			n.Payload = map[string]any{}
		}

		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Compile-time interface check.
var _ NotificationStore = (*SQLiteStore)(nil)
