package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
//
// Samples are keyed by session (calendar date in the store's location) and
// minute of day so that history seeds and volume baselines are plain
// aggregate queries.
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
}

// NewSQLiteStore creates a new SQLite-based data store. loc defines session
// boundaries; nil means time.Local.
func NewSQLiteStore(dbPath string, loc *time.Location) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.WrapDatabase(err, "failed to open database")
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if loc == nil {
		loc = time.Local
	}
	store := &SQLiteStore{db: db, loc: loc}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.WrapDatabase(err, "failed to initialize schema")
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Intraday samples, one per symbol and quote timestamp
	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		session TEXT NOT NULL,
		minute_of_day INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		price REAL NOT NULL,
		volume INTEGER NOT NULL,
		source TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, ts)
	);

	-- Classified signals and their filter outcome
	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		score INTEGER NOT NULL,
		reasons TEXT,
		indicators TEXT,
		price REAL NOT NULL,
		computed_at INTEGER NOT NULL,
		notified INTEGER DEFAULT 0,
		suppression_reason TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Checkpoint run summaries
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		checkpoint TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		attempted INTEGER NOT NULL,
		skipped TEXT,
		abandoned TEXT,
		notified INTEGER NOT NULL,
		suppressed INTEGER NOT NULL,
		suppression_reasons TEXT,
		dispatch_failures INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_samples_symbol_session ON samples(symbol, session);
	CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
	CREATE INDEX IF NOT EXISTS idx_signals_computed_at ON signals(computed_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) minuteOfDay(t time.Time) int {
	local := t.In(s.loc)
	return local.Hour()*60 + local.Minute()
}

// ============================================================================
// Samples Methods
// ============================================================================

// SaveSample stores one observation. A second sample with the same
// timestamp replaces the first.
func (s *SQLiteStore) SaveSample(ctx context.Context, symbol, source string, sample models.Sample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO samples (symbol, session, minute_of_day, ts, price, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, symbol, models.SessionKey(sample.Timestamp, s.loc), s.minuteOfDay(sample.Timestamp),
		sample.Timestamp.UnixMilli(), sample.Price, sample.Volume, source)
	if err != nil {
		return apperrors.WrapDatabase(err, "failed to save sample")
	}
	return nil
}

// History returns the last sample of each of the most recent sessions
// before the session of before, oldest first.
func (s *SQLiteStore) History(ctx context.Context, symbol string, before time.Time, sessions int) ([]models.Sample, error) {
	if sessions <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.ts, s.price, s.volume
		FROM samples s
		JOIN (
			SELECT session, MAX(ts) AS ts
			FROM samples
			WHERE symbol = ? AND session < ?
			GROUP BY session
			ORDER BY session DESC
			LIMIT ?
		) last ON s.session = last.session AND s.ts = last.ts
		WHERE s.symbol = ?
		ORDER BY s.ts ASC
	`, symbol, models.SessionKey(before, s.loc), sessions, symbol)
	if err != nil {
		return nil, apperrors.WrapDatabase(err, "failed to query history")
	}
	defer rows.Close()

	var history []models.Sample
	for rows.Next() {
		var ts int64
		var smp models.Sample
		if err := rows.Scan(&ts, &smp.Price, &smp.Volume); err != nil {
			return nil, apperrors.WrapDatabase(err, "failed to scan sample")
		}
		smp.Timestamp = time.UnixMilli(ts).In(s.loc)
		history = append(history, smp)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapDatabase(err, "error iterating history")
	}

	return history, nil
}

// VolumeBaseline returns the average cumulative volume observed within
// window of the time of day of at, over the most recent prior sessions.
// Zero means no baseline is available.
func (s *SQLiteStore) VolumeBaseline(ctx context.Context, symbol string, at time.Time, sessions int, window time.Duration) (float64, error) {
	if sessions <= 0 {
		return 0, nil
	}
	minute := s.minuteOfDay(at)
	w := int(window / time.Minute)

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(v) FROM (
			SELECT session, AVG(volume) AS v
			FROM samples
			WHERE symbol = ? AND session < ? AND minute_of_day BETWEEN ? AND ?
			GROUP BY session
			ORDER BY session DESC
			LIMIT ?
		)
	`, symbol, models.SessionKey(at, s.loc), minute-w, minute+w, sessions).Scan(&avg)
	if err != nil && err != sql.ErrNoRows {
		return 0, apperrors.WrapDatabase(err, "failed to query volume baseline")
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// PruneSamples deletes samples older than before.
func (s *SQLiteStore) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, apperrors.WrapDatabase(err, "failed to prune samples")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ============================================================================
// Signals Methods
// ============================================================================

// SaveSignal persists a signal together with its filter decision.
func (s *SQLiteStore) SaveSignal(ctx context.Context, d models.NotificationDecision) error {
	reasons, _ := json.Marshal(d.Signal.Reasons)
	indicators, _ := json.Marshal(d.Signal.Indicators)
	notified := 0
	if d.ShouldNotify {
		notified = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (symbol, action, score, reasons, indicators, price, computed_at, notified, suppression_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Signal.Symbol, string(d.Signal.Action), d.Signal.Score, string(reasons), string(indicators),
		d.Signal.Quote.LastPrice, d.Signal.ComputedAt.UnixMilli(), notified, d.SuppressionReason)
	if err != nil {
		return apperrors.WrapDatabase(err, "failed to save signal")
	}
	return nil
}

// GetSignals retrieves stored signals, newest first.
func (s *SQLiteStore) GetSignals(ctx context.Context, filter SignalFilter) ([]SignalRecord, error) {
	query := "SELECT id, symbol, action, score, reasons, indicators, price, computed_at, notified, suppression_reason FROM signals WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.Since.IsZero() {
		query += " AND computed_at >= ?"
		args = append(args, filter.Since.UnixMilli())
	}
	if filter.NotifiedOnly {
		query += " AND notified = 1"
	}

	query += " ORDER BY computed_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.WrapDatabase(err, "failed to query signals")
	}
	defer rows.Close()

	var records []SignalRecord
	for rows.Next() {
		var r SignalRecord
		var action string
		var reasonsJSON, indicatorsJSON, suppression sql.NullString
		var computedAt int64
		var notified int

		if err := rows.Scan(&r.ID, &r.Symbol, &action, &r.Score, &reasonsJSON, &indicatorsJSON, &r.Price, &computedAt, &notified, &suppression); err != nil {
			return nil, apperrors.WrapDatabase(err, "failed to scan signal")
		}
		r.Action = models.Action(action)
		r.ComputedAt = time.UnixMilli(computedAt).In(s.loc)
		r.Notified = notified == 1
		r.SuppressionReason = suppression.String
		if reasonsJSON.Valid {
			_ = json.Unmarshal([]byte(reasonsJSON.String), &r.Reasons)
		}
		if indicatorsJSON.Valid {
			_ = json.Unmarshal([]byte(indicatorsJSON.String), &r.Indicators)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapDatabase(err, "error iterating signals")
	}

	return records, nil
}

// ============================================================================
// Runs Methods
// ============================================================================

// SaveRun persists a checkpoint run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, r *models.RunSummary) error {
	skipped, _ := json.Marshal(r.Skipped)
	abandoned, _ := json.Marshal(r.Abandoned)
	reasons, _ := json.Marshal(r.SuppressionReasons)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (checkpoint, started_at, duration_ms, attempted, skipped, abandoned, notified, suppressed, suppression_reasons, dispatch_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Checkpoint, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(), r.Attempted, string(skipped), string(abandoned),
		r.Notified, r.Suppressed, string(reasons), r.DispatchFailures)
	if err != nil {
		return apperrors.WrapDatabase(err, "failed to save run")
	}
	return nil
}

// GetRuns retrieves the most recent run summaries, newest first.
func (s *SQLiteStore) GetRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint, started_at, duration_ms, attempted, skipped, abandoned, notified, suppressed, suppression_reasons, dispatch_failures
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperrors.WrapDatabase(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var r models.RunSummary
		var startedAt, durationMs int64
		var skipped, abandoned, reasons sql.NullString

		if err := rows.Scan(&r.Checkpoint, &startedAt, &durationMs, &r.Attempted, &skipped, &abandoned, &r.Notified, &r.Suppressed, &reasons, &r.DispatchFailures); err != nil {
			return nil, apperrors.WrapDatabase(err, "failed to scan run")
		}
		r.StartedAt = time.UnixMilli(startedAt).In(s.loc)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if skipped.Valid {
			_ = json.Unmarshal([]byte(skipped.String), &r.Skipped)
		}
		if abandoned.Valid {
			_ = json.Unmarshal([]byte(abandoned.String), &r.Abandoned)
		}
		if reasons.Valid {
			_ = json.Unmarshal([]byte(reasons.String), &r.SuppressionReasons)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapDatabase(err, "error iterating runs")
	}

	return runs, nil
}

// Ensure SQLiteStore implements DataStore.
var _ DataStore = (*SQLiteStore)(nil)
