package budget

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite for persistence. It is suitable
// for single-instance deployments where the ledger and budget settings must
// survive restarts.
//
// SQLiteStore uses a write-ahead log (WAL) for better concurrent performance
// and periodic checkpointing to balance write performance with durability.
type SQLiteStore struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once

	// Pre-compiled statements for the hot paths.
	appendUsageStmt   *sql.Stmt
	sumCostStmt       *sql.Stmt
	sumCostByProvStmt *sql.Stmt
	activeSettingStmt *sql.Stmt
	deactivateStmt    *sql.Stmt
	insertSettingStmt *sql.Stmt
	pruneUsageStmt    *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a SQLite store with default settings.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{DBPath: dbPath})
}

// NewSQLiteStoreWithConfig creates a SQLite store with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go store.checkpointLoop()

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		component TEXT,
		task_type TEXT,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost REAL NOT NULL,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage(provider, timestamp);

	CREATE TABLE IF NOT EXISTS budget_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		period TEXT NOT NULL,
		provider TEXT NOT NULL,
		limit_amount REAL NOT NULL,
		enforcement TEXT NOT NULL,
		start_date INTEGER NOT NULL,
		active INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settings_active ON budget_settings(period, provider, active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.appendUsageStmt, err = s.db.Prepare(`
		INSERT INTO usage (timestamp, provider, model, component, task_type, input_tokens, output_tokens, cost, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare usage insert: %w", err)
	}

	s.sumCostStmt, err = s.db.Prepare(`
		SELECT COALESCE(SUM(cost), 0) FROM usage WHERE timestamp >= ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cost sum: %w", err)
	}

	s.sumCostByProvStmt, err = s.db.Prepare(`
		SELECT COALESCE(SUM(cost), 0) FROM usage WHERE timestamp >= ? AND provider = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare scoped cost sum: %w", err)
	}

	s.activeSettingStmt, err = s.db.Prepare(`
		SELECT id, period, provider, limit_amount, enforcement, start_date, active
		FROM budget_settings
		WHERE period = ? AND provider = ? AND active = 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare setting lookup: %w", err)
	}

	s.deactivateStmt, err = s.db.Prepare(`
		UPDATE budget_settings SET active = 0 WHERE period = ? AND provider = ? AND active = 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare setting deactivate: %w", err)
	}

	s.insertSettingStmt, err = s.db.Prepare(`
		INSERT INTO budget_settings (period, provider, limit_amount, enforcement, start_date, active)
		VALUES (?, ?, ?, ?, ?, 1)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare setting insert: %w", err)
	}

	s.pruneUsageStmt, err = s.db.Prepare(`
		DELETE FROM usage WHERE timestamp < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare usage prune: %w", err)
	}

	return nil
}

// AppendUsage adds one record to the ledger.
func (s *SQLiteStore) AppendUsage(ctx context.Context, record *UsageRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	var metadataJSON []byte
	if record.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.appendUsageStmt.ExecContext(ctx,
		record.Timestamp.UnixNano(),
		record.Provider,
		record.Model,
		record.Component,
		record.TaskType,
		record.InputTokens,
		record.OutputTokens,
		record.Cost,
		string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append usage: %w", err)
	}

	record.ID, _ = result.LastInsertId()
	return nil
}

// SumCostSince totals ledger cost at or after since.
func (s *SQLiteStore) SumCostSince(ctx context.Context, since time.Time, provider string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	var err error
	if provider == "" {
		err = s.sumCostStmt.QueryRowContext(ctx, since.UnixNano()).Scan(&total)
	} else {
		err = s.sumCostByProvStmt.QueryRowContext(ctx, since.UnixNano(), provider).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage cost: %w", err)
	}
	return total, nil
}

// UsageSince returns matching ledger records in timestamp order.
func (s *SQLiteStore) UsageSince(ctx context.Context, since time.Time, provider string) ([]UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, timestamp, provider, model, component, task_type, input_tokens, output_tokens, cost, metadata
		FROM usage WHERE timestamp >= ?`
	args := []any{since.UnixNano()}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var (
			r            UsageRecord
			ts           int64
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.Provider, &r.Model, &r.Component, &r.TaskType,
			&r.InputTokens, &r.OutputTokens, &r.Cost, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		r.Timestamp = time.Unix(0, ts)
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}
	return records, nil
}

// ActiveSetting returns the active row for (period, provider), or nil.
func (s *SQLiteStore) ActiveSetting(ctx context.Context, period Period, provider string) (*Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	setting, err := scanSetting(s.activeSettingStmt.QueryRowContext(ctx, string(period), provider))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load setting: %w", err)
	}
	return setting, nil
}

// ReplaceSetting deactivates the current active row and inserts setting,
// both inside one transaction.
func (s *SQLiteStore) ReplaceSetting(ctx context.Context, setting *Setting) error {
	if setting == nil {
		return fmt.Errorf("setting cannot be nil")
	}
	if setting.StartDate.IsZero() {
		setting.StartDate = time.Now()
	}
	setting.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, s.deactivateStmt).ExecContext(ctx, string(setting.Period), setting.Provider); err != nil {
		return fmt.Errorf("failed to deactivate prior setting: %w", err)
	}

	result, err := tx.StmtContext(ctx, s.insertSettingStmt).ExecContext(ctx,
		string(setting.Period),
		setting.Provider,
		setting.LimitAmount,
		string(setting.Enforcement),
		setting.StartDate.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert setting: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit setting replacement: %w", err)
	}

	setting.ID, _ = result.LastInsertId()
	return nil
}

// UpdateEnforcement changes the policy on the active row, if any.
func (s *SQLiteStore) UpdateEnforcement(ctx context.Context, period Period, provider string, policy Policy) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE budget_settings SET enforcement = ? WHERE period = ? AND provider = ? AND active = 1`,
		string(policy), string(period), provider)
	if err != nil {
		return false, fmt.Errorf("failed to update enforcement: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ActiveSettings returns every active row.
func (s *SQLiteStore) ActiveSettings(ctx context.Context) ([]Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period, provider, limit_amount, enforcement, start_date, active
		FROM budget_settings WHERE active = 1 ORDER BY period, provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var (
			setting Setting
			start   int64
			active  int
		)
		if err := rows.Scan(&setting.ID, &setting.Period, &setting.Provider,
			&setting.LimitAmount, &setting.Enforcement, &start, &active); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		setting.StartDate = time.Unix(0, start)
		setting.Active = active != 0
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating setting rows: %w", err)
	}
	return settings, nil
}

// SettingsHistory returns every row for a pair, superseded rows included.
func (s *SQLiteStore) SettingsHistory(ctx context.Context, period Period, provider string) ([]Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period, provider, limit_amount, enforcement, start_date, active
		FROM budget_settings WHERE period = ? AND provider = ? ORDER BY id ASC`,
		string(period), provider)
	if err != nil {
		return nil, fmt.Errorf("failed to query setting history: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var (
			setting Setting
			start   int64
			active  int
		)
		if err := rows.Scan(&setting.ID, &setting.Period, &setting.Provider,
			&setting.LimitAmount, &setting.Enforcement, &start, &active); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		setting.StartDate = time.Unix(0, start)
		setting.Active = active != 0
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating setting rows: %w", err)
	}
	return settings, nil
}

// PruneUsage removes ledger rows older than the cutoff.
func (s *SQLiteStore) PruneUsage(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.pruneUsageStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// Close releases database resources. Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{
			s.appendUsageStmt, s.sumCostStmt, s.sumCostByProvStmt,
			s.activeSettingStmt, s.deactivateStmt, s.insertSettingStmt,
			s.pruneUsageStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

// scanSetting reads one budget_settings row.
func scanSetting(row *sql.Row) (*Setting, error) {
	var (
		setting Setting
		start   int64
		active  int
	)
	if err := row.Scan(&setting.ID, &setting.Period, &setting.Provider,
		&setting.LimitAmount, &setting.Enforcement, &start, &active); err != nil {
		return nil, err
	}
	setting.StartDate = time.Unix(0, start)
	setting.Active = active != 0
	return &setting, nil
}
