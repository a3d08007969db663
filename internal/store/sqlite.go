package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"etf-tracker/internal/analysis"
	"etf-tracker/internal/decision"
)

// SQLiteStore implements HistoryStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based history store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Scheduler tasks and CLI commands may hit the store concurrently.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Decision history
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		name TEXT,
		action TEXT NOT NULL,
		confidence REAL NOT NULL,
		score REAL NOT NULL,
		reasons TEXT,
		current_price REAL,
		target_price REAL,
		stop_loss REAL,
		generated_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Analysis result history
	CREATE TABLE IF NOT EXISTS analysis_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		name TEXT,
		mode TEXT NOT NULL,
		current_price REAL,
		change_percent REAL,
		ma_short REAL,
		ma_long REAL,
		rsi REAL,
		volatility REAL,
		sharpe REAL,
		max_drawdown REAL,
		trend TEXT,
		trend_strength REAL,
		risk_level TEXT,
		score REAL,
		generated_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_code ON decisions(code);
	CREATE INDEX IF NOT EXISTS idx_decisions_generated ON decisions(generated_at);
	CREATE INDEX IF NOT EXISTS idx_analysis_code ON analysis_results(code);
	CREATE INDEX IF NOT EXISTS idx_analysis_generated ON analysis_results(generated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveDecision appends one decision to the history.
func (s *SQLiteStore) SaveDecision(ctx context.Context, d decision.Decision) error {
	reasons, _ := json.Marshal(d.Reasons)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (code, name, action, confidence, score, reasons, current_price, target_price, stop_loss, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Code, d.Name, string(d.Action), d.Confidence, d.Score, string(reasons), d.CurrentPrice, d.TargetPrice, d.StopLoss, d.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// GetDecisions retrieves decision history matching the filter, newest first.
func (s *SQLiteStore) GetDecisions(ctx context.Context, filter DecisionFilter) ([]decision.Decision, error) {
	query := "SELECT code, COALESCE(name, ''), action, confidence, score, COALESCE(reasons, '[]'), current_price, target_price, stop_loss, generated_at FROM decisions WHERE 1=1"
	args := []interface{}{}

	if filter.Code != "" {
		query += " AND code = ?"
		args = append(args, filter.Code)
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, string(filter.Action))
	}
	if !filter.StartDate.IsZero() {
		query += " AND generated_at >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND generated_at <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY generated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []decision.Decision
	for rows.Next() {
		var d decision.Decision
		var action, reasonsJSON string
		if err := rows.Scan(&d.Code, &d.Name, &action, &d.Confidence, &d.Score, &reasonsJSON, &d.CurrentPrice, &d.TargetPrice, &d.StopLoss, &d.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Action = decision.Action(action)
		json.Unmarshal([]byte(reasonsJSON), &d.Reasons)
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// SaveAnalysis appends one analysis result to the history.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, r analysis.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_results (code, name, mode, current_price, change_percent, ma_short, ma_long, rsi, volatility, sharpe, max_drawdown, trend, trend_strength, risk_level, score, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Code, r.Name, string(r.Mode), r.CurrentPrice, r.ChangePercent, r.MAShort, r.MALong, r.RSI, r.Volatility, r.Sharpe, r.MaxDrawdown, r.Trend, r.TrendStrength, r.RiskLevel, r.Score, r.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to save analysis result: %w", err)
	}
	return nil
}

// GetAnalyses retrieves analysis history matching the filter, newest first.
func (s *SQLiteStore) GetAnalyses(ctx context.Context, filter AnalysisFilter) ([]analysis.Result, error) {
	query := "SELECT code, COALESCE(name, ''), mode, current_price, change_percent, ma_short, ma_long, rsi, volatility, sharpe, max_drawdown, COALESCE(trend, ''), trend_strength, COALESCE(risk_level, ''), score, generated_at FROM analysis_results WHERE 1=1"
	args := []interface{}{}

	if filter.Code != "" {
		query += " AND code = ?"
		args = append(args, filter.Code)
	}
	if !filter.StartDate.IsZero() {
		query += " AND generated_at >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND generated_at <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY generated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis results: %w", err)
	}
	defer rows.Close()

	var results []analysis.Result
	for rows.Next() {
		var r analysis.Result
		var mode string
		if err := rows.Scan(&r.Code, &r.Name, &mode, &r.CurrentPrice, &r.ChangePercent, &r.MAShort, &r.MALong, &r.RSI, &r.Volatility, &r.Sharpe, &r.MaxDrawdown, &r.Trend, &r.TrendStrength, &r.RiskLevel, &r.Score, &r.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis result: %w", err)
		}
		r.Mode = analysis.Mode(mode)
		results = append(results, r)
	}

	return results, rows.Err()
}
