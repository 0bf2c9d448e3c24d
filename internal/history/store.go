// Package history persists completed swing analyses in an embedded DuckDB
// database and serves the aggregate queries (monthly counts, score trends)
// the reporting endpoints need.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/swingai/backend/internal/models"
)

// Entry is one recorded analysis.
type Entry struct {
	ID           string                 `json:"id"`
	FileName     string                 `json:"fileName"`
	Scores       models.SwingScores     `json:"scores"`
	ModelVersion string                 `json:"modelVersion,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	Result       *models.AnalysisResult `json:"result,omitempty"`
}

// MonthlyStat aggregates analyses for one calendar month.
type MonthlyStat struct {
	Month        string  `json:"month"` // "2026-08"
	Count        int     `json:"count"`
	AverageScore float64 `json:"averageScore"`
}

// TrendPoint is the per-day average overall score.
type TrendPoint struct {
	Day          string  `json:"day"` // "2026-08-26"
	Count        int     `json:"count"`
	AverageScore float64 `json:"averageScore"`
}

// Store is a DuckDB-backed analysis history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the history database in dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return NewStoreAtPath(filepath.Join(dir, "swing_history.duckdb"))
}

// NewStoreAtPath opens a history database at a specific path.
func NewStoreAtPath(dbPath string) (*Store, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS analyses (
			id            VARCHAR PRIMARY KEY,
			file_name     VARCHAR NOT NULL,
			overall       DOUBLE NOT NULL,
			form          DOUBLE,
			tempo         DOUBLE,
			power         DOUBLE,
			accuracy      DOUBLE,
			confidence    DOUBLE,
			model_version VARCHAR,
			result        VARCHAR,
			created_at    TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create analyses table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Record stores a completed item's analysis. Items without a result are
// ignored.
func (s *Store) Record(item *models.UploadItem) error {
	if item == nil || item.Result == nil {
		return nil
	}

	resultJSON, err := json.Marshal(item.Result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	completedAt := time.Now()
	if item.CompletedAt != nil {
		completedAt = *item.CompletedAt
	}

	r := item.Result
	_, err = s.db.Exec(`
		INSERT INTO analyses (id, file_name, overall, form, tempo, power, accuracy, confidence, model_version, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.FileName,
		r.Scores.Overall, r.Scores.Form, r.Scores.Tempo, r.Scores.Power, r.Scores.Accuracy,
		r.Confidence, r.ModelVersion, string(resultJSON), completedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

// Recent returns the most recent analyses, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, file_name, overall, form, tempo, power, accuracy, model_version, result, created_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent analyses: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			version    sql.NullString
			resultJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.FileName,
			&e.Scores.Overall, &e.Scores.Form, &e.Scores.Tempo, &e.Scores.Power, &e.Scores.Accuracy,
			&version, &resultJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning analysis row: %w", err)
		}
		e.ModelVersion = version.String
		if resultJSON.Valid && resultJSON.String != "" {
			var result models.AnalysisResult
			if err := json.Unmarshal([]byte(resultJSON.String), &result); err == nil {
				e.Result = &result
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MonthlyStats returns per-month analysis counts and average overall score,
// newest month first.
func (s *Store) MonthlyStats() ([]MonthlyStat, error) {
	rows, err := s.db.Query(`
		SELECT strftime(created_at, '%Y-%m') AS month, COUNT(*), AVG(overall)
		FROM analyses
		GROUP BY month
		ORDER BY month DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying monthly stats: %w", err)
	}
	defer rows.Close()

	var stats []MonthlyStat
	for rows.Next() {
		var st MonthlyStat
		if err := rows.Scan(&st.Month, &st.Count, &st.AverageScore); err != nil {
			return nil, fmt.Errorf("scanning monthly stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ScoreTrend returns the per-day average overall score over the last N days,
// oldest day first.
func (s *Store) ScoreTrend(days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	rows, err := s.db.Query(`
		SELECT strftime(created_at, '%Y-%m-%d') AS day, COUNT(*), AVG(overall)
		FROM analyses
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying score trend: %w", err)
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Day, &p.Count, &p.AverageScore); err != nil {
			return nil, fmt.Errorf("scanning trend point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
