package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/layerwave/layerwave/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements ReportStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger
}

var _ ReportStore = (*SQLiteStore)(nil)

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens its own database.
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "stores").Logger(),
	}, nil
}

// Open creates a store, connects and migrates it.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Init opens the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if !isMemory(s.cfg.Path) {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	s.logger.Debug().Str("path", s.cfg.Path).Msg("report archive opened")
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveReport stores a report, first removing reports for the same target
// when replace is set.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *PlanReport, replace bool) error {
	if report == nil || report.ID == "" || report.Target == "" {
		return engine.NewInputFormatError("report requires an id and a target", nil)
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	waves, err := json.Marshal(report.Waves)
	if err != nil {
		return fmt.Errorf("failed to encode waves: %w", err)
	}
	unreachable := report.Unreachable
	if unreachable == nil {
		unreachable = []string{}
	}
	unreachableJSON, err := json.Marshal(unreachable)
	if err != nil {
		return fmt.Errorf("failed to encode unreachable layers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		res, err := tx.ExecContext(ctx, `DELETE FROM plan_reports WHERE target = ?`, report.Target)
		if err != nil {
			return fmt.Errorf("failed to replace reports for %s: %w", report.Target, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			s.logger.Info().Str("target", report.Target).Int64("removed", n).Msg("replaced archived reports")
		}
	}

	query := `
		INSERT INTO plan_reports (
			id, target, plan_id, ceiling, bucket, waves_json, unreachable_json,
			layer_count, wave_count, manual_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		report.ID,
		report.Target,
		report.PlanID,
		report.Ceiling,
		report.Bucket,
		string(waves),
		string(unreachableJSON),
		report.LayerCount,
		report.WaveCount,
		report.ManualCount,
		report.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

const reportColumns = `id, target, plan_id, ceiling, bucket, waves_json, unreachable_json,
	layer_count, wave_count, manual_count, created_at`

// GetReport retrieves a report by ID.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*PlanReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM plan_reports WHERE id = ?`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewNotFoundError(fmt.Sprintf("report not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// ListReports returns reports newest first. An empty target lists all.
func (s *SQLiteStore) ListReports(ctx context.Context, target string) ([]*PlanReport, error) {
	query := `SELECT ` + reportColumns + ` FROM plan_reports`
	var args []interface{}
	if target != "" {
		query += ` WHERE target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reports []*PlanReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// DeleteReports removes every report for target.
func (s *SQLiteStore) DeleteReports(ctx context.Context, target string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plan_reports WHERE target = ?`, target)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*PlanReport, error) {
	var (
		r               PlanReport
		wavesJSON       string
		unreachableJSON string
		createdAt       int64
	)
	err := row.Scan(
		&r.ID,
		&r.Target,
		&r.PlanID,
		&r.Ceiling,
		&r.Bucket,
		&wavesJSON,
		&unreachableJSON,
		&r.LayerCount,
		&r.WaveCount,
		&r.ManualCount,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(wavesJSON), &r.Waves); err != nil {
		return nil, fmt.Errorf("failed to decode waves of report %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(unreachableJSON), &r.Unreachable); err != nil {
		return nil, fmt.Errorf("failed to decode unreachable layers of report %s: %w", r.ID, err)
	}
	if len(r.Unreachable) == 0 {
		r.Unreachable = nil
	}
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	return &r, nil
}
