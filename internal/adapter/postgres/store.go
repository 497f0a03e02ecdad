// Package postgres is the keyed store for exported monthly metrics.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// metricRow is the stored form of a monthly metric, keyed by (ano, mes).
type metricRow struct {
	Ano               int     `db:"ano"`
	Mes               int     `db:"mes"`
	TempMediaMensual  float64 `db:"temp_media_mensual"`
	TempMaxMensual    float64 `db:"temp_max_mensual"`
	MaxDesviacion     float64 `db:"max_desviacion"`
	DiferenciaTempMax float64 `db:"diferencia_temp_max"`
}

func toRow(m domain.MonthlyMetric) metricRow {
	return metricRow{
		Ano:               m.Year,
		Mes:               m.Month,
		TempMediaMensual:  m.AvgMean,
		TempMaxMensual:    m.MaxMean,
		MaxDesviacion:     m.MaxStdDev,
		DiferenciaTempMax: m.DiffFromPrevious,
	}
}

// Store writes monthly metrics to Postgres tables. Writing the same
// (ano, mes) again overwrites the row.
// It implements pipeline.KeyedStore.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // ping error takes precedence
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("postgres connection established")
	return New(db, logger), nil
}

// New wraps an open database handle.
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureTable creates table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			ano                 INTEGER          NOT NULL,
			mes                 INTEGER          NOT NULL CHECK (mes BETWEEN 1 AND 12),
			temp_media_mensual  DOUBLE PRECISION NOT NULL,
			temp_max_mensual    DOUBLE PRECISION NOT NULL,
			max_desviacion      DOUBLE PRECISION NOT NULL,
			diferencia_temp_max DOUBLE PRECISION NOT NULL,
			updated_at          TIMESTAMPTZ      NOT NULL DEFAULT now(),
			PRIMARY KEY (ano, mes)
		)`, pq.QuoteIdentifier(table))

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// PutMetric upserts m into table.
func (s *Store) PutMetric(ctx context.Context, table string, m domain.MonthlyMetric) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (ano, mes, temp_media_mensual, temp_max_mensual, max_desviacion, diferencia_temp_max)
		VALUES (:ano, :mes, :temp_media_mensual, :temp_max_mensual, :max_desviacion, :diferencia_temp_max)
		ON CONFLICT (ano, mes) DO UPDATE SET
			temp_media_mensual  = EXCLUDED.temp_media_mensual,
			temp_max_mensual    = EXCLUDED.temp_max_mensual,
			max_desviacion      = EXCLUDED.max_desviacion,
			diferencia_temp_max = EXCLUDED.diferencia_temp_max,
			updated_at          = now()`, pq.QuoteIdentifier(table))

	if _, err := s.db.NamedExecContext(ctx, query, toRow(m)); err != nil {
		return fmt.Errorf("upsert %d/%d into %s: %w", m.Year, m.Month, table, err)
	}
	s.logger.Debug("metric stored", "table", table, "year", m.Year, "month", m.Month)
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
