package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queryStartKey = "quota_metrics:start"

// DBDurationBuckets are histogram boundaries in seconds for store calls.
// Usage counts run on every gate check so the low end is dense.
var DBDurationBuckets = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5}

// DBMetricsConfig holds configuration for database metrics collection
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
}

// DefaultDBMetricsConfig returns default configuration for database metrics
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// DBMetrics records query counts, latency and connection pool state
type DBMetrics struct {
	queryTotal     metric.Int64Counter
	queryDuration  metric.Float64Histogram
	slowQueryTotal metric.Int64Counter
	config         DBMetricsConfig
	logger         *zap.Logger
}

// NewDBMetrics creates the query instruments. Pool gauges are added by
// ObservePool once the *sql.DB exists.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = DefaultDBMetricsConfig().SlowQueryThreshold
	}

	queryTotal, err := meter.Int64Counter("db_query_total",
		metric.WithDescription("Total number of database queries by operation and table"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, err
	}
	queryDuration, err := meter.Float64Histogram("db_query_duration_seconds",
		metric.WithDescription("Database query latency distribution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DBDurationBuckets...))
	if err != nil {
		return nil, err
	}
	slowQueryTotal, err := meter.Int64Counter("db_slow_query_total",
		metric.WithDescription("Queries slower than the configured threshold"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, err
	}

	return &DBMetrics{
		queryTotal:     queryTotal,
		queryDuration:  queryDuration,
		slowQueryTotal: slowQueryTotal,
		config:         cfg,
		logger:         logger,
	}, nil
}

// ObservePool registers asynchronous gauges reading sqlDB.Stats on each collection
func (m *DBMetrics) ObservePool(meter metric.Meter, sqlDB *sql.DB) error {
	inUse, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	maxOpen, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(inUse, int64(stats.InUse), metric.WithAttributes(attribute.String("state", "in_use")))
		o.ObserveInt64(inUse, int64(stats.Idle), metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(maxOpen, int64(stats.MaxOpenConnections))
		return nil
	}, inUse, maxOpen)
	return err
}

// RecordQuery records one completed statement
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	status := "ok"
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("table", table),
		attribute.String("status", status),
	)
	m.queryTotal.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("table", table),
	))

	if duration >= m.config.SlowQueryThreshold {
		m.slowQueryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
		m.logger.Warn("Slow database query",
			zap.String("operation", operation),
			zap.String("table", table),
			zap.Duration("duration", duration),
		)
	}
}

// Name implements gorm.Plugin
func (m *DBMetrics) Name() string {
	return "quota_metrics"
}

// Initialize implements gorm.Plugin
func (m *DBMetrics) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		name      string
		before    func(string, func(*gorm.DB)) error
		after     func(string, func(*gorm.DB)) error
		operation string
	}{
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "select"},
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "insert"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "update"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "delete"},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register, ""},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, ""},
	}

	for _, h := range hooks {
		operation := h.operation
		if err := h.before("quota_metrics:before_"+h.name, startTimer); err != nil {
			return err
		}
		if err := h.after("quota_metrics:after_"+h.name, func(db *gorm.DB) {
			m.record(db, operation)
		}); err != nil {
			return err
		}
	}
	return nil
}

func startTimer(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

func (m *DBMetrics) record(db *gorm.DB, operation string) {
	v, ok := db.InstanceGet(queryStartKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}
	if operation == "" {
		operation = DetectOperationType(db.Statement.SQL.String())
	}
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	m.RecordQuery(ctx, operation, db.Statement.Table, time.Since(start), db.Error)
}

// DetectOperationType classifies raw SQL by its leading keyword
func DetectOperationType(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "other"
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return "select"
	case "INSERT":
		return "insert"
	case "UPDATE":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return "other"
	}
}

// RegisterDBMetrics installs the gorm plugin and the pool gauges
func RegisterDBMetrics(db *gorm.DB, meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	m, err := NewDBMetrics(meter, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Use(m); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := m.ObservePool(meter, sqlDB); err != nil {
		return nil, err
	}
	logger.Info("Database metrics enabled", zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold))
	return m, nil
}
