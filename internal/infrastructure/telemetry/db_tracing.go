package telemetry

import (
	"errors"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for tenant store tracing
type DBTracingConfig struct {
	Enabled    bool
	LogFullSQL bool   // include query variables in spans; never in production
	DBName     string // defaults to "postgresql"
}

// RegisterDBTracing installs the otelgorm plugin on db and a callback that
// tags each statement span with the tenant it ran for and records errors.
// Missing rows are not errors.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, log *zap.Logger) error {
	if !cfg.Enabled {
		log.Debug("Database tracing disabled")
		return nil
	}

	dbName := cfg.DBName
	if dbName == "" {
		dbName = "postgresql"
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(dbName)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}

	// registered ahead of the plugin so they run while its span is still open
	cb := db.Callback()
	registrations := []error{
		cb.Create().After("gorm:create").Register("tenant_trace:after_create", annotateSpan),
		cb.Query().After("gorm:query").Register("tenant_trace:after_query", annotateSpan),
		cb.Update().After("gorm:update").Register("tenant_trace:after_update", annotateSpan),
		cb.Delete().After("gorm:delete").Register("tenant_trace:after_delete", annotateSpan),
		cb.Row().After("gorm:row").Register("tenant_trace:after_row", annotateSpan),
		cb.Raw().After("gorm:raw").Register("tenant_trace:after_raw", annotateSpan),
	}
	if err := errors.Join(registrations...); err != nil {
		return err
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	log.Info("Database tracing enabled", zap.Bool("log_full_sql", cfg.LogFullSQL))
	return nil
}

func annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tenantID := logger.GetTenantID(ctx); tenantID != "" {
		span.SetAttributes(attribute.String("tenant.id", tenantID))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
