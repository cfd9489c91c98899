package logging

import (
	"context"
	"log/slog"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldRecordID is the standardized structured logging key for store record identifiers.
	FieldRecordID = "record_id"
	// FieldLeadID is the standardized structured logging key for lead identifiers.
	FieldLeadID = "lead_id"
	// FieldPhone is the standardized structured logging key for (normalized) phone numbers.
	FieldPhone = "phone"
	// FieldTaskID is the standardized structured logging key for music provider task identifiers.
	FieldTaskID = "task_id"
	// FieldTrigger is the standardized structured logging key for sequence trigger names.
	FieldTrigger = "trigger"
	// FieldCorrelationID is the standardized structured logging key for tick correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags log lines for machine filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator-facing next step for a failure.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RecordIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRecordID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.CorrelationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
