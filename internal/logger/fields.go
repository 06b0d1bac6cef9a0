package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields carried on the context.
const (
	FieldRequestID = "request_id"
	FieldBatchID   = "batch_id"
	FieldAssetID   = "asset_id"
	FieldComponent = "component"
	FieldModel     = "model"
	FieldMode      = "mode"
)

// Metric fields attached to single entries.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
)
