package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType categorizes log events for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldNotificationID is the standardized structured logging key for notification identifiers.
	FieldNotificationID = "notification_id"
	// FieldWatcher is the standardized structured logging key for watcher names.
	FieldWatcher = "watcher"
	// FieldRule is the standardized structured logging key for rule names.
	FieldRule = "rule"
	// FieldReason is the standardized structured logging key for close reasons.
	FieldReason = "reason"
)
