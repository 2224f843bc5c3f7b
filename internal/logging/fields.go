package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. "peer_claimed").
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldService is the rendezvous service name.
	FieldService = "service"
	// FieldPeerPID is the identity of a publisher as reported in its directory name.
	FieldPeerPID = "peer_pid"
	// FieldSessionID identifies one aggregator run.
	FieldSessionID = "session_id"
)
