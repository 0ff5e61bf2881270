package logger

// Standard field names for consistent structured logging across Puckline.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldActorID   = "actor_id"
	FieldRequestID = "request_id"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	// Puckline-specific
	FieldSymbol        = "symbol"         // subsystem glyph (◬, ⊘, ⊶, ...)
	FieldSchemaVersion = "schema_version" // ontology SchemaVersion id
	FieldObjectType    = "object_type"    // ObjectType name
	FieldTarget        = "target"         // policy/audit target reference
	FieldAction        = "action"         // ActionType name
	FieldDecision      = "decision"       // allow/deny outcome
	FieldPolicy        = "policy"         // SecurityPolicy name
	FieldRuleID        = "rule_id"        // matched PolicyRule id
	FieldAuditSeq      = "audit_seq"      // audit log sequence number
)
