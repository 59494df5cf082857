package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware keys)
	FieldUserID = "user_id"

	// Gateway
	FieldConnectionID   = "connection_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldAction         = "ws_action"
	FieldCorrelationID  = "uuid"
	FieldErrorCode      = "error_code"

	// Service
	FieldService    = "service"
	FieldInstanceID = "instance_id"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
