package audit

import (
	"context"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Audit actions for the chat gateway.
const (
	ActionConnect            = "chat.connect"
	ActionDisconnect         = "chat.disconnect"
	ActionAuthFailed         = "chat.auth_failed"
	ActionCreateConversation = "chat.create_conversation"
	ActionSendMessage        = "chat.send_message"
	ActionAccessDenied       = "chat.access_denied"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldActorID  = "actor_id"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger. The actor
// gets its own key because connection loggers already carry user_id.
func Log(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldActorID, userID)
	if targetID != "" {
		evt = evt.Str(FieldTargetID, targetID)
	}
	evt.Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, userID, targetID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldActorID, userID).
		Str(FieldTargetID, targetID).
		Str(FieldDetail, detail).
		Msg(msg)
}
