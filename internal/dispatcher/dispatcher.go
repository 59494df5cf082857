// Package dispatcher routes decoded frames to action handlers.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-chat/internal/codec"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// ConnContext is the trusted identity of the connection a frame arrived on.
type ConnContext struct {
	ConnectionID string
	UserID       string
}

// Request is what a handler sees: the client's data paired with the
// connection's identity. UserID always comes from the connection, never
// from the payload.
type Request struct {
	Action       string
	ConnectionID string
	UserID       string
	UUID         string
	Data         json.RawMessage
}

// Handler serves one action. A non-nil frame is sent back to the originating
// connection; errors are turned into error frames.
type Handler func(ctx context.Context, req *Request) (*domain.OutboundFrame, error)

// Routes lists the handler for every known action. Nil entries are treated
// as unknown actions.
type Routes struct {
	Connect            Handler
	Disconnect         Handler
	CreateConversation Handler
	GetConversations   Handler
	GetMessages        Handler
	SendMessage        Handler
	Ping               Handler
}

// Replier sends an encoded frame to one connection.
type Replier interface {
	Send(connectionID string, payload []byte) error
}

type Dispatcher struct {
	replier Replier
	table   map[string]Handler
	wg      sync.WaitGroup
}

func New(replier Replier, routes Routes) *Dispatcher {
	table := make(map[string]Handler)
	for action, h := range map[string]Handler{
		domain.ActionConnect:            routes.Connect,
		domain.ActionDisconnect:         routes.Disconnect,
		domain.ActionCreateConversation: routes.CreateConversation,
		domain.ActionGetConversations:   routes.GetConversations,
		domain.ActionGetMessages:        routes.GetMessages,
		domain.ActionSendMessage:        routes.SendMessage,
		domain.ActionPing:               routes.Ping,
	} {
		if h != nil {
			table[action] = h
		}
	}
	return &Dispatcher{replier: replier, table: table}
}

// HandleFrame decodes raw and hands it to its handler without waiting for
// the result. Decode failures and unknown actions are answered immediately.
func (d *Dispatcher) HandleFrame(ctx context.Context, cc ConnContext, raw []byte) {
	frame, err := codec.Decode(raw)
	if err != nil {
		var action string
		var data json.RawMessage
		if frame != nil {
			action, data = frame.Action, frame.Data
		}
		d.reject(log.With(ctx, log.FieldAction, action), cc, err, action, codec.CorrelationID(data))
		return
	}

	// Lifecycle actions are raised by the gateway, never by clients.
	if _, ok := d.table[frame.Action]; !ok || domain.IsLifecycle(frame.Action) {
		d.reject(log.With(ctx, log.FieldAction, frame.Action), cc, domain.ErrUnknownAction, frame.Action, codec.CorrelationID(frame.Data))
		return
	}

	d.Dispatch(ctx, cc, frame.Action, frame.Data)
}

// Dispatch runs the handler for action in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, cc ConnContext, action string, data json.RawMessage) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Invoke(ctx, cc, action, data)
	}()
}

// Invoke runs the handler for action on the calling goroutine and sends its
// reply. It reports whether the handler succeeded.
func (d *Dispatcher) Invoke(ctx context.Context, cc ConnContext, action string, data json.RawMessage) bool {
	req := &Request{
		Action:       action,
		ConnectionID: cc.ConnectionID,
		UserID:       cc.UserID,
		UUID:         codec.CorrelationID(data),
		Data:         data,
	}
	// The connection's logger already names the connection and its user.
	ctx = log.With(ctx, log.FieldAction, action)

	h, ok := d.table[action]
	if !ok {
		d.reject(ctx, cc, domain.ErrUnknownAction, action, req.UUID)
		return false
	}

	out, err := d.call(ctx, h, req)
	if err != nil {
		// The connection is already gone when a disconnect fails.
		if action == domain.ActionDisconnect {
			logRejection(ctx, err, req.UUID)
			return false
		}
		d.reject(ctx, cc, err, action, req.UUID)
		return false
	}
	if out != nil {
		d.reply(ctx, cc.ConnectionID, out)
	}
	return true
}

func (d *Dispatcher) call(ctx context.Context, h Handler, req *Request) (out *domain.OutboundFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			l := log.Ctx(ctx)
			l.Error().Interface("panic", r).Msg("handler panicked")
			err = domain.PersistenceError("handler", fmt.Errorf("panic: %v", r))
		}
	}()
	return h(ctx, req)
}

func (d *Dispatcher) reject(ctx context.Context, cc ConnContext, err error, action, uuid string) {
	logRejection(ctx, err, uuid)
	d.reply(ctx, cc.ConnectionID, domain.NewErrorFrame(err, action, uuid))
}

func logRejection(ctx context.Context, err error, uuid string) {
	l := log.Ctx(ctx)
	code := domain.CodeOf(err)
	evt := l.Warn()
	if code == domain.CodePersistenceFailure {
		evt = l.Error()
	}
	evt.Err(err).
		Str(log.FieldErrorCode, string(code)).
		Str(log.FieldCorrelationID, uuid).
		Msg("request rejected")
}

func (d *Dispatcher) reply(ctx context.Context, connectionID string, frame *domain.OutboundFrame) {
	payload, err := codec.Encode(frame)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldAction, frame.Action).Msg("failed to encode reply")
		return
	}
	if err := d.replier.Send(connectionID, payload); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldConnectionID, connectionID).Msg("reply not delivered")
	}
}

// Wait blocks until every dispatched handler has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
