package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/dispatcher"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/identity"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

// WSHandler upgrades authenticated requests and connects the resulting
// sockets to the hub and the dispatcher.
type WSHandler struct {
	hub        *hub.Hub
	dispatcher *dispatcher.Dispatcher
	resolver   identity.Resolver
	wsCfg      config.WebSocketConfig
	upgrader   websocket.Upgrader
}

// NewWSHandler also installs the hub's unregister hook, so every connection
// that leaves the hub for any reason gets a $disconnect.
func NewWSHandler(h *hub.Hub, d *dispatcher.Dispatcher, resolver identity.Resolver, wsCfg config.WebSocketConfig, allowedOrigins []string) *WSHandler {
	handler := &WSHandler{
		hub:        h,
		dispatcher: d,
		resolver:   resolver,
		wsCfg:      wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      checkOrigin(allowedOrigins),
		},
	}
	h.OnUnregister(handler.onClientGone)
	return handler
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	path := h.wsCfg.Path
	if path == "" {
		path = "/ws"
	}
	r.GET(path, h.HandleWebSocket)
}

// HandleWebSocket requires a websocket upgrade from a resolved user. The
// connection is registered before $connect runs, and frames are read only
// after $connect has completed.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.Header("Connection", "close")
		response.BadRequest(c, "websocket upgrade required")
		return
	}

	userID, err := h.resolver.Resolve(c.Request)
	if err != nil {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", "", err.Error(), "websocket authentication failed")
		response.Unauthorized(c, "authentication required")
		return
	}
	c.Set(log.FieldUserID, userID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered the request.
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(domain.NewConnectionID(), userID, h.hub, conn, h.wsCfg)
	if _, err := h.hub.Register(client); err != nil {
		l.Warn().Err(err).Msg("rejecting connection")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.WritePump()

	cc := dispatcher.ConnContext{ConnectionID: client.ID, UserID: userID}
	h.dispatcher.Invoke(client.Context(), cc, domain.ActionConnect, nil)

	go client.ReadPump(h.handleFrame)
}

func (h *WSHandler) handleFrame(client *hub.Client, message []byte) {
	cc := dispatcher.ConnContext{ConnectionID: client.ID, UserID: client.UserID}
	h.dispatcher.HandleFrame(client.Context(), cc, message)
}

func (h *WSHandler) onClientGone(client *hub.Client) {
	cc := dispatcher.ConnContext{ConnectionID: client.ID, UserID: client.UserID}
	h.dispatcher.Dispatch(client.Context(), cc, domain.ActionDisconnect, nil)
}

// checkOrigin allows every origin when allowed is empty or contains "*".
func checkOrigin(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
