package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/presence"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

const defaultPageSize = 20

// Handler serves the read-only HTTP API.
type Handler struct {
	chatService service.ChatService
	requireAuth gin.HandlerFunc
}

func NewHandler(chatService service.ChatService, resolver middleware.UserResolver) *Handler {
	return &Handler{
		chatService: chatService,
		requireAuth: middleware.RequireAuth(resolver),
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1", h.requireAuth)
	{
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.GET("/users/:id/status", h.UserStatus)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListConversations lists the caller's conversations.
func (h *Handler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	convs, err := h.chatService.ListConversations(ctx, middleware.GetUserID(c))
	if err != nil {
		l.Error().Err(err).Msg("failed to list conversations")
		response.InternalError(c, "failed to list conversations")
		return
	}
	response.Success(c, convs)
}

type listMessagesQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Before string `form:"before"`
}

// ListMessages returns one newest-first page of a conversation.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()

	var q listMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}

	page, err := h.chatService.ListMessages(ctx, middleware.GetUserID(c), domain.GetMessagesRequest{
		ConversationID: c.Param("id"),
		Limit:          q.Limit,
		Before:         q.Before,
	})
	if err != nil {
		writeDomainError(c, err, "failed to list messages")
		return
	}
	response.Page(c, page.Messages, page.NextCursor, page.HasMore)
}

// UserStatus reports the presence of a user.
func (h *Handler) UserStatus(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	status, err := h.chatService.UserStatus(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, presence.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Msg("failed to read presence")
		response.InternalError(c, "failed to read presence")
		return
	}
	response.Success(c, status)
}

func writeDomainError(c *gin.Context, err error, fallback string) {
	code := domain.CodeOf(err)
	switch code {
	case domain.CodeConversationNotFound:
		response.NotFound(c, "conversation not found")
	case domain.CodeNotAParticipant:
		response.Forbidden(c, "not a participant of this conversation")
	case domain.CodeMalformedPayload, domain.CodeMissingFields, domain.CodeEmptyContent:
		msg := err.Error()
		var de *domain.Error
		if errors.As(err, &de) {
			msg = de.Message
		}
		response.Error(c, http.StatusBadRequest, string(code), msg)
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(fallback)
		response.InternalError(c, fallback)
	}
}
