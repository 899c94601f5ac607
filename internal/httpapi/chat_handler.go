package httpapi

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"recipechat/internal/domain"
)

// maxQueryLength bounds a single chat message in bytes.
const maxQueryLength = 4096

// ChatHandler serves the conversation endpoints. The transcript is owned by
// the client and sent back with every message.
type ChatHandler struct {
	chat    Conversation
	index   Counter
	timeout time.Duration
	logger  *slog.Logger
}

// NewChatHandler creates a new chat handler. A positive timeout is the
// deadline for answering one message; the connection closing does not
// cancel a request, so this is what stops backend calls.
func NewChatHandler(chat Conversation, index Counter, timeout time.Duration, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{chat: chat, index: index, timeout: timeout, logger: logger.With("component", "http")}
}

// Register sets up the chat routes.
func (h *ChatHandler) Register(router fiber.Router) {
	api := router.Group("/api/v1")
	api.Post("/chat", h.Chat)
	api.Get("/health", h.Health)
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Query string                    `json:"query"`
	Turns []domain.ConversationTurn `json:"turns"`
}

// ChatResponse is the reply and the transcript including this turn.
type ChatResponse struct {
	Reply string                    `json:"reply"`
	Turns []domain.ConversationTurn `json:"turns"`
}

// Chat answers one message. Pipeline failures still yield 200 with the
// fallback reply; the new turn is flagged failed in the transcript.
func (h *ChatHandler) Chat(c fiber.Ctx) error {
	var body ChatRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(body.Query) > maxQueryLength {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "query too long"})
	}

	ctx := c.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	reply, turns := h.chat.HandleMessage(ctx, strings.TrimSpace(body.Query), body.Turns)
	if n := len(turns); n > 0 && n > len(body.Turns) && turns[n-1].Failed {
		h.logger.Warn("answered with fallback reply", "request_id", requestID(c))
	}

	return c.JSON(ChatResponse{Reply: reply, Turns: turns})
}

// Health reports whether the index is reachable and how many recipes it holds.
func (h *ChatHandler) Health(c fiber.Ctx) error {
	count, err := h.index.Count(c.Context())
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"recipes": count,
	})
}
