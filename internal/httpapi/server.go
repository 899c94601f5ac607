package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"recipechat/internal/domain"
)

// HeaderRequestID carries the per-request id in both directions.
const HeaderRequestID = "X-Request-ID"

// Conversation answers one message against a caller-owned transcript.
type Conversation interface {
	HandleMessage(ctx context.Context, query string, prior []domain.ConversationTurn) (string, []domain.ConversationTurn)
}

// Counter reports how many recipes the index holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Config configures the Fiber app.
type Config struct {
	AppName      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewApp builds the Fiber app with request ids, request logging and panic
// recovery, and registers the chat routes.
func NewApp(cfg Config, handler *ChatHandler, logger *slog.Logger) *fiber.App {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AppName == "" {
		cfg.AppName = "recipechat"
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	app.Use(recover.New())
	app.Use(RequestID())
	app.Use(RequestLogger(logger))

	handler.Register(app)
	return app
}

// RequestID reuses the caller's X-Request-ID or assigns a new uuid, and
// echoes it on the response.
func RequestID() fiber.Handler {
	return func(c fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Locals("request_id", id)
		c.Set(HeaderRequestID, id)
		return c.Next()
	}
}

// RequestLogger logs every request once it has been handled.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Fiber reuses these buffers once the handler returns.
		method := c.Method()
		path := c.Path()

		err := c.Next()

		logger.Info("http request",
			"request_id", requestID(c),
			"method", method,
			"path", path,
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}

func requestID(c fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}
