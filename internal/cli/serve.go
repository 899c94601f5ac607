package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"
	"recipechat/internal/app"
	"recipechat/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat HTTP API",
	Long: `Start an HTTP server exposing:
  POST /api/v1/chat    {"query": "...", "turns": [...]} -> {"reply": "...", "turns": [...]}
  GET  /api/v1/health  index status and recipe count

Clients own the transcript and send it back with every message.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.LoadIndex(cmd.Context()); err != nil {
		return err
	}
	gen, err := app.NewGenerator(a.Config)
	if err != nil {
		return err
	}

	handler := httpapi.NewChatHandler(a.Pipeline(gen), a.Index, a.Config.Server.RequestTimeout, a.Logger)
	server := httpapi.NewApp(httpapi.Config{
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}, handler, a.Logger)

	addr := a.Config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", addr, "llm", gen.ModelName(), "embedding", a.Embedder.ModelName())
		errCh <- server.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
	}

	a.Logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.ShutdownWithContext(ctx)
}
