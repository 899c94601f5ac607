package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"recipechat/internal/app"
	"recipechat/internal/domain"
	"recipechat/internal/usecase"
)

var chatTranscript string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Read messages from stdin and answer each one, keeping the session
transcript in memory. Type "exit" or press Ctrl-D to end the session.

Examples:
  recipechat chat
  recipechat chat --transcript session.json`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatTranscript, "transcript", "", "write the transcript as JSON to this file on exit")
}

func runChat(cmd *cobra.Command, args []string) error {
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

	session := uuid.New().String()
	log := logger.With("session", session)
	pipeline := a.Pipeline(gen, usecase.WithFallbackObserver(func(f domain.ClassificationFallback) {
		log.Info("classification fallback", "query", f.Query, "raw_label", f.RawLabel)
	}))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, a.Config.Chat.Greeting)

	var turns []domain.ConversationTurn
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			break
		}

		var reply string
		reply, turns = pipeline.HandleMessage(cmd.Context(), line, turns)
		fmt.Fprintln(out, reply)

		if cmd.Context().Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	log.Info("session ended", "turns", len(turns))
	if chatTranscript != "" {
		return writeTranscript(chatTranscript, session, turns)
	}
	return nil
}

func writeTranscript(path, session string, turns []domain.ConversationTurn) error {
	data, err := json.MarshalIndent(struct {
		Session string                    `json:"session"`
		Turns   []domain.ConversationTurn `json:"turns"`
	}{session, turns}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
