package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"recipechat/internal/adapter/analyzer"
	"recipechat/internal/domain"
	"recipechat/internal/port"
)

var _ port.Synthesizer = (*SynthesizeUseCase)(nil)

// SynthesizeUseCase writes the reply for a query, grounded in the supplied
// candidates when there are any.
type SynthesizeUseCase struct {
	generator     port.Generator
	packer        *PackUseCase
	prompt        *prompt
	contextTokens int
	timeout       time.Duration
	logger        *slog.Logger
}

// NewSynthesizeUseCase creates a synthesizer. contextTokens bounds the
// candidate text placed in the prompt (<= 0 disables packing).
func NewSynthesizeUseCase(generator port.Generator, contextTokens int, timeout time.Duration, logger *slog.Logger) *SynthesizeUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SynthesizeUseCase{
		generator:     generator,
		packer:        NewPackUseCase(analyzer.NewTokenizer(false)),
		prompt:        mustLoadPrompt("synthesize"),
		contextTokens: contextTokens,
		timeout:       timeout,
		logger:        logger.With("component", "synthesizer"),
	}
}

// Synthesize never returns an empty reply: a failed or blank generation is
// a *domain.SynthesisError.
func (u *SynthesizeUseCase) Synthesize(ctx context.Context, query string, candidates []domain.Candidate) (string, error) {
	packed := u.packer.Pack(candidates, u.contextTokens)
	if packed.Dropped > 0 {
		u.logger.Debug("dropped candidates over context budget", "dropped", packed.Dropped, "budget", packed.BudgetTokens)
	}

	text, err := u.prompt.render(PromptData{Query: query, Candidates: packed.Candidates})
	if err != nil {
		return "", &domain.SynthesisError{Err: err}
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	reply, err := u.generator.Generate(ctx, text, u.prompt.role)
	if err != nil {
		return "", &domain.SynthesisError{Err: err}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &domain.SynthesisError{Err: domain.ErrEmptyGeneration}
	}
	return reply, nil
}
