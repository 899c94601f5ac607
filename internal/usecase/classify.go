package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"recipechat/internal/domain"
	"recipechat/internal/port"
)

var _ port.Classifier = (*ClassifyUseCase)(nil)

// ClassifyUseCase labels a query with a single text-generation call. It
// keeps no state between calls.
type ClassifyUseCase struct {
	generator  port.Generator
	prompt     *prompt
	timeout    time.Duration
	logger     *slog.Logger
	onFallback func(domain.ClassificationFallback)
}

// ClassifyOption configures a ClassifyUseCase.
type ClassifyOption func(*ClassifyUseCase)

// WithFallbackObserver registers fn to be called for every label that had
// to be coerced to off_topic.
func WithFallbackObserver(fn func(domain.ClassificationFallback)) ClassifyOption {
	return func(u *ClassifyUseCase) { u.onFallback = fn }
}

// WithClassifyLogger sets the logger.
func WithClassifyLogger(logger *slog.Logger) ClassifyOption {
	return func(u *ClassifyUseCase) { u.logger = logger }
}

// NewClassifyUseCase creates a classifier. timeout <= 0 leaves the call
// bounded only by ctx.
func NewClassifyUseCase(generator port.Generator, timeout time.Duration, opts ...ClassifyOption) *ClassifyUseCase {
	u := &ClassifyUseCase{
		generator: generator,
		prompt:    mustLoadPrompt("classify"),
		timeout:   timeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("component", "classifier")
	return u
}

// Classify returns the query's label. Backend failures are returned as
// *domain.ClassificationError; an out-of-enum answer is not an error and
// yields domain.OffTopic.
func (u *ClassifyUseCase) Classify(ctx context.Context, query string) (domain.QueryClassification, error) {
	text, err := u.prompt.render(PromptData{Query: query})
	if err != nil {
		return "", &domain.ClassificationError{Err: err}
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	raw, err := u.generator.Generate(ctx, text, u.prompt.role)
	if err != nil {
		return "", &domain.ClassificationError{Err: err}
	}

	label := ParseLabel(raw)
	if !label.Valid() {
		fallback := domain.ClassificationFallback{Query: query, RawLabel: raw, Coerced: domain.OffTopic}
		u.logger.Warn("classifier returned invalid label", "raw_label", raw, "coerced", domain.OffTopic)
		if u.onFallback != nil {
			u.onFallback(fallback)
		}
		return domain.OffTopic, nil
	}

	u.logger.Debug("classified query", "label", label)
	return label, nil
}

// ParseLabel normalizes a backend answer: surrounding whitespace, quotes
// and punctuation are dropped and case is folded. The result may be invalid.
func ParseLabel(raw string) domain.QueryClassification {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimFunc(s, func(r rune) bool {
		return r != '_' && (unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r))
	})
	return domain.QueryClassification(s)
}
