package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"recipechat/internal/domain"
	"recipechat/internal/port"
)

// State is a step of the conversation state machine.
type State int

const (
	StateIdle State = iota
	StateClassifying
	StateRetrieving
	StateSynthesizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClassifying:
		return "classifying"
	case StateRetrieving:
		return "retrieving"
	case StateSynthesizing:
		return "synthesizing"
	}
	return "unknown"
}

// PipelineConfig holds the per-turn settings of a Pipeline.
type PipelineConfig struct {
	TopK          int
	Metric        domain.Metric
	Greeting      string
	FallbackReply string
}

// Pipeline sequences classify, retrieve and synthesize for one message.
// It holds no per-session state and is safe for concurrent use.
type Pipeline struct {
	classifier  port.Classifier
	retriever   port.Retriever
	synthesizer port.Synthesizer
	cfg         PipelineConfig
	logger      *slog.Logger
}

// NewPipeline creates a pipeline from its three capabilities.
func NewPipeline(
	classifier port.Classifier,
	retriever port.Retriever,
	synthesizer port.Synthesizer,
	cfg PipelineConfig,
	logger *slog.Logger,
) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Metric == "" {
		cfg.Metric = domain.Cosine
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		classifier:  classifier,
		retriever:   retriever,
		synthesizer: synthesizer,
		cfg:         cfg,
		logger:      logger.With("component", "pipeline"),
	}
}

// Result describes one pass through the state machine. Trace lists the
// states visited, starting and ending with StateIdle. Err is the first
// failure; Reply is then the fallback reply.
type Result struct {
	Reply      string
	Label      domain.QueryClassification
	Candidates []domain.Candidate
	Trace      []State
	Err        error
}

// Failed reports whether the reply is the fallback reply.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Run answers query without touching any transcript. An empty query is
// answered with the greeting and no backend call.
func (p *Pipeline) Run(ctx context.Context, query string) Result {
	start := time.Now()
	res := Result{Trace: []State{StateIdle}}

	if strings.TrimSpace(query) == "" {
		res.Reply = p.cfg.Greeting
		return res
	}

	state := StateClassifying
	for state != StateIdle {
		res.Trace = append(res.Trace, state)

		switch state {
		case StateClassifying:
			label, err := p.classifier.Classify(ctx, query)
			if err != nil {
				return p.fail(res, err)
			}
			res.Label = label
			if label == domain.RelevantRecipe {
				state = StateRetrieving
			} else {
				state = StateSynthesizing
			}

		case StateRetrieving:
			candidates, err := p.retriever.Retrieve(ctx, query, p.cfg.TopK, p.cfg.Metric)
			if err != nil {
				return p.fail(res, err)
			}
			res.Candidates = candidates
			state = StateSynthesizing

		case StateSynthesizing:
			reply, err := p.synthesizer.Synthesize(ctx, query, res.Candidates)
			if err != nil {
				return p.fail(res, err)
			}
			res.Reply = reply
			state = StateIdle
		}
	}

	res.Trace = append(res.Trace, StateIdle)
	p.logger.Info("turn answered",
		"label", res.Label,
		"candidates", len(res.Candidates),
		"elapsed", time.Since(start),
	)
	return res
}

func (p *Pipeline) fail(res Result, err error) Result {
	p.logger.Error("turn failed",
		"state", res.Trace[len(res.Trace)-1],
		"label", res.Label,
		"error", err,
	)
	res.Trace = append(res.Trace, StateIdle)
	res.Err = err
	res.Reply = p.cfg.FallbackReply
	res.Candidates = nil
	return res
}

// HandleMessage answers query and returns the reply together with a new
// transcript: prior followed by this turn. A failed turn is recorded with
// Failed set and the fallback reply. An empty query leaves the transcript
// unchanged. prior is never modified.
func (p *Pipeline) HandleMessage(ctx context.Context, query string, prior []domain.ConversationTurn) (string, []domain.ConversationTurn) {
	res := p.Run(ctx, query)

	turns := make([]domain.ConversationTurn, len(prior), len(prior)+1)
	copy(turns, prior)

	if strings.TrimSpace(query) == "" {
		return res.Reply, turns
	}

	turns = append(turns, domain.ConversationTurn{
		UserQuery: query,
		BotReply:  res.Reply,
		Failed:    res.Failed(),
	})
	return res.Reply, turns
}
