package usecase

import (
	"sort"

	"recipechat/internal/adapter/analyzer"
	"recipechat/internal/domain"
)

// PackUseCase fits retrieved candidates into the prompt's token budget.
type PackUseCase struct {
	tokenizer *analyzer.Tokenizer
}

// NewPackUseCase creates a new pack use case.
func NewPackUseCase(tokenizer *analyzer.Tokenizer) *PackUseCase {
	return &PackUseCase{tokenizer: tokenizer}
}

// PackedCandidates is the subset of candidates sent to the synthesizer.
type PackedCandidates struct {
	Candidates   []domain.Candidate
	BudgetTokens int
	UsedTokens   int
	Dropped      int
}

// Pack selects candidates greedily by relevance per token until budget is
// exhausted and returns them in their original distance order. The nearest
// candidate is always kept, truncated if it alone exceeds the budget.
// budget <= 0 keeps everything.
func (u *PackUseCase) Pack(candidates []domain.Candidate, budget int) PackedCandidates {
	if len(candidates) == 0 {
		return PackedCandidates{Candidates: []domain.Candidate{}, BudgetTokens: budget}
	}

	type rankedCandidate struct {
		pos     int
		utility float64
		tokens  int
	}

	ranked := make([]rankedCandidate, 0, len(candidates))
	total := 0
	for i, c := range candidates {
		tokens := u.tokenizer.CountTokens(c.Name + " " + c.Text)
		if tokens == 0 {
			tokens = 1
		}
		total += tokens
		// Relevance = 1/(1+distance) so both metrics map into (0, 1]
		relevance := 1 / (1 + c.Distance)
		ranked = append(ranked, rankedCandidate{pos: i, utility: relevance / float64(tokens), tokens: tokens})
	}

	if budget <= 0 || total <= budget {
		out := append([]domain.Candidate(nil), candidates...)
		return PackedCandidates{Candidates: out, BudgetTokens: budget, UsedTokens: total}
	}

	selected := make(map[int]bool)
	used := 0

	first := candidates[0]
	if ranked[0].tokens > budget {
		if room := budget - u.tokenizer.CountTokens(first.Name); room > 0 {
			first.Text = u.tokenizer.Truncate(first.Text, room)
		} else {
			first.Text = ""
		}
		ranked[0].tokens = u.tokenizer.CountTokens(first.Name + " " + first.Text)
	}
	selected[0] = true
	used += ranked[0].tokens

	rest := ranked[1:]
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].utility > rest[j].utility
	})
	for _, rc := range rest {
		if used+rc.tokens > budget {
			continue
		}
		selected[rc.pos] = true
		used += rc.tokens
	}

	packed := make([]domain.Candidate, 0, len(selected))
	packed = append(packed, first)
	for i := 1; i < len(candidates); i++ {
		if selected[i] {
			packed = append(packed, candidates[i])
		}
	}

	return PackedCandidates{
		Candidates:   packed,
		BudgetTokens: budget,
		UsedTokens:   used,
		Dropped:      len(candidates) - len(packed),
	}
}
