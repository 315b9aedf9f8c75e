package advisor

import (
	"context"
	"log/slog"
)

// MaxSelection is the largest number of advisors consulted in one turn.
const MaxSelection = 3

// Selection is the ordered list of ordinary advisors answering a turn.
type Selection []ID

// Strings returns the advisor tokens in order.
func (s Selection) Strings() []string {
	out := make([]string, len(s))
	for i, id := range s {
		out[i] = id.String()
	}
	return out
}

// Fallback returns the fixed trio used whenever selection fails.
func Fallback() Selection {
	return Selection{Zhuge, Dingzui, Fali}
}

// Classifier issues the structured selection call.
type Classifier interface {
	Classify(ctx context.Context, persona, prompt string) ([]string, error)
}

// Selector chooses which ordinary advisors respond to a turn.
type Selector struct {
	classifier Classifier
	registry   *Registry
	logger     *slog.Logger
}

// NewSelector creates a selector.
func NewSelector(classifier Classifier, registry *Registry, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{classifier: classifier, registry: registry, logger: logger}
}

// Select never fails: any classification error or empty result yields Fallback.
func (s *Selector) Select(ctx context.Context, scenario, opponentLine string) Selection {
	prompt := "情景：" + scenario + "\n对方：" + opponentLine
	items, err := s.classifier.Classify(ctx, s.registry.SelectorInstructions(), prompt)
	if err != nil {
		s.logger.Warn("advisor selection failed, using fallback", "error", err)
		return Fallback()
	}

	sel := Filter(items)
	if len(sel) == 0 {
		s.logger.Warn("advisor selection returned no usable ids, using fallback", "items", items)
		return Fallback()
	}
	return sel
}

// Filter keeps known ordinary ids, drops duplicates preserving first
// occurrence, and truncates to MaxSelection.
func Filter(tokens []string) Selection {
	sel := make(Selection, 0, MaxSelection)
	var seen [idCount]bool
	for _, tok := range tokens {
		id, err := ParseID(tok)
		if err != nil || !id.IsOrdinary() || seen[id] {
			continue
		}
		seen[id] = true
		sel = append(sel, id)
		if len(sel) == MaxSelection {
			break
		}
	}
	return sel
}
