package usecase

import (
	"sort"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

const defaultConfidenceFloor = 0.5

func DefaultModeStrategies() map[domain.RouteMode][]string {
	return map[domain.RouteMode][]string{
		domain.RouteFileLookup: {StrategyFileLookup, StrategyPattern},
		domain.RouteChunk:      {StrategySemantic, StrategyLexical},
		domain.RouteBroad:      {StrategySemantic, StrategyLexical, StrategyPattern},
	}
}

type RouterOptions struct {
	Modes           map[domain.RouteMode][]string
	ConfidenceFloor float64
}

type Router struct {
	retrievers map[string]ports.Retriever
	modes      map[domain.RouteMode][]string
	floor      float64
}

func NewRouter(retrievers []ports.Retriever, opts RouterOptions) *Router {
	byName := make(map[string]ports.Retriever, len(retrievers))
	for _, r := range retrievers {
		if r != nil {
			byName[r.Name()] = r
		}
	}
	modes := DefaultModeStrategies()
	for mode, names := range opts.Modes {
		if len(names) > 0 {
			modes[mode] = names
		}
	}
	floor := opts.ConfidenceFloor
	if floor <= 0 {
		floor = defaultConfidenceFloor
	}
	return &Router{retrievers: byName, modes: modes, floor: floor}
}

// Route selects retrievers for a question. A nil or low-confidence intent
// falls back to text heuristics; an empty selection falls back to chunk mode.
func (r *Router) Route(question string, intent *domain.Intent) ([]ports.Retriever, domain.RoutingDecision) {
	var mode domain.RouteMode
	var reason string
	switch {
	case intent != nil && intent.Confidence >= r.floor:
		mode, reason = modeForIntent(*intent, question)
	case intent != nil:
		mode, reason = heuristicMode(question)
		reason = "low confidence intent, " + reason
	default:
		mode, reason = heuristicMode(question)
	}

	selected := r.resolve(mode)
	if len(selected) == 0 && mode != domain.RouteChunk {
		mode = domain.RouteChunk
		reason += ", no retrievers for mode"
		selected = r.resolve(mode)
	}
	if len(selected) == 0 {
		selected = r.all()
	}

	names := make([]string, len(selected))
	for i, ret := range selected {
		names[i] = ret.Name()
	}
	return selected, domain.RoutingDecision{Mode: mode, Reason: reason, Strategies: names}
}

func (r *Router) resolve(mode domain.RouteMode) []ports.Retriever {
	var out []ports.Retriever
	for _, name := range r.modes[mode] {
		if ret, ok := r.retrievers[name]; ok {
			out = append(out, ret)
		}
	}
	return out
}

func (r *Router) all() []ports.Retriever {
	names := make([]string, 0, len(r.retrievers))
	for name := range r.retrievers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]ports.Retriever, len(names))
	for i, name := range names {
		out[i] = r.retrievers[name]
	}
	return out
}
