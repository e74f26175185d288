package usecase

import (
	"sort"
	"strconv"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

const defaultRRFK = 60

type FusionOptions struct {
	Rule    domain.FusionRule
	Weights map[string]float64
	RRFK    int
	Dedup   bool
}

func (o FusionOptions) weight(strategy string) float64 {
	if w, ok := o.Weights[strategy]; ok {
		return w
	}
	return 1.0
}

type fusedCandidate struct {
	node        domain.EvidenceNode
	score       float64
	relevance   float64
	bestRank    int
	order       int
	retrievedBy []string
}

func (c *fusedCandidate) markRetrievedBy(strategy string) {
	for _, s := range c.retrievedBy {
		if s == strategy {
			return
		}
	}
	c.retrievedBy = append(c.retrievedBy, strategy)
}

// Fuse merges per-strategy ranked lists into one de-duplicated list. Nodes
// sharing an ID always collapse so their contributions add up. With Dedup
// enabled, nodes without an ID or with identical text also collapse, keeping
// the higher scored copy.
func Fuse(results []domain.RetrievalResult, opts FusionOptions) []domain.FusedNode {
	k := opts.RRFK
	if k <= 0 {
		k = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate)
	var ordered []*fusedCandidate
	anonymous := 0

	for _, result := range results {
		w := opts.weight(result.Strategy)
		normalize := scoreNormalizer(result.Nodes)
		for i, node := range result.Nodes {
			rank := i + 1
			var contribution float64
			if opts.Rule == domain.FusionWeightedScore {
				contribution = w * normalize(node.Score)
			} else {
				contribution = w / float64(k+rank)
			}

			key := node.ID
			if key == "" {
				anonymous++
				key = "\x00anon:" + strconv.Itoa(anonymous)
			}
			cand, ok := acc[key]
			if !ok {
				cand = &fusedCandidate{node: node, bestRank: rank, order: len(ordered)}
				acc[key] = cand
				ordered = append(ordered, cand)
			}
			cand.score += contribution
			cand.relevance = max(cand.relevance, clamp01(node.Score))
			cand.bestRank = min(cand.bestRank, rank)
			cand.node = preferRicherNode(cand.node, node)
			cand.markRetrievedBy(result.Strategy)
		}
	}

	if opts.Dedup {
		ordered = collapseByText(ordered)
	}

	out := make([]domain.FusedNode, 0, len(ordered))
	sort.SliceStable(ordered, func(i, j int) bool { return candidateLess(ordered[i], ordered[j]) })
	for _, c := range ordered {
		node := c.node
		node.Score = c.score
		out = append(out, domain.FusedNode{
			EvidenceNode: node,
			Relevance:    c.relevance,
			BestRank:     c.bestRank,
			RetrievedBy:  c.retrievedBy,
		})
	}
	return out
}

func candidateLess(a, b *fusedCandidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.bestRank != b.bestRank {
		return a.bestRank < b.bestRank
	}
	return a.order < b.order
}

// collapseByText merges candidates with identical text into the better
// scored one.
func collapseByText(cands []*fusedCandidate) []*fusedCandidate {
	byText := make(map[string]*fusedCandidate, len(cands))
	out := cands[:0:0]
	for _, c := range cands {
		fp := Fingerprint([]byte(c.node.Text))
		kept, ok := byText[fp]
		if !ok {
			byText[fp] = c
			out = append(out, c)
			continue
		}
		winner, loser := kept, c
		if candidateLess(c, kept) {
			winner, loser = c, kept
		}
		for _, s := range loser.retrievedBy {
			winner.markRetrievedBy(s)
		}
		winner.relevance = max(winner.relevance, loser.relevance)
		winner.bestRank = min(winner.bestRank, loser.bestRank)
		winner.order = min(winner.order, loser.order)
		if winner != kept {
			*kept = *winner
		}
	}
	return out
}

// scoreNormalizer min-max rescales one strategy's scores to [0,1]. A
// constant list maps to 1 when positive and 0 otherwise.
func scoreNormalizer(nodes []domain.EvidenceNode) func(float64) float64 {
	if len(nodes) == 0 {
		return func(float64) float64 { return 0 }
	}
	minScore, maxScore := nodes[0].Score, nodes[0].Score
	for _, n := range nodes[1:] {
		minScore = min(minScore, n.Score)
		maxScore = max(maxScore, n.Score)
	}
	rangeScore := maxScore - minScore
	return func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}
}

func preferRicherNode(current, candidate domain.EvidenceNode) domain.EvidenceNode {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	md := &current.Metadata
	if md.Path == "" {
		md.Path = candidate.Metadata.Path
	}
	if md.Title == "" {
		md.Title = candidate.Metadata.Title
	}
	if md.SourceID == "" {
		md.SourceID = candidate.Metadata.SourceID
	}
	if md.Fingerprint == "" {
		md.Fingerprint = candidate.Metadata.Fingerprint
	}
	if md.Extra == nil && candidate.Metadata.Extra != nil {
		md.Extra = candidate.Metadata.Extra
	}
	return current
}

func trimFused(nodes []domain.FusedNode, limit int) []domain.FusedNode {
	if limit <= 0 || len(nodes) <= limit {
		return nodes
	}
	return nodes[:limit]
}
