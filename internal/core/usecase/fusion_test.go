package usecase

import (
	"math"
	"reflect"
	"testing"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

func scoresByID(nodes []domain.FusedNode) map[string]float64 {
	out := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n.Score
	}
	return out
}

func TestFuseWeightedScoreArithmetic(t *testing.T) {
	results := []domain.RetrievalResult{
		{Strategy: "vector", Nodes: []domain.EvidenceNode{node("n1", "a", 0.9), node("n2", "b", 0.5)}},
		{Strategy: "lexical", Nodes: []domain.EvidenceNode{node("n2", "b", 0.8), node("n3", "c", 0.6)}},
	}
	fused := Fuse(results, FusionOptions{
		Rule:    domain.FusionWeightedScore,
		Weights: map[string]float64{"vector": 1.0, "lexical": 0.5},
	})

	scores := scoresByID(fused)
	want := map[string]float64{"n1": 1.0, "n2": 0.5, "n3": 0}
	for id, w := range want {
		if math.Abs(scores[id]-w) > 1e-9 {
			t.Fatalf("expected %s=%.3f, got %.6f", id, w, scores[id])
		}
	}
	if fused[0].ID != "n1" || fused[1].ID != "n2" || fused[2].ID != "n3" {
		t.Fatalf("unexpected order: %s %s %s", fused[0].ID, fused[1].ID, fused[2].ID)
	}
	if !reflect.DeepEqual(fused[1].RetrievedBy, []string{"vector", "lexical"}) {
		t.Fatalf("expected merged retrieved_by, got %v", fused[1].RetrievedBy)
	}
}

func TestFuseWeightedScoreRanksSharedNodeAboveWhenCombinedHigher(t *testing.T) {
	results := []domain.RetrievalResult{
		{Strategy: "vector", Nodes: []domain.EvidenceNode{node("n1", "a", 0.9), node("n2", "b", 0.5)}},
		{Strategy: "lexical", Nodes: []domain.EvidenceNode{node("n2", "b", 0.8), node("n3", "c", 0.6)}},
	}
	fused := Fuse(results, FusionOptions{
		Rule:    domain.FusionWeightedScore,
		Weights: map[string]float64{"vector": 1.0, "lexical": 1.5},
	})
	if fused[0].ID != "n2" {
		t.Fatalf("expected n2 first when its combined score exceeds n1, got %s", fused[0].ID)
	}
}

func TestFuseReciprocalRank(t *testing.T) {
	results := []domain.RetrievalResult{
		{Strategy: "semantic", Nodes: []domain.EvidenceNode{node("doc-1", "a", 0.9), node("doc-2", "b", 0.8)}},
		{Strategy: "lexical", Nodes: []domain.EvidenceNode{node("doc-2", "b", 1.0), node("doc-3", "c", 0.7)}},
	}
	fused := Fuse(results, FusionOptions{Rule: domain.FusionReciprocalRank, RRFK: 60})
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused nodes, got %d", len(fused))
	}
	if fused[0].ID != "doc-2" {
		t.Fatalf("expected doc-2 first after RRF fusion, got %s", fused[0].ID)
	}
	want := 1.0/62 + 1.0/61
	if math.Abs(fused[0].Score-want) > 1e-12 {
		t.Fatalf("expected rrf score %.6f, got %.6f", want, fused[0].Score)
	}
	if fused[0].Relevance != 1.0 {
		t.Fatalf("expected relevance to keep best raw score, got %.3f", fused[0].Relevance)
	}
}

func TestFuseMissingWeightDefaultsToOne(t *testing.T) {
	results := []domain.RetrievalResult{{Strategy: "pattern", Nodes: []domain.EvidenceNode{node("a", "x", 0.7)}}}
	fused := Fuse(results, FusionOptions{Rule: domain.FusionReciprocalRank, RRFK: 10, Weights: map[string]float64{"other": 3}})
	if math.Abs(fused[0].Score-1.0/11) > 1e-12 {
		t.Fatalf("expected weight 1.0, got score %.6f", fused[0].Score)
	}
}

func TestFuseTieBreakByRankThenInsertion(t *testing.T) {
	results := []domain.RetrievalResult{
		{Strategy: "s1", Nodes: []domain.EvidenceNode{node("b", "b", 0.5), node("c", "c", 0.4)}},
		{Strategy: "s2", Nodes: []domain.EvidenceNode{node("a", "a", 0.5), node("d", "d", 0.4)}},
	}
	fused := Fuse(results, FusionOptions{Rule: domain.FusionReciprocalRank})
	got := []string{fused[0].ID, fused[1].ID, fused[2].ID, fused[3].ID}
	if !reflect.DeepEqual(got, []string{"b", "a", "c", "d"}) {
		t.Fatalf("unexpected tie-break order: %v", got)
	}
}

func TestFuseDeterministic(t *testing.T) {
	results := []domain.RetrievalResult{
		{Strategy: "semantic", Nodes: []domain.EvidenceNode{node("x", "1", 0.3), node("y", "2", 0.3), node("z", "3", 0.2)}},
		{Strategy: "lexical", Nodes: []domain.EvidenceNode{node("z", "3", 0.9), node("y", "2", 0.9)}},
		{Strategy: "pattern", Nodes: []domain.EvidenceNode{node("w", "4", 0.5)}},
	}
	opts := FusionOptions{Rule: domain.FusionWeightedScore, Weights: map[string]float64{"lexical": 0.7}, Dedup: true}
	first := Fuse(results, opts)
	for i := 0; i < 20; i++ {
		if got := Fuse(results, opts); !reflect.DeepEqual(first, got) {
			t.Fatalf("fusion not deterministic on run %d", i)
		}
	}
}

func TestFuseNeverRepeatsIDs(t *testing.T) {
	results := []domain.RetrievalResult{
		{Strategy: "s1", Nodes: []domain.EvidenceNode{node("a", "1", 1), node("b", "2", 0.5), node("a", "1", 0.2)}},
		{Strategy: "s2", Nodes: []domain.EvidenceNode{node("b", "2", 0.4), node("a", "1", 0.3)}},
	}
	for _, rule := range []domain.FusionRule{domain.FusionReciprocalRank, domain.FusionWeightedScore} {
		for _, dedup := range []bool{false, true} {
			seen := map[string]bool{}
			for _, n := range Fuse(results, FusionOptions{Rule: rule, Dedup: dedup}) {
				if seen[n.ID] {
					t.Fatalf("duplicate id %s (rule=%s dedup=%v)", n.ID, rule, dedup)
				}
				seen[n.ID] = true
			}
		}
	}
}

func TestFuseDedupCollapsesIdenticalText(t *testing.T) {
	results := []domain.RetrievalResult{
		{Strategy: "s1", Nodes: []domain.EvidenceNode{node("a", "same text", 0.9), {Text: "anon", Score: 0.1}}},
		{Strategy: "s2", Nodes: []domain.EvidenceNode{node("b", "same text", 0.8), {Text: "anon", Score: 0.2}}},
	}

	withDedup := Fuse(results, FusionOptions{Rule: domain.FusionReciprocalRank, Dedup: true})
	if len(withDedup) != 2 {
		t.Fatalf("expected 2 nodes after dedup, got %d", len(withDedup))
	}
	if withDedup[0].ID != "a" || !reflect.DeepEqual(withDedup[0].RetrievedBy, []string{"s1", "s2"}) {
		t.Fatalf("expected higher scored copy with merged strategies, got %+v", withDedup[0])
	}

	withoutDedup := Fuse(results, FusionOptions{Rule: domain.FusionReciprocalRank})
	if len(withoutDedup) != 4 {
		t.Fatalf("expected 4 nodes without dedup, got %d", len(withoutDedup))
	}
}

func TestFuseEmptyInput(t *testing.T) {
	if got := Fuse(nil, FusionOptions{}); len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}
