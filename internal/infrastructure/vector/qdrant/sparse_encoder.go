package qdrant

import (
	"hash/fnv"
	"math"
	"path"
	"sort"
	"strings"
	"unicode"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	docBM25K1      = 1.2
	queryBM25K     = 1.2
	basenameBoost  = 1.5
	dirBoost       = 0.5
	maxSparseTerms = 256
)

// encodeSparseDocument builds a BM25-saturated term vector for a chunk. The
// file name and directory names of the chunk's path count as extra terms.
func encodeSparseDocument(text, itemPath string) sparseVector {
	termFreq := make(map[uint32]float64, 64)
	appendTermFreq(termFreq, tokenizeAlphaNum(text), 1.0)
	if itemPath != "" {
		appendTermFreq(termFreq, tokenizeAlphaNum(path.Base(itemPath)), basenameBoost)
		appendTermFreq(termFreq, tokenizeAlphaNum(path.Dir(itemPath)), dirBoost)
	}
	return termFreqToSparse(termFreq, docBM25K1)
}

func encodeSparseQuery(query string) sparseVector {
	termFreq := make(map[uint32]float64, 32)
	appendTermFreq(termFreq, tokenizeAlphaNum(query), 1.0)
	return termFreqToSparse(termFreq, queryBM25K)
}

func appendTermFreq(dst map[uint32]float64, tokens []string, tokenWeight float64) {
	for _, token := range tokens {
		if token == "" || token == "." {
			continue
		}
		dst[hashToken(token)] += tokenWeight
	}
}

// termFreqToSparse keeps the maxSparseTerms heaviest terms, emitted in
// ascending index order as Qdrant expects.
func termFreqToSparse(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	if len(indices) > maxSparseTerms {
		sort.Slice(indices, func(i, j int) bool {
			if tf[indices[i]] != tf[indices[j]] {
				return tf[indices[i]] > tf[indices[j]]
			}
			return indices[i] < indices[j]
		})
		indices = indices[:maxSparseTerms]
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		tfValue := tf[idx]
		weight := (tfValue * (k + 1.0)) / (tfValue + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}

	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	if sum == 0 {
		return 1
	}
	return sum
}

func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
