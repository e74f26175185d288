package domain

import (
	"fmt"
	"strings"
)

type QueryType string

const (
	QueryTypeFactual     QueryType = "factual"
	QueryTypeExploratory QueryType = "exploratory"
	QueryTypeFileLookup  QueryType = "specific_file_lookup"
)

func (t QueryType) Valid() bool {
	switch t {
	case QueryTypeFactual, QueryTypeExploratory, QueryTypeFileLookup:
		return true
	default:
		return false
	}
}

type Intent struct {
	QueryType  QueryType `json:"query_type"`
	Complexity string    `json:"complexity"`
	Entities   []string  `json:"entities,omitempty"`
	Confidence float64   `json:"confidence"`
}

type RouteMode string

const (
	RouteFileLookup RouteMode = "file_lookup"
	RouteChunk      RouteMode = "chunk"
	RouteBroad      RouteMode = "broad"
)

type RoutingDecision struct {
	Mode       RouteMode `json:"mode"`
	Reason     string    `json:"reason"`
	Strategies []string  `json:"strategies"`
}

// ParseIntent normalizes a classifier reply. Unknown query types are
// rejected so routing falls back to heuristics.
func ParseIntent(queryType, complexity string, entities []string, confidence float64) (Intent, error) {
	raw := strings.ToLower(strings.TrimSpace(queryType))
	qt := QueryType(strings.NewReplacer("-", "_", " ", "_").Replace(raw))
	if !qt.Valid() {
		return Intent{}, WrapError(ErrInvalidInput, "parse intent", fmt.Errorf("unknown query type %q", queryType))
	}
	clean := make([]string, 0, len(entities))
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" {
			clean = append(clean, e)
		}
	}
	switch {
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return Intent{
		QueryType:  qt,
		Complexity: strings.ToLower(strings.TrimSpace(complexity)),
		Entities:   clean,
		Confidence: confidence,
	}, nil
}
