// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"etf-tracker/internal/analysis"
	"etf-tracker/internal/decision"
)

// HistoryStore defines the interface for decision and analysis history
// persistence.
type HistoryStore interface {
	// Decisions
	SaveDecision(ctx context.Context, d decision.Decision) error
	GetDecisions(ctx context.Context, filter DecisionFilter) ([]decision.Decision, error)

	// Analysis results
	SaveAnalysis(ctx context.Context, r analysis.Result) error
	GetAnalyses(ctx context.Context, filter AnalysisFilter) ([]analysis.Result, error)

	// Lifecycle
	Close() error
}

// DecisionFilter represents filters for querying decision history.
type DecisionFilter struct {
	Code      string
	Action    decision.Action
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// AnalysisFilter represents filters for querying analysis history.
type AnalysisFilter struct {
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
