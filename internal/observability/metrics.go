// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slr_engine"

// Metrics holds the Prometheus collectors for one process. Stages receive
// a *Metrics by injection; tests build one on a private registry.
type Metrics struct {
	// LLMCalls counts LLM generate calls, labeled by outcome
	// (ok, error, skipped, quota_retry).
	LLMCalls *prometheus.CounterVec

	// LLMCooldowns counts soft rate limit pauses.
	LLMCooldowns prometheus.Counter

	// PapersFetched counts new records accepted, labeled by source.
	PapersFetched *prometheus.CounterVec

	// FetchErrors counts failed source requests, labeled by source.
	FetchErrors *prometheus.CounterVec

	// DuplicatesSkipped counts records rejected by the seen-ID set.
	DuplicatesSkipped prometheus.Counter

	// Conversions counts PDF-to-text outcomes (converted, skipped, failed, empty).
	Conversions *prometheus.CounterVec

	// Verdicts counts relevance verdicts (relevant, irrelevant, error).
	Verdicts *prometheus.CounterVec

	// SnowballAdded counts relevant papers added by snowballing.
	SnowballAdded prometheus.Counter

	// SupplementaryRounds counts supplementary fetch rounds attempted.
	SupplementaryRounds prometheus.Counter

	// RefinementCycles counts drafts assembled.
	RefinementCycles prometheus.Counter

	// Runs counts pipeline runs by final status.
	Runs *prometheus.CounterVec

	// RunDuration observes end-to-end run time in seconds.
	RunDuration prometheus.Histogram
}

// NewMetrics registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LLMCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "calls_total",
			Help: "LLM generate calls by outcome.",
		}, []string{"outcome"}),
		LLMCooldowns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "cooldowns_total",
			Help: "Soft rate limit pauses.",
		}),
		PapersFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "papers_total",
			Help: "New paper records accepted by source.",
		}, []string{"source"}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "errors_total",
			Help: "Failed source requests by source.",
		}, []string{"source"}),
		DuplicatesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "duplicates_total",
			Help: "Records skipped because their primary ID was already seen.",
		}),
		Conversions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "convert", Name: "files_total",
			Help: "PDF to text conversions by outcome.",
		}, []string{"outcome"}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relevance", Name: "verdicts_total",
			Help: "Relevance verdicts by kind.",
		}, []string{"verdict"}),
		SnowballAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "snowball", Name: "added_total",
			Help: "Relevant papers added through reference snowballing.",
		}),
		SupplementaryRounds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "supplementary_rounds_total",
			Help: "Supplementary fetch rounds attempted.",
		}),
		RefinementCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "refinement_cycles_total",
			Help: "Draft documents assembled.",
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "runs_total",
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "run_duration_seconds",
			Help:    "End-to-end pipeline duration.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		}),
	}
}

// Discard returns metrics registered on a throwaway registry, for callers
// that do not expose an endpoint.
func Discard() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// OrDiscard returns m, or Discard() when m is nil.
func OrDiscard(m *Metrics) *Metrics {
	if m == nil {
		return Discard()
	}
	return m
}
