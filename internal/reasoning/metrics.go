package reasoning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showrunner",
		Name:      "reasoning_runs_total",
		Help:      "Completed reasoning runs by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "showrunner",
		Name:      "reasoning_run_duration_seconds",
		Help:      "Wall time of reasoning runs",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	stepsPerRun = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "showrunner",
		Name:      "reasoning_steps_per_run",
		Help:      "Model completions needed per run",
		Buckets:   []float64{1, 2, 3, 5, 8, 10},
	})

	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showrunner",
		Name:      "llm_completions_total",
		Help:      "Model completions by outcome",
	}, []string{"status"})

	completionTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "showrunner",
		Name:      "llm_tokens_total",
		Help:      "Total tokens consumed by completions",
	})

	agentInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "showrunner",
		Name:      "agent_invocations_total",
		Help:      "Agent invocations by agent and outcome",
	}, []string{"agent", "status"})

	toolBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "showrunner",
		Name:      "tool_batch_size",
		Help:      "Tool calls dispatched per reasoning step",
		Buckets:   []float64{1, 2, 3, 5, 8},
	})
)
