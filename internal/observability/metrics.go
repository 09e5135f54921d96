package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeRetry   = "retry"
	OutcomeDead    = "dead"
	OutcomeSkipped = "skipped"
)

var (
	ttsSegments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_tts_segments_total",
			Help: "Segments attempted by the streaming pipeline, by outcome.",
		},
		[]string{"outcome"},
	)

	// Synthesis calls run up to a minute on slow hardware.
	ttsLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_tts_synthesis_seconds",
			Help:    "Duration of one speech synthesis call.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_llm_requests_total",
			Help: "Bilingual reply requests, by outcome.",
		},
		[]string{"outcome"},
	)

	mergeJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_merge_jobs_total",
			Help: "Background merge attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	mergeQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistant_merge_queue_depth",
			Help: "Pending jobs in the in-process merge queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(ttsSegments, ttsLatency, llmRequests, mergeJobs, mergeQueueDepth)
}

// SegmentDone counts one streamed segment.
func SegmentDone(outcome string) { ttsSegments.WithLabelValues(outcome).Inc() }

// ObserveSynthesis records how long a synthesis call took.
func ObserveSynthesis(d time.Duration) { ttsLatency.Observe(d.Seconds()) }

// LLMDone counts one reply request.
func LLMDone(outcome string) { llmRequests.WithLabelValues(outcome).Inc() }

// MergeDone counts one merge attempt.
func MergeDone(outcome string) { mergeJobs.WithLabelValues(outcome).Inc() }

// SetMergeQueueDepth publishes the pending job count.
func SetMergeQueueDepth(n int) { mergeQueueDepth.Set(float64(n)) }
