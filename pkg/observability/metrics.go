package observability

import (
	"context"
	"net/http"
	"strings"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "genie"

// Metrics holds the engine collectors.
type Metrics struct {
	NodeVisits    *prometheus.CounterVec
	Responses     *prometheus.CounterVec
	ResponseTime  prometheus.Histogram
	Injections    *prometheus.CounterVec
	Terminations  *prometheus.CounterVec
	ContentErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Question nodes displayed.",
		}, []string{"node_id"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Choices made by visitors, by intent.",
		}, []string{"intent"}),
		ResponseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_time_seconds",
			Help:      "Time between a question being displayed and answered.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		Injections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_injections_total",
			Help:      "Review blocks added to transcripts, by context.",
		}, []string{"context"}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_terminated_total",
			Help:      "Conversations ended, by session status.",
		}, []string{"status"}),
		ContentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_errors_total",
			Help:      "Failed content service calls.",
		}, []string{"op", "kind"}),
	}
	reg.MustRegister(m.NodeVisits, m.Responses, m.ResponseTime, m.Injections, m.Terminations, m.ContentErrors)
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.NodeID).Inc()
		},
		OnResponse: func(_ context.Context, e *domain.ResponseEvent) {
			intent := string(e.Intent)
			if intent == "" {
				intent = string(domain.IntentNone)
			}
			m.Responses.WithLabelValues(intent).Inc()
			m.ResponseTime.Observe(float64(e.ResponseTimeMs) / 1000)
		},
		OnInjection: func(_ context.Context, e *domain.InjectionEvent) {
			m.Injections.WithLabelValues(contextFamily(e.ContextKey)).Inc()
		},
		OnTerminate: func(_ context.Context, e *domain.TerminateEvent) {
			status := string(e.Status)
			if status == "" {
				status = "ERROR"
			}
			m.Terminations.WithLabelValues(status).Inc()
		},
		OnContentError: func(_ context.Context, e *domain.ContentErrorEvent) {
			m.ContentErrors.WithLabelValues(e.Op, string(e.Kind)).Inc()
		},
	}
}

// contextFamily drops the per-node suffix of an injection key ("situation-4" -> "situation")
// to keep label cardinality bounded.
func contextFamily(key string) string {
	if i := strings.LastIndexByte(key, '-'); i > 0 {
		return key[:i]
	}
	return key
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
