// Package metrics exposes Prometheus collectors for tool executions,
// LLM token usage, turn cost and delegations.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conductor/internal/domain"
	"conductor/internal/infra/middleware"
)

const (
	scrapesPerMinute = 120
	scrapeBurst      = 20
)

// Recorder implements domain.MetricsRecorder on its own Prometheus registry.
type Recorder struct {
	registry     *prometheus.Registry
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	llmTokens    *prometheus.CounterVec
	costUSD      *prometheus.CounterVec
	delegations  *prometheus.CounterVec
}

var _ domain.MetricsRecorder = (*Recorder)(nil)

// New constructs a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_tool_executions_total",
		Help: "Tool executions by tool name and outcome",
	}, []string{"tool", "success"})

	toolDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conductor_tool_duration_seconds",
		Help:    "Tool execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	llmTokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_llm_tokens_total",
		Help: "LLM tokens by model and direction (input, output)",
	}, []string{"model", "direction"})

	cost := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_cost_usd_total",
		Help: "Accumulated turn cost in USD by model",
	}, []string{"model"})

	delegations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_delegations_total",
		Help: "Delegations by outcome",
	}, []string{"outcome"})

	reg.MustRegister(toolCalls, toolDuration, llmTokens, cost, delegations)

	return &Recorder{
		registry:     reg,
		toolCalls:    toolCalls,
		toolDuration: toolDuration,
		llmTokens:    llmTokens,
		costUSD:      cost,
		delegations:  delegations,
	}
}

// Registry returns the underlying Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ToolExecuted records one tool execution.
func (r *Recorder) ToolExecuted(tool string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	r.toolCalls.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// LLMUsage records the tokens of one model response.
func (r *Recorder) LLMUsage(model string, usage domain.Usage) {
	if r == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	r.llmTokens.WithLabelValues(model, "input").Add(float64(usage.PromptTokens))
	r.llmTokens.WithLabelValues(model, "output").Add(float64(usage.CompletionTokens))
}

// TurnCost adds the cost of a completed turn.
func (r *Recorder) TurnCost(info domain.CostInfo) {
	if r == nil || info.TotalCost.IsNegative() {
		return
	}
	r.costUSD.WithLabelValues(info.Model).Add(info.TotalCost.InexactFloat64())
}

// Delegation counts a delegation attempt by outcome.
func (r *Recorder) Delegation(outcome string) {
	if r == nil {
		return
	}
	r.delegations.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// guarded wraps Handler with response hardening and per-client throttling.
func (r *Recorder) guarded(ctx context.Context) http.Handler {
	return middleware.SecurityHeaders(middleware.RateLimit(ctx, scrapesPerMinute, scrapeBurst)(r.Handler()))
}

// Serve exposes the registry on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr, path string, logger *slog.Logger) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, r.guarded(ctx))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
