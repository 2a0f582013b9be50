package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiPromptTrimmed,
		providerFallbacks,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 45000},
		},
		[]string{"provider", "model", "success"},
	)

	aiPromptTrimmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_prompt_trimmed_total",
			Help: "Prompts shortened to fit the token budget.",
		},
		[]string{"provider", "model"},
	)

	providerFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_provider_fallbacks_total",
			Help: "Model-backed provider calls answered by the rule based provider instead.",
		},
		[]string{"provider", "operation"}, // operation: decompose, propose, review
	)
)

func ObserveChatUsage(provider, model string, tokensIn, tokensOut int, latencyMs int64, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncPromptTrimmed(provider, model string) {
	aiPromptTrimmed.WithLabelValues(norm(provider), norm(model)).Inc()
}

func IncProviderFallback(provider, operation string) {
	providerFallbacks.WithLabelValues(norm(provider), norm(operation)).Inc()
}
