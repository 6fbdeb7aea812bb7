package generator

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_generations_total",
			Help: "Image generation attempts by provider and result",
		},
		[]string{"provider", "result"},
	)
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_generation_duration_seconds",
			Help:    "Duration of image generation including download",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"provider"},
	)
)

type instrumented struct {
	provider string
	next     Generator
}

// Instrument records count and latency of every Generate call.
func Instrument(provider string, next Generator) Generator {
	return &instrumented{provider: provider, next: next}
}

func (g *instrumented) Generate(ctx context.Context, prompt string) ([]byte, error) {
	start := time.Now()
	data, err := g.next.Generate(ctx, prompt)
	generationDuration.WithLabelValues(g.provider).Observe(time.Since(start).Seconds())

	result := "success"
	if err != nil {
		result = "error"
	}
	generationsTotal.WithLabelValues(g.provider, result).Inc()
	return data, err
}
