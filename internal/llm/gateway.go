package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/metrics"
)

// DefaultTimeout bounds a single provider attempt.
const DefaultTimeout = 30 * time.Second

// Generator is what the pipeline stages depend on.
type Generator interface {
	Generate(ctx context.Context, prompt string, route Route, temperature float32, maxOutputTokens int) (string, error)
}

// Gateway holds at most one provider per route.
type Gateway struct {
	providers map[Route]Provider
	timeout   time.Duration
	log       *zap.SugaredLogger
}

// GatewayOptions configures a Gateway. Nil providers mark the route as unavailable.
type GatewayOptions struct {
	Fast      Provider
	Reasoning Provider
	Timeout   time.Duration
	Logger    *zap.SugaredLogger
}

func NewGateway(opts GatewayOptions) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	providers := map[Route]Provider{}
	if opts.Fast != nil {
		providers[RouteFast] = opts.Fast
	}
	if opts.Reasoning != nil {
		providers[RouteReasoning] = opts.Reasoning
	}
	return &Gateway{providers: providers, timeout: timeout, log: log}
}

var errNoProvider = errors.New("no provider configured")

// Generate tries the provider of route, then the alternate route once.
// When both fail the error wraps apperr.ErrGenerationUnavailable.
func (g *Gateway) Generate(ctx context.Context, prompt string, route Route, temperature float32, maxOutputTokens int) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperr.Validation("prompt is empty")
	}
	if temperature < 0 || temperature > 1 {
		return "", apperr.Validation("temperature %.2f outside [0,1]", temperature)
	}
	if maxOutputTokens <= 0 {
		return "", apperr.Validation("max output tokens must be positive, got %d", maxOutputTokens)
	}
	if route != RouteFast && route != RouteReasoning {
		route = RouteFast
	}

	req := Request{Prompt: prompt, Temperature: temperature, MaxOutputTokens: maxOutputTokens}

	text, firstErr := g.attempt(ctx, route, req)
	if firstErr == nil {
		return text, nil
	}
	g.log.Warnw("llm attempt failed, trying alternate", "route", route, "error", firstErr)

	alt := route.Alternate()
	text, secondErr := g.attempt(ctx, alt, req)
	if secondErr == nil {
		return text, nil
	}
	g.log.Errorw("llm alternate failed", "route", alt, "error", secondErr)

	return "", fmt.Errorf("%w: %s: %v; %s: %v", apperr.ErrGenerationUnavailable, route, firstErr, alt, secondErr)
}

func (g *Gateway) attempt(ctx context.Context, route Route, req Request) (string, error) {
	p, ok := g.providers[route]
	if !ok {
		metrics.LLMRequests.WithLabelValues(string(route), "unconfigured").Inc()
		return "", errNoProvider
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := p.Generate(ctx, req)
	metrics.LLMLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	metrics.LLMRequests.WithLabelValues(p.Name(), metrics.Outcome(err == nil)).Inc()
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name(), err)
	}
	return text, nil
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, route Route, temperature float32, maxOutputTokens int) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, route Route, temperature float32, maxOutputTokens int) (string, error) {
	return f(ctx, prompt, route, temperature, maxOutputTokens)
}
