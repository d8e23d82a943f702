// Package llm routes text generation to a fast or a reasoning provider and
// falls back to the other one exactly once.
package llm

import "context"

// Request is a single generation call as seen by a provider.
type Request struct {
	Prompt          string
	Temperature     float32
	MaxOutputTokens int
}

// Provider generates text for a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Route selects a provider class.
type Route string

const (
	RouteFast      Route = "fast"
	RouteReasoning Route = "reasoning"
)

// Alternate is the route tried when r fails.
func (r Route) Alternate() Route {
	if r == RouteReasoning {
		return RouteFast
	}
	return RouteReasoning
}

// Task types understood by RouteFor.
const (
	TaskExtraction     = "extraction"
	TaskClassification = "classification"
	TaskQuickChat      = "quick_chat"
	TaskPlanning       = "planning"
	TaskAnalysis       = "analysis"
	TaskCreative       = "creative"
)

var routes = map[string]Route{
	TaskExtraction:     RouteFast,
	TaskClassification: RouteFast,
	TaskQuickChat:      RouteFast,
	TaskPlanning:       RouteReasoning,
	TaskAnalysis:       RouteReasoning,
	TaskCreative:       RouteReasoning,
}

// RouteFor maps a task type onto its preferred route. Unknown types go fast.
func RouteFor(taskType string) Route {
	if r, ok := routes[taskType]; ok {
		return r
	}
	return RouteFast
}
