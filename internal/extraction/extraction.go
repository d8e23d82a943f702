// Package extraction turns free-form academic documents into structured
// assignments and events using the LLM gateway.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/llm"
	"study-planner/internal/model"
)

const (
	temperature     = 0.1
	maxOutputTokens = 1500
)

// FailedError carries the raw model output that could not be parsed.
type FailedError struct {
	Raw    string
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *FailedError) Unwrap() error {
	return apperr.ErrExtractionFailed
}

// Extractor is the extraction stage.
type Extractor struct {
	gen llm.Generator
	log *zap.SugaredLogger
	now func() time.Time
}

func New(gen llm.Generator, log *zap.SugaredLogger) *Extractor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Extractor{gen: gen, log: log, now: time.Now}
}

// Extract asks the fast route for assignments and events in text.
// Unparseable output yields a *FailedError.
func (e *Extractor) Extract(ctx context.Context, text string) (*model.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("document text is empty")
	}

	prompt := buildPrompt(text, e.now().Format(model.DateLayout))
	raw, err := e.gen.Generate(ctx, prompt, llm.RouteFor(llm.TaskExtraction), temperature, maxOutputTokens)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	result, err := Parse(raw)
	if err != nil {
		e.log.Warnw("extraction output rejected", "error", err, "raw_len", len(raw))
		return nil, err
	}
	e.log.Infow("document extracted", "assignments", len(result.Assignments), "events", len(result.Events), "confidence", result.Confidence)
	return result, nil
}

// Parse decodes a model response into an ExtractionResult.
// A lone assignment object, the few-shot output shape, is accepted too.
func Parse(raw string) (*model.ExtractionResult, error) {
	body, ok := llm.ExtractJSON(raw)
	if !ok {
		return nil, &FailedError{Raw: raw, Reason: "no JSON object in response"}
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &keys); err != nil {
		return nil, &FailedError{Raw: raw, Reason: err.Error()}
	}

	var result model.ExtractionResult
	_, hasAssignments := keys["assignments"]
	_, hasEvents := keys["events"]
	if !hasAssignments && !hasEvents {
		var single model.ExtractedAssignment
		if err := json.Unmarshal([]byte(body), &single); err != nil || single.Title == "" {
			return nil, &FailedError{Raw: raw, Reason: "response has neither assignments nor events"}
		}
		result.Assignments = []model.ExtractedAssignment{single}
		result.Confidence = 1
	} else if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, &FailedError{Raw: raw, Reason: err.Error()}
	}

	for i := range result.Assignments {
		a := &result.Assignments[i]
		a.Title = strings.TrimSpace(a.Title)
		a.Course = strings.TrimSpace(a.Course)
		a.Priority = string(model.ParsePriority(a.Priority))
	}
	switch {
	case result.Confidence < 0:
		result.Confidence = 0
	case result.Confidence > 1:
		result.Confidence = 1
	}
	return &result, nil
}
