package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-planner/internal/apperr"
	"study-planner/internal/llm"
	"study-planner/internal/model"
)

func stubGenerator(response string, err error, seen *string) llm.Generator {
	return llm.GeneratorFunc(func(_ context.Context, prompt string, route llm.Route, temperature float32, maxTokens int) (string, error) {
		if seen != nil {
			*seen = prompt
		}
		return response, err
	})
}

func TestExtractFewShotExample(t *testing.T) {
	response := "```json\n" + `{
    "title": "Math 101 Homework",
    "deadline": "2025-10-20",
    "course": "Math 101",
    "description": "Complete problems 1-15 from Chapter 3"
}` + "\n```"
	var prompt string
	e := New(stubGenerator(response, nil, &prompt), nil)

	got, err := e.Extract(context.Background(), "Math 101 Homework due October 20, 2025. Complete problems 1-15 from Chapter 3.")
	require.NoError(t, err)
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, model.ExtractedAssignment{
		Title:       "Math 101 Homework",
		Deadline:    "2025-10-20",
		Course:      "Math 101",
		Priority:    "medium",
		Description: "Complete problems 1-15 from Chapter 3",
	}, got.Assignments[0])
	assert.Contains(t, prompt, "CS project submission")
	assert.Contains(t, prompt, "Complete problems 1-15 from Chapter 3.")
}

func TestExtractFullSchema(t *testing.T) {
	response := `Here you go:
{"assignments":[{"title":" Essay ","deadline":"2025-11-01","course":"HIST 210","priority":"Critical"}],
 "events":[{"title":"Midterm","date":"2025-10-28","time":"10:00","location":"Hall B"}],
 "confidence":1.7}`
	e := New(stubGenerator(response, nil, nil), nil)

	got, err := e.Extract(context.Background(), "syllabus")
	require.NoError(t, err)
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, "Essay", got.Assignments[0].Title)
	assert.Equal(t, "urgent", got.Assignments[0].Priority)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "Hall B", got.Events[0].Location)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestExtractUnparseable(t *testing.T) {
	e := New(stubGenerator("I could not find anything, sorry.", nil, nil), nil)

	_, err := e.Extract(context.Background(), "syllabus")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExtractionFailed)

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "I could not find anything, sorry.", failed.Raw)
}

func TestExtractPropagatesGatewayFailure(t *testing.T) {
	e := New(stubGenerator("", apperr.ErrGenerationUnavailable, nil), nil)
	_, err := e.Extract(context.Background(), "syllabus")
	assert.ErrorIs(t, err, apperr.ErrGenerationUnavailable)
	assert.False(t, errors.Is(err, apperr.ErrExtractionFailed))
}

func TestExtractRejectsEmptyText(t *testing.T) {
	called := false
	gen := llm.GeneratorFunc(func(context.Context, string, llm.Route, float32, int) (string, error) {
		called = true
		return "{}", nil
	})
	_, err := New(gen, nil).Extract(context.Background(), "  \n")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.False(t, called)
}

func TestPromptTruncatesDocument(t *testing.T) {
	long := strings.Repeat("x", maxDocumentChars+500)
	p := buildPrompt(long, time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC).Format(model.DateLayout))
	assert.Equal(t, maxDocumentChars, strings.Count(p, "x")-strings.Count(buildPrompt("", "2025-10-15"), "x"))
	assert.Contains(t, p, "Today is 2025-10-15")
}
