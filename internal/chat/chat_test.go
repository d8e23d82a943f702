package chat

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-planner/internal/apperr"
	"study-planner/internal/llm"
	"study-planner/internal/model"
)

func TestFormatHistoryKeepsLastFive(t *testing.T) {
	var history []Message
	for i := 0; i < 7; i++ {
		history = append(history, Message{Role: "user", Content: "m" + strconv.Itoa(i)})
	}
	got := FormatHistory(history)
	assert.NotContains(t, got, "m1\n")
	assert.Contains(t, got, "user: m2\n")
	assert.Contains(t, got, "user: m6\n")
	assert.Equal(t, "(none)\n", FormatHistory(nil))
}

func TestRespondBuildsPrompt(t *testing.T) {
	var prompt string
	var route llm.Route
	gen := llm.GeneratorFunc(func(_ context.Context, p string, r llm.Route, _ float32, _ int) (string, error) {
		prompt, route = p, r
		return "  You have an essay at 9.  ", nil
	})
	day := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	plan := &model.Plan{Date: "2025-10-15", Summary: "1 study", Schedule: []model.ScheduleBlock{
		{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), Activity: "Essay", Type: model.BlockStudy},
	}}

	reply, err := NewResponder(gen, nil).Respond(context.Background(), Request{
		Owner:   1,
		Message: "What's my schedule today?",
		Context: "- Task: Essay (relevance: 0.91)",
		Plan:    plan,
		Events:  []string{"14:00-15:00 Midterm @ Hall B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "You have an essay at 9.", reply)
	assert.Equal(t, llm.RouteFast, route)
	assert.Contains(t, prompt, "- Task: Essay (relevance: 0.91)")
	assert.Contains(t, prompt, "- 09:00-10:00 Essay (study)")
	assert.Contains(t, prompt, "Today's calendar:\n- 14:00-15:00 Midterm @ Hall B")
	assert.Contains(t, prompt, "User message: What's my schedule today?")
}

func TestRespondErrors(t *testing.T) {
	gen := llm.GeneratorFunc(func(context.Context, string, llm.Route, float32, int) (string, error) {
		return "", apperr.ErrGenerationUnavailable
	})
	r := NewResponder(gen, nil)

	_, err := r.Respond(context.Background(), Request{Owner: 1, Message: "hi"})
	assert.ErrorIs(t, err, apperr.ErrGenerationUnavailable)

	_, err = r.Respond(context.Background(), Request{Owner: 1, Message: " "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
