package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestEnsureDirForSQLite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ensureDirForSQLite("file:"+dir+"/nested/db.sqlite?_fk=1"))
	assert.DirExists(t, dir+"/nested")
	require.NoError(t, ensureDirForSQLite(":memory:"))
}

func TestUpsertFromTelegram(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(newTestDB(t))

	first, err := users.UpsertFromTelegram(ctx, 42, "Ada", "", "ada")
	require.NoError(t, err)
	second, err := users.UpsertFromTelegram(ctx, 42, "Ada", "Lovelace", "ada")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	got, err := users.FindByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", got.LastName)
	assert.Equal(t, "09:00", got.StudyStart)

	_, err = users.FindByID(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTaskPendingOrderAndStatus(t *testing.T) {
	ctx := context.Background()
	tasks := NewTaskRepository(newTestDB(t))
	now := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

	later := &model.Task{UserID: 1, Title: "later", Deadline: now.Add(72 * time.Hour), Status: model.StatusPending}
	sooner := &model.Task{UserID: 1, Title: "sooner", Deadline: now.Add(2 * time.Hour), Status: model.StatusPending}
	other := &model.Task{UserID: 2, Title: "someone else", Deadline: now, Status: model.StatusPending}
	for _, task := range []*model.Task{later, sooner, other} {
		require.NoError(t, tasks.Create(ctx, task))
	}

	pending, err := tasks.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "sooner", pending[0].Title)

	done, err := tasks.UpdateStatus(ctx, 1, sooner.ID, model.StatusCompleted, now)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, model.StatusCompleted, done.Status)

	_, err = tasks.UpdateStatus(ctx, 1, sooner.ID, model.StatusPending, now)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = tasks.UpdateStatus(ctx, 1, other.ID, model.StatusCompleted, now)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	due, err := tasks.DueBetween(ctx, now.Add(-time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "someone else", due[0].Title)

	require.NoError(t, tasks.SetContextID(ctx, later.ID, "user_1_1"))
	got, err := tasks.FindByID(ctx, 1, later.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ContextID)
	assert.Equal(t, "user_1_1", *got.ContextID)
}

func TestTaskTimesCompareAcrossZones(t *testing.T) {
	ctx := context.Background()
	tasks := NewTaskRepository(newTestDB(t))
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 23:59 in New York is 03:59 UTC the next day.
	essay := &model.Task{UserID: 1, Title: "Essay", Deadline: time.Date(2025, 10, 15, 23, 59, 0, 0, ny), Status: model.StatusPending}
	quiz := &model.Task{UserID: 1, Title: "Quiz", Deadline: time.Date(2025, 10, 16, 2, 0, 0, 0, time.UTC), Status: model.StatusPending}
	for _, task := range []*model.Task{essay, quiz} {
		require.NoError(t, tasks.Create(ctx, task))
	}

	pending, err := tasks.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Quiz", pending[0].Title)
	assert.Equal(t, "Essay", pending[1].Title)
	assert.True(t, pending[1].Deadline.Equal(time.Date(2025, 10, 16, 3, 59, 0, 0, time.UTC)))

	now := time.Date(2025, 10, 16, 1, 0, 0, 0, time.UTC)
	due, err := tasks.DueBetween(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 2)

	// The same window expressed in New York time finds the same tasks.
	due, err = tasks.DueBetween(ctx, now.In(ny), now.In(ny).Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 2)

	unfinished, err := tasks.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	assert.Equal(t, "Quiz", unfinished[0].Title)
}

func TestPlanUpsertLastWriteWins(t *testing.T) {
	ctx := context.Background()
	plans := NewPlanRepository(newTestDB(t))

	require.NoError(t, plans.Upsert(ctx, &model.Plan{UserID: 1, Date: "2025-10-15", Summary: "first", Source: model.PlanFromLLM}))
	require.NoError(t, plans.Upsert(ctx, &model.Plan{UserID: 1, Date: "2025-10-15", Summary: "second", Source: model.PlanFromFallback}))

	got, err := plans.Get(ctx, 1, "2025-10-15")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Summary)
	assert.Equal(t, model.PlanFromFallback, got.Source)

	_, err = plans.Get(ctx, 2, "2025-10-15")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, plans.Upsert(ctx, &model.Plan{Date: "2025-10-15"}), apperr.ErrValidation)
}

func TestDocumentRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentRepository(newTestDB(t))

	assert.ErrorIs(t, docs.Create(ctx, &model.Document{Filename: "x.txt"}), apperr.ErrValidation)

	first := &model.Document{UserID: 1, Filename: "a.txt", FileType: "text/plain", ExtractedText: "alpha", Status: model.DocumentProcessing}
	second := &model.Document{UserID: 1, Filename: "b.md", FileType: "text/markdown", ExtractedText: "beta", Status: model.DocumentProcessing}
	other := &model.Document{UserID: 2, Filename: "c.txt", FileType: "text/plain", Status: model.DocumentProcessing}
	for _, d := range []*model.Document{first, second, other} {
		require.NoError(t, docs.Create(ctx, d))
	}

	done := time.Date(2025, 10, 15, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	first.Status = model.DocumentCompleted
	first.ProcessedData = &model.ExtractionResult{Confidence: 0.6}
	first.TasksCreated = 2
	first.ProcessedAt = &done
	require.NoError(t, docs.Save(ctx, first))

	list, err := docs.ListByOwner(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.md", list[0].Filename)
	assert.Equal(t, "a.txt", list[1].Filename)

	got, err := docs.FindByID(ctx, 1, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentCompleted, got.Status)
	assert.Equal(t, 2, got.TasksCreated)
	require.NotNil(t, got.ProcessedData)
	assert.InDelta(t, 0.6, got.ProcessedData.Confidence, 1e-9)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, got.ProcessedAt.Equal(done))
	assert.Equal(t, "alpha", got.ExtractedText)

	limited, err := docs.ListByOwner(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = docs.FindByID(ctx, 2, first.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEventsBetween(t *testing.T) {
	ctx := context.Background()
	events := NewEventRepository(newTestDB(t))
	day := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, events.Create(ctx, &model.Event{UserID: 1, Title: "lecture", Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}))
	require.NoError(t, events.Create(ctx, &model.Event{UserID: 1, Title: "tomorrow", Start: day.Add(34 * time.Hour), End: day.Add(35 * time.Hour)}))

	got, err := events.Between(ctx, 1, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lecture", got[0].Title)
}

func TestContextEntryCRUD(t *testing.T) {
	ctx := context.Background()
	entries := NewContextRepository(newTestDB(t))

	entry := &model.ContextEntry{ID: "user_1_1", UserID: 1, Kind: model.KindTask, Text: "essay", Metadata: map[string]any{"user_id": "1"}}
	require.NoError(t, entries.Upsert(ctx, entry))
	entry.Text = "essay draft"
	require.NoError(t, entries.Upsert(ctx, entry))

	list, err := entries.ListByOwner(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "essay draft", list[0].Text)
	assert.Equal(t, "1", list[0].Metadata["user_id"])

	none, err := entries.ListByOwner(ctx, 2, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, entries.Delete(ctx, "user_1_1"))
	assert.ErrorIs(t, entries.Delete(ctx, "user_1_1"), apperr.ErrNotFound)
}

func TestNewDBReportsPersistenceErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewDB(filepath.Join(blocker, "db.sqlite"))
	require.Error(t, err)
}
