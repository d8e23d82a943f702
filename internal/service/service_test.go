package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"study-planner/internal/apperr"
	"study-planner/internal/model"
	"study-planner/internal/planner"
	"study-planner/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.NewDB("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type sentNotification struct {
	event   string
	payload map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, event string, payload map[string]any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{event: event, payload: payload})
	return true
}

type fakeIndexer struct {
	tasks []model.Task
	err   error
}

func (f *fakeIndexer) AddTask(_ context.Context, task model.Task) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.tasks = append(f.tasks, task)
	return "ctx-" + task.Title, nil
}

func TestTaskServiceCreate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	user, err := users.UpsertFromTelegram(ctx, 501, "Ada", "", "ada")
	require.NoError(t, err)

	indexer := &fakeIndexer{}
	notifier := &recordingNotifier{}
	svc := NewTaskService(tasks, users, indexer, notifier, nil)

	deadline := time.Date(2025, 10, 20, 23, 59, 0, 0, time.UTC)
	task, err := svc.Create(ctx, user.ID, TaskInput{Title: " Math 101 Homework ", Course: "Math 101", Deadline: deadline})
	require.NoError(t, err)

	assert.Equal(t, "Math 101 Homework", task.Title)
	assert.Equal(t, model.StatusPending, task.Status)
	assert.Equal(t, model.PriorityMedium, task.Priority)
	assert.Equal(t, model.SourceManual, task.Source)
	assert.Equal(t, 60, task.EstimatedDuration)
	require.NotNil(t, task.ContextID)
	assert.Equal(t, "ctx-Math 101 Homework", *task.ContextID)

	stored, err := svc.GetTask(ctx, user.ID, task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ContextID)

	svc.Wait()
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "new-task", notifier.sent[0].event)
	assert.Equal(t, int64(501), notifier.sent[0].payload["telegram_chat_id"])
	assert.Equal(t, "2025-10-20", notifier.sent[0].payload["deadline"])
}

type blockingNotifier struct {
	release  chan struct{}
	deadline chan time.Time
}

func (b *blockingNotifier) Notify(ctx context.Context, _ string, _ map[string]any) bool {
	d, _ := ctx.Deadline()
	b.deadline <- d
	<-b.release
	return true
}

func TestTaskServiceCreateDoesNotWaitForNotifier(t *testing.T) {
	db := newTestDB(t)
	notifier := &blockingNotifier{release: make(chan struct{}), deadline: make(chan time.Time, 1)}
	svc := NewTaskService(repository.NewTaskRepository(db), nil, nil, notifier, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	task, err := svc.Create(reqCtx, 1, TaskInput{Title: "Slides", Deadline: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.NotZero(t, task.ID)
	cancel()

	select {
	case d := <-notifier.deadline:
		assert.WithinDuration(t, time.Now().Add(NotifyTimeout), d, 5*time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("announcement never started")
	}
	close(notifier.release)
	svc.Wait()
}

func TestTaskServiceCreateSurvivesIndexFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := NewTaskService(repository.NewTaskRepository(db), repository.NewUserRepository(db), &fakeIndexer{err: apperr.ErrContextStore}, nil, nil)

	task, err := svc.Create(ctx, 1, TaskInput{Title: "Essay", Deadline: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Nil(t, task.ContextID)
}

func TestTaskServiceValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewTaskService(repository.NewTaskRepository(db), nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 0, TaskInput{Title: "x", Deadline: time.Now()})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Create(ctx, 1, TaskInput{Title: "  ", Deadline: time.Now()})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Create(ctx, 1, TaskInput{Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTaskServiceStatusIsMonotonic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := NewTaskService(repository.NewTaskRepository(db), nil, nil, nil, nil)
	task, err := svc.Create(ctx, 1, TaskInput{Title: "Lab report", Deadline: time.Now().Add(48 * time.Hour)})
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, 1, task.ID, model.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Status)

	_, err = svc.UpdateStatus(ctx, 1, task.ID, model.StatusPending)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err = svc.CompleteTask(ctx, 1, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.CompletedAt)

	_, err = svc.UpdateStatus(ctx, 1, task.ID, model.StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.UpdateStatus(ctx, 1, task.ID, "archived")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.UpdateStatus(ctx, 2, task.ID, model.StatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

type flakyPlanner struct {
	failFor uint
	calls   []uint
}

func (f *flakyPlanner) PlanDay(_ context.Context, owner uint, date time.Time, mode planner.Mode) (*model.Plan, error) {
	f.calls = append(f.calls, owner)
	if mode != planner.ModeBatch {
		return nil, errors.New("batch jobs must not call the model")
	}
	if owner == f.failFor {
		return nil, apperr.ErrPersistence
	}
	return &model.Plan{UserID: owner, Date: date.Format(model.DateLayout), Summary: "1 study"}, nil
}

func TestDailyPlansIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	var ids []uint
	for i := int64(1); i <= 3; i++ {
		u, err := users.UpsertFromTelegram(ctx, 900+i, "user", "", "")
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	require.NoError(t, users.SetActive(ctx, ids[2], false))

	dp := &flakyPlanner{failFor: ids[0]}
	notifier := &recordingNotifier{}
	batch := NewBatchService(users, repository.NewTaskRepository(db), dp, nil, notifier, nil)

	tally, err := batch.DailyPlans(ctx, time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, Tally{Processed: 1, Failed: 1}, tally)
	assert.Equal(t, []uint{ids[0], ids[1]}, dp.calls)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "daily-schedule", notifier.sent[0].event)
	assert.Equal(t, int64(902), notifier.sent[0].payload["telegram_chat_id"])
}

func TestDeadlineReminders(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	now := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

	active, err := users.UpsertFromTelegram(ctx, 11, "a", "", "")
	require.NoError(t, err)
	inactive, err := users.UpsertFromTelegram(ctx, 12, "b", "", "")
	require.NoError(t, err)
	require.NoError(t, users.SetActive(ctx, inactive.ID, false))

	for _, task := range []*model.Task{
		{UserID: active.ID, Title: "soon", Deadline: now.Add(3 * time.Hour), Status: model.StatusPending},
		{UserID: active.ID, Title: "done", Deadline: now.Add(3 * time.Hour), Status: model.StatusCompleted},
		{UserID: active.ID, Title: "later", Deadline: now.Add(30 * time.Hour), Status: model.StatusPending},
		{UserID: inactive.ID, Title: "muted", Deadline: now.Add(time.Hour), Status: model.StatusPending},
		{UserID: 999, Title: "orphan", Deadline: now.Add(time.Hour), Status: model.StatusPending},
	} {
		require.NoError(t, tasks.Create(ctx, task))
	}

	notifier := &recordingNotifier{}
	batch := NewBatchService(users, tasks, &flakyPlanner{}, nil, notifier, nil)
	tally, err := batch.DeadlineReminders(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 1, tally.Processed)
	assert.Equal(t, 2, tally.Skipped)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "deadline-reminder", notifier.sent[0].event)
	assert.Equal(t, "soon", notifier.sent[0].payload["title"])
	assert.Contains(t, notifier.sent[0].payload["text"], "Deadline reminder")
}

func TestSyncContext(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tasks := repository.NewTaskRepository(db)
	now := time.Now()
	require.NoError(t, tasks.Create(ctx, &model.Task{UserID: 1, Title: "open", Deadline: now, Status: model.StatusPending}))
	require.NoError(t, tasks.Create(ctx, &model.Task{UserID: 2, Title: "closed", Deadline: now, Status: model.StatusCancelled}))

	indexer := &fakeIndexer{}
	batch := NewBatchService(repository.NewUserRepository(db), tasks, &flakyPlanner{}, indexer, nil, nil)

	tally, err := batch.Run(ctx, JobSyncContext, now)
	require.NoError(t, err)
	assert.Equal(t, Tally{Processed: 1}, tally)
	require.Len(t, indexer.tasks, 1)
	assert.Equal(t, "open", indexer.tasks[0].Title)

	_, err = batch.Run(ctx, "unknown", now)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReminderTexts(t *testing.T) {
	now := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	task := model.Task{ID: 7, Title: "Essay <draft>", Course: "HIST", Deadline: now.Add(-time.Hour)}
	text := ReminderText(task, now)
	assert.Contains(t, text, "⚠️ #7 Essay &lt;draft&gt; <i>(HIST)</i>")
	assert.Contains(t, text, "<b>overdue</b>")

	task.Deadline = now.Add(30 * time.Hour)
	assert.Contains(t, ReminderText(task, now), "≈2 day(s) left")

	day := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	plan := model.Plan{Date: "2025-10-15", Schedule: []model.ScheduleBlock{
		{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), Activity: "Essay", Type: model.BlockStudy},
	}}
	assert.Equal(t, "📅 <b>Plan for 2025-10-15</b>\n📚 09:00-10:00 Essay", PlanText(plan))
}
