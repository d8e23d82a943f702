package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-planner/internal/apperr"
	"study-planner/internal/chat"
	"study-planner/internal/coordinator"
	"study-planner/internal/model"
	"study-planner/internal/notify"
	"study-planner/internal/planner"
	"study-planner/internal/repository"
	"study-planner/internal/service"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	acks    int
	fileURL string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("no file")
	}
	return f.fileURL, nil
}

func (f *fakeAPI) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeAssistant struct {
	histories [][]chat.Message
	documents []string
	uploads   []coordinator.Upload
	chatErr   error
	docRes    *coordinator.DocumentResult
	docErr    error
	planned   []time.Time
}

func (f *fakeAssistant) HandleChat(_ context.Context, _ uint, message string, history []chat.Message) (*coordinator.ChatResult, error) {
	f.histories = append(f.histories, history)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &coordinator.ChatResult{Response: "echo <" + message + ">", Intent: coordinator.Classify(message)}, nil
}

func (f *fakeAssistant) ProcessDocument(_ context.Context, _ uint, up coordinator.Upload) (*coordinator.DocumentResult, error) {
	f.documents = append(f.documents, up.Text)
	f.uploads = append(f.uploads, up)
	return f.docRes, f.docErr
}

func (f *fakeAssistant) PlanDay(_ context.Context, owner uint, date time.Time, mode planner.Mode) (*model.Plan, error) {
	f.planned = append(f.planned, date)
	return &model.Plan{
		UserID: owner,
		Date:   date.Format(model.DateLayout),
		Schedule: []model.ScheduleBlock{
			{Start: date.Add(9 * time.Hour), End: date.Add(10 * time.Hour), Activity: "Review notes", Type: model.BlockStudy},
		},
		Source: model.PlanFromFallback,
	}, nil
}

func (f *fakeAssistant) ParseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, apperr.Validation("bad date")
	}
	return d, nil
}

type fixture struct {
	bot       *Bot
	api       *fakeAPI
	assistant *fakeAssistant
	tasks     *repository.TaskRepository
	users     *repository.UserRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	taskRepo := repository.NewTaskRepository(db)
	userRepo := repository.NewUserRepository(db)
	taskSvc := service.NewTaskService(taskRepo, userRepo, nil, notify.Nop{}, nil)
	t.Cleanup(taskSvc.Wait)
	api := &fakeAPI{}
	assistant := &fakeAssistant{}
	b := New(api, Deps{
		Users:     userRepo,
		Tasks:     taskSvc,
		Reminders: service.NewReminderService(taskRepo),
		Assistant: assistant,
	})
	return &fixture{bot: b, api: api, assistant: assistant, tasks: taskRepo, users: userRepo}
}

const chatID = 4242

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: chatID, FirstName: "Ada"},
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
	}
}

func command(text string) *tgbotapi.Message {
	msg := textMessage(text)
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	return msg
}

func (fx *fixture) seedTask(t *testing.T, title, course string) model.Task {
	t.Helper()
	user, err := fx.users.UpsertFromTelegram(context.Background(), chatID, "Ada", "", "")
	require.NoError(t, err)
	task := model.Task{UserID: user.ID, Title: title, Course: course, Deadline: time.Now().Add(72 * time.Hour), Status: model.StatusPending, Priority: model.PriorityMedium}
	require.NoError(t, fx.tasks.Create(context.Background(), &task))
	return task
}

func TestStartGreetsAndRegisters(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.bot.handleMessage(context.Background(), command("/start")))

	msg := fx.api.last(t)
	assert.Equal(t, int64(chatID), msg.ChatID)
	assert.Contains(t, msg.Text, "Hi, Ada!")
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)

	user, err := fx.users.FindByTelegramID(context.Background(), chatID)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
}

func TestTasksGroupedByCourse(t *testing.T) {
	fx := newFixture(t)
	fx.seedTask(t, "Essay", "HIST")
	fx.seedTask(t, "Chores", "")
	fx.seedTask(t, "Problem set", "CALC")

	require.NoError(t, fx.bot.handleMessage(context.Background(), command("/tasks")))
	msg := fx.api.last(t)
	calc := strings.Index(msg.Text, "CALC")
	hist := strings.Index(msg.Text, "HIST")
	other := strings.Index(msg.Text, noCourse)
	require.True(t, calc >= 0 && hist >= 0 && other >= 0, msg.Text)
	assert.Less(t, calc, hist)
	assert.Less(t, hist, other)

	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, markup.InlineKeyboard, 3)
}

func TestDoneCommand(t *testing.T) {
	fx := newFixture(t)
	task := fx.seedTask(t, "Lab", "CHEM")
	ctx := context.Background()

	require.NoError(t, fx.bot.handleMessage(ctx, command(fmt.Sprintf("/done %d", task.ID))))
	assert.Contains(t, fx.api.last(t).Text, "completed")

	got, err := fx.tasks.FindByID(ctx, task.UserID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	require.NoError(t, fx.bot.handleMessage(ctx, command("/done 999")))
	assert.Equal(t, "Task not found.", fx.api.last(t).Text)

	require.NoError(t, fx.bot.handleMessage(ctx, command("/done abc")))
	assert.Contains(t, fx.api.last(t).Text, "must be a number")
}

func TestCompleteCallback(t *testing.T) {
	fx := newFixture(t)
	task := fx.seedTask(t, "Quiz prep", "BIO")

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: chatID, FirstName: "Ada"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
		Data:    fmt.Sprintf("%s%d", cbCompletePrefix, task.ID),
	}
	require.NoError(t, fx.bot.handleCallback(context.Background(), cb))
	assert.Equal(t, 1, fx.api.acks)
	assert.Contains(t, fx.api.last(t).Text, "No open tasks")
}

func TestPlanCommand(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.bot.handleMessage(ctx, command("/plan 2025-10-20")))
	require.Len(t, fx.assistant.planned, 1)
	assert.Equal(t, "2025-10-20", fx.assistant.planned[0].Format(model.DateLayout))
	assert.Contains(t, fx.api.last(t).Text, "09:00-10:00 Review notes")

	require.NoError(t, fx.bot.handleMessage(ctx, command("/plan next-week")))
	assert.Contains(t, fx.api.last(t).Text, "YYYY-MM-DD")
	assert.Len(t, fx.assistant.planned, 1)
}

func TestChatKeepsBoundedHistory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, fx.bot.handleMessage(ctx, textMessage(fmt.Sprintf("message %d", i))))
	}
	assert.Equal(t, "echo &lt;message 7&gt;", fx.api.last(t).Text)

	require.Len(t, fx.assistant.histories, 8)
	assert.Empty(t, fx.assistant.histories[0])
	assert.Len(t, fx.assistant.histories[1], 2)
	assert.Len(t, fx.assistant.histories[7], maxHistory)
	assert.Equal(t, "message 6", fx.assistant.histories[7][maxHistory-2].Content)
}

func TestChatErrorReply(t *testing.T) {
	fx := newFixture(t)
	fx.assistant.chatErr = apperr.Validation("message is empty")

	require.NoError(t, fx.bot.handleMessage(context.Background(), textMessage("hello")))
	assert.Contains(t, fx.api.last(t).Text, "couldn't process")
	assert.Empty(t, fx.bot.historyFor(chatID))
}

func TestDocumentUpload(t *testing.T) {
	fx := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>Essay due 2099-01-10</p><script>x()</script></body></html>"))
	}))
	defer srv.Close()
	fx.api.fileURL = srv.URL
	fx.assistant.docRes = &coordinator.DocumentResult{
		TasksCreated:  2,
		EventsCreated: 1,
		Failures:      []coordinator.ItemFailure{{Kind: "assignment", Index: 2, Title: "Reading <1>", Reason: "missing deadline"}},
	}

	msg := textMessage("")
	msg.Document = &tgbotapi.Document{FileID: "f1", FileName: "syllabus.html", FileSize: 120}
	require.NoError(t, fx.bot.handleMessage(context.Background(), msg))

	require.Len(t, fx.assistant.documents, 1)
	assert.Contains(t, fx.assistant.documents[0], "Essay due 2099-01-10")
	assert.NotContains(t, fx.assistant.documents[0], "x()")
	require.Len(t, fx.assistant.uploads, 1)
	assert.Equal(t, "syllabus.html", fx.assistant.uploads[0].Filename)
	assert.Equal(t, "text/html", fx.assistant.uploads[0].ContentType)
	assert.Equal(t, len("<html><body><p>Essay due 2099-01-10</p><script>x()</script></body></html>"), fx.assistant.uploads[0].Size)

	reply := fx.api.last(t).Text
	assert.Contains(t, reply, "Added <b>2</b> task(s) and <b>1</b> event(s)")
	assert.Contains(t, reply, "Reading &lt;1&gt;")
}

func TestDocumentExtractionFailure(t *testing.T) {
	fx := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("grocery list"))
	}))
	defer srv.Close()
	fx.api.fileURL = srv.URL
	fx.assistant.docErr = fmt.Errorf("wrapped: %w", apperr.ErrExtractionFailed)

	msg := textMessage("")
	msg.Document = &tgbotapi.Document{FileID: "f2", FileName: "notes.txt", MimeType: "text/plain"}
	require.NoError(t, fx.bot.handleMessage(context.Background(), msg))
	assert.Contains(t, fx.api.last(t).Text, "couldn't find any assignments")
}

func TestDocumentRejectsLargeAndBinaryFiles(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	msg := textMessage("")
	msg.Document = &tgbotapi.Document{FileID: "big", FileName: "huge.txt", FileSize: maxDocumentBytes + 1}
	require.NoError(t, fx.bot.handleMessage(ctx, msg))
	assert.Contains(t, fx.api.last(t).Text, "too large")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()
	fx.api.fileURL = srv.URL
	msg.Document = &tgbotapi.Document{FileID: "pdf", FileName: "slides.pdf", MimeType: "application/pdf"}
	require.NoError(t, fx.bot.handleMessage(ctx, msg))
	assert.Contains(t, fx.api.last(t).Text, "plain text, markdown and HTML")
	assert.Empty(t, fx.assistant.documents)
}

func TestDocumentType(t *testing.T) {
	cases := []struct {
		doc  tgbotapi.Document
		want string
	}{
		{tgbotapi.Document{MimeType: "text/html"}, "text/html"},
		{tgbotapi.Document{MimeType: "application/octet-stream", FileName: "a.md"}, "text/markdown"},
		{tgbotapi.Document{FileName: "b.HTM"}, "text/html"},
		{tgbotapi.Document{FileName: "c"}, "text/plain"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, documentType(&tc.doc), tc.doc.FileName)
	}
}

func TestShortTitle(t *testing.T) {
	assert.Equal(t, "short", shortTitle("  short ", 10))
	assert.Equal(t, "abcd…", shortTitle("abcdefgh", 5))
}
