// Package bot is the Telegram surface of the planner.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/chat"
	"study-planner/internal/coordinator"
	"study-planner/internal/document"
	"study-planner/internal/model"
	"study-planner/internal/planner"
	"study-planner/internal/repository"
	"study-planner/internal/service"
)

const (
	cbCompletePrefix = "complete:"

	// maxHistory is the number of chat messages kept per conversation.
	maxHistory       = 10
	maxDocumentBytes = 1 << 20
	downloadTimeout  = 30 * time.Second

	noCourse = "Other"
)

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// Assistant runs the planner workflows for the bot.
type Assistant interface {
	HandleChat(ctx context.Context, owner uint, message string, history []chat.Message) (*coordinator.ChatResult, error)
	ProcessDocument(ctx context.Context, owner uint, up coordinator.Upload) (*coordinator.DocumentResult, error)
	PlanDay(ctx context.Context, owner uint, date time.Time, mode planner.Mode) (*model.Plan, error)
	ParseDate(raw string) (time.Time, error)
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Users     *repository.UserRepository
	Tasks     *service.TaskService
	Reminders *service.ReminderService
	Assistant Assistant
	Logger    *zap.SugaredLogger
}

// Bot aggregates the Telegram API with the planner services.
type Bot struct {
	api       API
	userRepo  *repository.UserRepository
	taskSvc   *service.TaskService
	reminders *service.ReminderService
	assistant Assistant
	client    *http.Client
	log       *zap.SugaredLogger
	now       func() time.Time

	mu      sync.Mutex
	history map[int64][]chat.Message
}

// NewAPI authorizes token against Telegram.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

func New(api API, d Deps) *Bot {
	log := d.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bot{
		api:       api,
		userRepo:  d.Users,
		taskSvc:   d.Tasks,
		reminders: d.Reminders,
		assistant: d.Assistant,
		client:    &http.Client{Timeout: downloadTimeout},
		log:       log,
		now:       time.Now,
		history:   make(map[int64][]chat.Message),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Warnw("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Warnw("handle message", "chat_id", update.Message.Chat.ID, "error", err)
			}
		}
	}
	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	switch {
	case msg.Document != nil:
		return b.handleDocument(ctx, msg)
	case msg.IsCommand():
		b.log.Infow("command", "from", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		return b.handleChat(ctx, msg)
	}
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "plan":
		return b.handlePlan(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>What I can do</b>\n" +
	"• /tasks — open tasks, tap one to complete it\n" +
	"• /plan [YYYY-MM-DD] — plan today or the given day\n" +
	"• /done &lt;id&gt; — mark a task completed, e.g. /done 3\n" +
	"• /report — deadline report\n" +
	"• send a syllabus or assignment sheet (text, markdown or HTML) to import deadlines\n" +
	"• or just write to me: \"what's my schedule today?\", \"move my study session to 7 PM\""

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if !user.IsActive {
		if err := b.userRepo.SetActive(ctx, user.ID, true); err != nil {
			return err
		}
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I'm your study planner: I track deadlines and plan your days.</b>\n\n%s",
		html.EscapeString(user.DisplayName()), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reminders.Digest(ctx, *user, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the report: %s", html.EscapeString(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, user)
}

func (b *Bot) handlePlan(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	date, err := b.assistant.ParseDate(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the date as YYYY-MM-DD, e.g. /plan 2025-10-15")
	}
	plan, err := b.assistant.PlanDay(ctx, user.ID, date, planner.ModeInteractive)
	if err != nil {
		b.log.Errorw("plan day", "user_id", user.ID, "error", err)
		return b.sendText(msg.Chat.ID, "I could not build a plan right now. Please try again later.")
	}
	return b.sendText(msg.Chat.ID, planReply(*plan))
}

func planReply(plan model.Plan) string {
	text := service.PlanText(plan)
	if len(plan.Conflicts) > 0 {
		var sb strings.Builder
		sb.WriteString(text)
		sb.WriteString("\n\n⚠️ <b>Conflicts</b>\n")
		for _, c := range plan.Conflicts {
			sb.WriteString("• " + html.EscapeString(c.Description) + "\n")
		}
		text = strings.TrimSpace(sb.String())
	}
	return text
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give the task id: /done 12")
	}
	taskID, err := strconv.ParseUint(args, 10, 32)
	if err != nil || taskID == 0 {
		return b.sendText(msg.Chat.ID, "The task id must be a number.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.completeTask(ctx, msg.Chat.ID, user, uint(taskID))
}

func (b *Bot) completeTask(ctx context.Context, chatID int64, user *model.User, taskID uint) error {
	task, err := b.taskSvc.CompleteTask(ctx, user.ID, taskID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return b.sendText(chatID, "Task not found.")
	case errors.Is(err, apperr.ErrValidation):
		return b.sendText(chatID, fmt.Sprintf("Can't complete that task: %s", html.EscapeString(err.Error())))
	case err != nil:
		return err
	}
	return b.sendText(chatID, fmt.Sprintf("✅ «%s» completed.", html.EscapeString(task.Title)))
}

func (b *Bot) handleChat(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(msg.Text)

	res, err := b.assistant.HandleChat(ctx, user.ID, text, b.historyFor(msg.Chat.ID))
	if err != nil {
		b.log.Errorw("handle chat", "user_id", user.ID, "error", err)
		return b.sendText(msg.Chat.ID, "Sorry, I couldn't process that message.")
	}
	b.remember(msg.Chat.ID,
		chat.Message{Role: "user", Content: text},
		chat.Message{Role: "assistant", Content: res.Response},
	)

	reply := html.EscapeString(res.Response)
	if res.PlanUpdated {
		reply += "\n\n📅 Your plan for today was updated. Send /plan to see it."
	}
	return b.sendText(msg.Chat.ID, reply)
}

func (b *Bot) historyFor(chatID int64) []chat.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.history[chatID]
	out := make([]chat.Message, len(h))
	copy(out, h)
	return out
}

func (b *Bot) remember(chatID int64, msgs ...chat.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := append(b.history[chatID], msgs...)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	b.history[chatID] = h
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	doc := msg.Document
	if doc.FileSize > maxDocumentBytes {
		return b.sendText(msg.Chat.ID, "That file is too large. Send documents up to 1 MB.")
	}

	body, err := b.download(ctx, doc.FileID)
	if err != nil {
		b.log.Errorw("download document", "user_id", user.ID, "file", doc.FileName, "error", err)
		return b.sendText(msg.Chat.ID, "I couldn't download that file. Please try again.")
	}
	contentType := documentType(doc)
	text, err := document.ToText(contentType, body)
	if err != nil {
		return b.sendText(msg.Chat.ID, "I can read plain text, markdown and HTML files.")
	}

	res, err := b.assistant.ProcessDocument(ctx, user.ID, coordinator.Upload{
		Filename:    doc.FileName,
		ContentType: contentType,
		Size:        len(body),
		Text:        text,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrExtractionFailed) {
			return b.sendText(msg.Chat.ID, "I couldn't find any assignments or events in that document. It is saved for review.")
		}
		b.log.Errorw("process document", "user_id", user.ID, "error", err)
		return b.sendText(msg.Chat.ID, "I couldn't process that document right now. Please try again later.")
	}
	return b.sendText(msg.Chat.ID, documentReply(res))
}

func documentReply(res *coordinator.DocumentResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📄 Added <b>%d</b> task(s) and <b>%d</b> event(s).\n", res.TasksCreated, res.EventsCreated))
	if len(res.Failures) > 0 {
		sb.WriteString("\nSkipped:\n")
		for _, f := range res.Failures {
			sb.WriteString(fmt.Sprintf("• %s «%s»: %s\n", f.Kind, html.EscapeString(f.Title), html.EscapeString(f.Reason)))
		}
	}
	if res.PlanUpdated && res.Plan != nil {
		sb.WriteString("\n")
		sb.WriteString(planReply(*res.Plan))
	}
	return strings.TrimSpace(sb.String())
}

// documentType trusts the declared MIME type and falls back to the file extension.
func documentType(doc *tgbotapi.Document) string {
	if doc.MimeType != "" && doc.MimeType != "application/octet-stream" {
		return doc.MimeType
	}
	switch strings.ToLower(path.Ext(doc.FileName)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	default:
		return "text/plain"
	}
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("download: file exceeds %d bytes", maxDocumentBytes)
	}
	return body, nil
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	tasks, err := b.taskSvc.Pending(ctx, user.ID)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load tasks: %s", html.EscapeString(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "No open tasks. Send me a syllabus to import deadlines.")
	}

	groups := make(map[string][]model.Task)
	var order []string
	for _, task := range tasks {
		key := strings.TrimSpace(task.Course)
		if key == "" {
			key = noCourse
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], task)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i] == noCourse {
			return false
		}
		if order[j] == noCourse {
			return true
		}
		return order[i] < order[j]
	})

	now := b.now()
	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n")
	builder.WriteString("Tap a button to mark a task completed.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		builder.WriteString(fmt.Sprintf("🎓 <b>%s</b>\n", html.EscapeString(key)))
		for _, task := range groups[key] {
			builder.WriteString(service.FormatTask(task, now))
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 24)),
					fmt.Sprintf("%s%d", cbCompletePrefix, task.ID),
				),
			))
		}
		builder.WriteByte('\n')
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warnw("callback ack", "error", err)
	}
	if !strings.HasPrefix(cb.Data, cbCompletePrefix) {
		return nil
	}
	taskID, err := parseTaskID(cb.Data, cbCompletePrefix)
	if err != nil {
		return nil
	}
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}
	if err := b.completeTask(ctx, cb.Message.Chat.ID, user, taskID); err != nil {
		return err
	}
	return b.sendTaskList(ctx, cb.Message.Chat.ID, user)
}

func parseTaskID(data, prefix string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(data, prefix), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("bad task id in %q", data)
	}
	return uint(id), nil
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}
