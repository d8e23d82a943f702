// Package coordinator runs the document, planning and chat workflows over
// the pipeline stages.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"study-planner/internal/apperr"
	"study-planner/internal/calendar"
	"study-planner/internal/chat"
	"study-planner/internal/contextstore"
	"study-planner/internal/extraction"
	"study-planner/internal/metrics"
	"study-planner/internal/model"
	"study-planner/internal/planner"
	"study-planner/internal/repository"
	"study-planner/internal/service"
	"study-planner/internal/tools"
)

// FallbackReply is sent when no model can answer a chat message.
const FallbackReply = "I can't reach my planning assistant right now. Your tasks and schedule are safe; please try again in a few minutes."

const chatContextTopK = 3

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Extractor *extraction.Extractor
	Planner   *planner.Planner
	Responder *chat.Responder
	Store     *contextstore.Store
	Tools     *tools.Server
	Tasks     *service.TaskService
	Plans     *repository.PlanRepository
	Users     *repository.UserRepository
	Documents *repository.DocumentRepository
	Calendar  calendar.Store
	Location  *time.Location
	Logger    *zap.SugaredLogger
}

// Coordinator orchestrates the workflows.
type Coordinator struct {
	extractor *extraction.Extractor
	planner   *planner.Planner
	responder *chat.Responder
	store     *contextstore.Store
	tools     *tools.Server
	tasks     *service.TaskService
	plans     *repository.PlanRepository
	users     *repository.UserRepository
	documents *repository.DocumentRepository
	calendar  calendar.Store
	loc       *time.Location
	log       *zap.SugaredLogger
	now       func() time.Time
}

func New(d Deps) *Coordinator {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Coordinator{
		extractor: d.Extractor,
		planner:   d.Planner,
		responder: d.Responder,
		store:     d.Store,
		tools:     d.Tools,
		tasks:     d.Tasks,
		plans:     d.Plans,
		users:     d.Users,
		documents: d.Documents,
		calendar:  d.Calendar,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// Today is the current calendar day in the coordinator's location.
func (c *Coordinator) Today() time.Time {
	return startOfDay(c.now(), c.loc)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Extract runs the extraction stage alone, without storing anything.
func (c *Coordinator) Extract(ctx context.Context, text string) (*model.ExtractionResult, error) {
	return c.extractor.Extract(ctx, text)
}

// Query searches the owner's context.
func (c *Coordinator) Query(ctx context.Context, owner uint, text string, topK int) ([]contextstore.Hit, error) {
	res, err := c.tools.Dispatch(ctx, tools.SearchContext{Owner: owner, Query: text, TopK: topK})
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// PlanDay plans date for owner, stores the plan and indexes it.
// Interactive mode asks the model and falls back to the deterministic plan
// on any planner failure; batch mode uses the deterministic plan directly.
func (c *Coordinator) PlanDay(ctx context.Context, owner uint, date time.Time, mode planner.Mode) (*model.Plan, error) {
	if owner == 0 {
		return nil, apperr.Validation("owner is required")
	}
	day := startOfDay(date, c.loc)

	req, err := c.gather(ctx, owner, day)
	if err != nil {
		return nil, err
	}

	var res planner.Result
	if mode == planner.ModeBatch {
		res = c.planner.Fallback(req)
	} else {
		req.Context = c.planningContext(ctx, owner)
		llmRes, err := c.planner.Plan(ctx, req)
		if err != nil {
			c.log.Warnw("model planning failed, using fallback", "user_id", owner, "date", day.Format(model.DateLayout), "error", err)
			res = c.planner.Fallback(req)
		} else {
			res = *llmRes
		}
	}

	return c.save(ctx, res.ToPlan(owner, day))
}

func (c *Coordinator) save(ctx context.Context, plan model.Plan) (*model.Plan, error) {
	if err := c.plans.Upsert(ctx, &plan); err != nil {
		return nil, err
	}
	metrics.PlansGenerated.WithLabelValues(string(plan.Source)).Inc()
	if _, err := c.store.AddPlan(ctx, plan); err != nil {
		c.log.Warnw("index plan failed", "user_id", plan.UserID, "date", plan.Date, "error", err)
	}
	return &plan, nil
}

// gather loads open tasks, the day's events and preferences concurrently.
// Calendar and preference lookups degrade to empty/defaults.
func (c *Coordinator) gather(ctx context.Context, owner uint, day time.Time) (planner.Request, error) {
	req := planner.Request{Owner: owner, Date: day, Preferences: model.DefaultPreferences()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := c.tools.Dispatch(gctx, tools.GetUserTasks{Owner: owner})
		if err != nil {
			return fmt.Errorf("load tasks: %w", err)
		}
		req.Tasks = res.Tasks
		return nil
	})
	var events []model.Event
	g.Go(func() error {
		res, err := c.tools.Dispatch(gctx, tools.GetCalendarEvents{Owner: owner, Date: day})
		if err != nil {
			c.log.Warnw("calendar unavailable, planning without events", "user_id", owner, "error", err)
			return nil
		}
		events = res.Events
		return nil
	})
	var prefs *model.Preferences
	g.Go(func() error {
		user, err := c.users.FindByID(gctx, owner)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				c.log.Warnw("preferences unavailable, using defaults", "user_id", owner, "error", err)
			}
			return nil
		}
		p := user.Preferences()
		prefs = &p
		return nil
	})
	if err := g.Wait(); err != nil {
		return req, err
	}
	req.Events = events
	if prefs != nil {
		req.Preferences = *prefs
	}
	return req, nil
}

func (c *Coordinator) planningContext(ctx context.Context, owner uint) string {
	hits, err := c.Query(ctx, owner, "upcoming deadlines, study habits and recent plans", chatContextTopK)
	if err != nil {
		c.log.Warnw("planning context unavailable", "user_id", owner, "error", err)
		return ""
	}
	return contextstore.FormatHits(hits)
}

// ItemFailure is one extracted item that could not be stored.
type ItemFailure struct {
	Kind   string `json:"kind"`
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Upload is a document as it arrived, already converted to text.
type Upload struct {
	Filename    string
	ContentType string
	Size        int
	Text        string
}

// DocumentResult reports what ProcessDocument stored.
type DocumentResult struct {
	DocumentID     uint                    `json:"document_id"`
	Extraction     *model.ExtractionResult `json:"extraction"`
	TasksCreated   int                     `json:"tasks_created"`
	TaskIDs        []uint                  `json:"task_ids"`
	EventsCreated  int                     `json:"events_created"`
	ContextEntries int                     `json:"context_entries"`
	Failures       []ItemFailure           `json:"failures,omitempty"`
	PlanUpdated    bool                    `json:"plan_updated"`
	Plan           *model.Plan             `json:"plan,omitempty"`
}

// ProcessDocument extracts assignments and events from an upload, stores
// them and replans today. Items that cannot be stored are reported in
// Failures; the rest are kept. An unparseable extraction returns an error
// matching apperr.ErrExtractionFailed that carries the raw model output.
// Every valid upload is recorded with its outcome.
func (c *Coordinator) ProcessDocument(ctx context.Context, owner uint, up Upload) (*DocumentResult, error) {
	if owner == 0 {
		return nil, apperr.Validation("owner is required")
	}
	text := up.Text
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("document text is empty")
	}

	doc := c.recordUpload(ctx, owner, up)
	extracted, err := c.extractor.Extract(ctx, text)
	if err != nil {
		c.finishDocument(ctx, doc, func(d *model.Document) {
			d.Status = model.DocumentFailed
			d.Error = err.Error()
			var failed *extraction.FailedError
			if errors.As(err, &failed) {
				d.RawOutput = failed.Raw
			}
		})
		return nil, err
	}
	res := &DocumentResult{Extraction: extracted, TaskIDs: []uint{}}
	if doc != nil {
		res.DocumentID = doc.ID
	}

	ids, err := c.store.AddDocument(ctx, owner, text)
	res.ContextEntries = len(ids)
	if err != nil {
		c.log.Warnw("index document failed", "user_id", owner, "stored_chunks", len(ids), "error", err)
	}

	for i, a := range extracted.Assignments {
		deadline, err := c.ParseDeadline(a.Deadline)
		if err != nil {
			res.Failures = append(res.Failures, ItemFailure{Kind: "assignment", Index: i, Title: a.Title, Reason: err.Error()})
			continue
		}
		task, err := c.tasks.Create(ctx, owner, service.TaskInput{
			Title:             a.Title,
			Description:       a.Description,
			Course:            a.Course,
			Deadline:          deadline,
			EstimatedDuration: a.EstimatedDuration,
			Priority:          model.ParsePriority(a.Priority),
			Source:            model.SourceDocument,
		})
		if err != nil {
			res.Failures = append(res.Failures, ItemFailure{Kind: "assignment", Index: i, Title: a.Title, Reason: err.Error()})
			continue
		}
		res.TasksCreated++
		res.TaskIDs = append(res.TaskIDs, task.ID)
	}

	for i, ev := range extracted.Events {
		if _, err := c.calendar.AddExtracted(ctx, owner, ev); err != nil {
			res.Failures = append(res.Failures, ItemFailure{Kind: "event", Index: i, Title: ev.Title, Reason: err.Error()})
			continue
		}
		res.EventsCreated++
	}

	plan, err := c.PlanDay(ctx, owner, c.Today(), planner.ModeInteractive)
	if err != nil {
		c.log.Warnw("replan after document failed", "user_id", owner, "error", err)
	} else {
		res.PlanUpdated = true
		res.Plan = plan
	}

	c.finishDocument(ctx, doc, func(d *model.Document) {
		d.Status = model.DocumentCompleted
		d.ProcessedData = extracted
		d.TasksCreated = res.TasksCreated
		d.EventsCreated = res.EventsCreated
	})
	c.log.Infow("document processed", "user_id", owner, "document_id", res.DocumentID, "tasks", res.TasksCreated, "events", res.EventsCreated, "failures", len(res.Failures))
	return res, nil
}

// recordUpload stores the upload as processing. A failed write is logged and
// processing goes on without a record.
func (c *Coordinator) recordUpload(ctx context.Context, owner uint, up Upload) *model.Document {
	if c.documents == nil {
		return nil
	}
	doc := &model.Document{
		UserID:        owner,
		Filename:      defaultString(up.Filename, "inline.txt"),
		FileType:      defaultString(up.ContentType, "text/plain"),
		FileSize:      up.Size,
		ExtractedText: up.Text,
		Status:        model.DocumentProcessing,
	}
	if doc.FileSize == 0 {
		doc.FileSize = len(up.Text)
	}
	if err := c.documents.Create(ctx, doc); err != nil {
		c.log.Warnw("record document failed", "user_id", owner, "filename", doc.Filename, "error", err)
		return nil
	}
	return doc
}

func (c *Coordinator) finishDocument(ctx context.Context, doc *model.Document, update func(*model.Document)) {
	if doc == nil {
		return
	}
	update(doc)
	at := c.now()
	doc.ProcessedAt = &at
	if err := c.documents.Save(ctx, doc); err != nil {
		c.log.Warnw("update document record failed", "document_id", doc.ID, "status", doc.Status, "error", err)
	}
}

func defaultString(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// Documents lists the owner's recorded uploads, newest first.
func (c *Coordinator) Documents(ctx context.Context, owner uint, limit int) ([]model.Document, error) {
	if owner == 0 {
		return nil, apperr.Validation("owner is required")
	}
	if c.documents == nil {
		return nil, nil
	}
	return c.documents.ListByOwner(ctx, owner, limit)
}

// Document returns one recorded upload of owner.
func (c *Coordinator) Document(ctx context.Context, owner, id uint) (*model.Document, error) {
	if c.documents == nil {
		return nil, apperr.ErrNotFound
	}
	return c.documents.FindByID(ctx, owner, id)
}

var deadlineLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

// ParseDeadline accepts a date or a date-time. A bare date means the end of that day.
func (c *Coordinator) ParseDeadline(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperr.Validation("missing deadline")
	}
	if d, err := time.ParseInLocation(model.DateLayout, raw, c.loc); err == nil {
		return d.Add(23*time.Hour + 59*time.Minute), nil
	}
	for _, layout := range deadlineLayouts {
		if d, err := time.ParseInLocation(layout, raw, c.loc); err == nil {
			return d, nil
		}
	}
	return time.Time{}, apperr.Validation("unrecognised deadline %q", raw)
}

// ChatResult is the reply to a chat message.
type ChatResult struct {
	Response    string `json:"response"`
	Intent      Intent `json:"intent"`
	ContextUsed int    `json:"context_used"`
	PlanUpdated bool   `json:"plan_updated"`
	// Degraded is set when the reply is the fixed fallback.
	Degraded bool `json:"degraded"`
}

// HandleChat answers a message. Retrieval, planning and generation failures
// degrade the answer; only invalid input returns an error.
func (c *Coordinator) HandleChat(ctx context.Context, owner uint, message string, history []chat.Message) (*ChatResult, error) {
	if owner == 0 {
		return nil, apperr.Validation("owner is required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.Validation("message is empty")
	}

	intent := Classify(message)
	result := &ChatResult{Intent: intent}
	req := chat.Request{Owner: owner, Message: message, History: history}

	if user, err := c.users.FindByID(ctx, owner); err == nil {
		req.Name = user.DisplayName()
	}

	hits, err := c.Query(ctx, owner, message, chatContextTopK)
	if err != nil {
		c.log.Warnw("chat retrieval failed", "user_id", owner, "error", err)
	} else {
		req.Context = contextstore.FormatHits(hits)
		result.ContextUsed = len(hits)
	}

	if intent != IntentGeneralChat {
		today := c.Today()
		current, err := c.plans.Get(ctx, owner, today.Format(model.DateLayout))
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			c.log.Warnw("load today's plan failed", "user_id", owner, "error", err)
		}
		if err == nil {
			req.Plan = current
		}
		req.Events = c.describeEvents(ctx, owner, today)

		if intent == IntentScheduleModification {
			updated, err := c.adjust(ctx, owner, today, current, message)
			if err != nil {
				c.log.Warnw("schedule change failed", "user_id", owner, "error", err)
				req.Note = "The requested schedule change could not be applied right now. Tell the student and keep the current plan."
			} else {
				req.Plan = updated
				req.Note = "The requested schedule change has been applied. The plan above is the updated one."
				result.PlanUpdated = true
			}
		}
	}

	reply, err := c.responder.Respond(ctx, req)
	if err != nil {
		c.log.Warnw("chat generation failed, sending fallback reply", "user_id", owner, "error", err)
		reply = FallbackReply
		result.Degraded = true
	}
	result.Response = reply
	return result, nil
}

func (c *Coordinator) describeEvents(ctx context.Context, owner uint, day time.Time) []string {
	events, err := c.calendar.EventsForDate(ctx, owner, day)
	if err != nil {
		c.log.Warnw("load today's events failed", "user_id", owner, "error", err)
		return nil
	}
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, calendar.Describe(e, c.loc))
	}
	return out
}

func (c *Coordinator) adjust(ctx context.Context, owner uint, day time.Time, current *model.Plan, instruction string) (*model.Plan, error) {
	req, err := c.gather(ctx, owner, day)
	if err != nil {
		return nil, err
	}
	res, err := c.planner.Adjust(ctx, planner.AdjustRequest{Request: req, Current: current, Instruction: instruction})
	if err != nil {
		return nil, err
	}
	return c.save(ctx, res.ToPlan(owner, day))
}

// GetPlan returns the stored plan of owner on date.
func (c *Coordinator) GetPlan(ctx context.Context, owner uint, date time.Time) (*model.Plan, error) {
	return c.plans.Get(ctx, owner, startOfDay(date, c.loc).Format(model.DateLayout))
}

// ParseDate reads a YYYY-MM-DD date in the coordinator's location; empty means today.
func (c *Coordinator) ParseDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return c.Today(), nil
	}
	d, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(raw), c.loc)
	if err != nil {
		return time.Time{}, apperr.Validation("date %q must be YYYY-MM-DD", raw)
	}
	return d, nil
}
