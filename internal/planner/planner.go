// Package planner composes a day schedule from tasks, calendar events and
// preferences, either through the LLM gateway or deterministically.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/llm"
	"study-planner/internal/model"
)

const (
	planTemperature = 0.3
	planMaxTokens   = 2000
)

// ErrBadResponse means the model answered but no usable schedule came out of it.
var ErrBadResponse = errors.New("unusable plan response")

// Request is everything needed to plan one day.
type Request struct {
	Owner       uint
	Date        time.Time
	Tasks       []model.Task
	Events      []model.Event
	Preferences model.Preferences
	// Context is retrieved background text, already formatted.
	Context string
}

// AdjustRequest asks for a modified version of an existing plan.
type AdjustRequest struct {
	Request
	Current     *model.Plan
	Instruction string
}

// Result is a planned day before it is stored.
type Result struct {
	Schedule          []model.ScheduleBlock
	Conflicts         []model.Conflict
	Reasoning         string
	ProductivityScore float64
	Source            model.PlanSource
	Summary           string
}

// ToPlan stamps the result with its owner and date.
func (r Result) ToPlan(owner uint, date time.Time) model.Plan {
	return model.Plan{
		UserID:            owner,
		Date:              date.Format(model.DateLayout),
		Schedule:          r.Schedule,
		Summary:           r.Summary,
		Reasoning:         r.Reasoning,
		ProductivityScore: r.ProductivityScore,
		Conflicts:         r.Conflicts,
		Source:            r.Source,
	}
}

// Planner is the planning stage.
type Planner struct {
	gen llm.Generator
	log *zap.SugaredLogger
	now func() time.Time
}

func New(gen llm.Generator, log *zap.SugaredLogger) *Planner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Planner{gen: gen, log: log, now: time.Now}
}

// Plan asks the reasoning route for a schedule.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	if req.Owner == 0 {
		return nil, apperr.Validation("owner is required")
	}
	return p.run(ctx, p.planPrompt(req), req, model.PlanFromLLM)
}

// Adjust applies a natural-language modification to the current plan.
func (p *Planner) Adjust(ctx context.Context, req AdjustRequest) (*Result, error) {
	if req.Owner == 0 {
		return nil, apperr.Validation("owner is required")
	}
	if strings.TrimSpace(req.Instruction) == "" {
		return nil, apperr.Validation("modification is empty")
	}
	return p.run(ctx, p.adjustPrompt(req), req.Request, model.PlanAdjusted)
}

// Fallback is the deterministic plan for req at the planner's clock. Its
// blocks never overlap each other; overlaps with req.Events are reported.
func (p *Planner) Fallback(req Request) Result {
	res := Fallback(req.Date, req.Tasks, p.now())
	res.Conflicts = EventConflicts(res.Schedule, req.Events)
	return res
}

func (p *Planner) run(ctx context.Context, prompt string, req Request, source model.PlanSource) (*Result, error) {
	raw, err := p.gen.Generate(ctx, prompt, llm.RouteFor(llm.TaskPlanning), planTemperature, planMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	res, err := parsePlan(raw, req)
	if err != nil {
		p.log.Warnw("plan response rejected", "error", err, "raw_len", len(raw))
		return nil, err
	}
	res.Source = source
	return res, nil
}

// wireBlock is a block as the model writes it. Time holds the "HH:MM-HH:MM"
// form some models return instead of start_time and end_time.
type wireBlock struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Time      string `json:"time"`
	Activity  string `json:"activity"`
	Type      string `json:"type"`
	TaskID    *uint  `json:"task_id"`
	Priority  string `json:"priority"`
}

type wirePlan struct {
	Date              string      `json:"date"`
	Schedule          []wireBlock `json:"schedule"`
	Blocks            []wireBlock `json:"blocks"`
	Reasoning         string      `json:"reasoning"`
	ProductivityScore float64     `json:"productivity_score"`
}

// parsePlan reads the model's schedule for req. Conflicts are computed here
// against the parsed blocks and req.Events; the model's own claims are ignored.
func parsePlan(raw string, req Request) (*Result, error) {
	body, ok := llm.ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object", ErrBadResponse)
	}
	var wp wirePlan
	if err := json.Unmarshal([]byte(body), &wp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	wire := wp.Schedule
	if len(wire) == 0 {
		wire = wp.Blocks
	}

	known := make(map[uint]bool, len(req.Tasks))
	open := 0
	for _, t := range req.Tasks {
		known[t.ID] = true
		if !t.Status.Terminal() {
			open++
		}
	}

	blocks := make([]model.ScheduleBlock, 0, len(wire))
	for _, wb := range wire {
		b, err := toBlock(wb, req.Date, known)
		if err != nil {
			continue
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 && len(wire) > 0 {
		return nil, fmt.Errorf("%w: no valid blocks", ErrBadResponse)
	}
	if len(blocks) == 0 && open > 0 {
		return nil, fmt.Errorf("%w: empty schedule for %d open task(s)", ErrBadResponse, open)
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Start.Before(blocks[j].Start) })

	score := wp.ProductivityScore
	switch {
	case score < 0:
		score = 0
	case score > 100:
		score = 100
	}

	return &Result{
		Schedule:          blocks,
		Conflicts:         Conflicts(blocks, req.Events),
		Reasoning:         strings.TrimSpace(wp.Reasoning),
		ProductivityScore: score,
		Summary:           model.SummaryLine(blocks),
	}, nil
}

func toBlock(wb wireBlock, date time.Time, known map[uint]bool) (model.ScheduleBlock, error) {
	startRaw, endRaw := wb.StartTime, wb.EndTime
	if startRaw == "" && wb.Time != "" {
		parts := strings.SplitN(wb.Time, "-", 2)
		if len(parts) == 2 {
			startRaw, endRaw = parts[0], parts[1]
		}
	}
	start, err := clockOn(date, startRaw)
	if err != nil {
		return model.ScheduleBlock{}, err
	}
	end, err := clockOn(date, endRaw)
	if err != nil {
		return model.ScheduleBlock{}, err
	}
	if !end.After(start) {
		return model.ScheduleBlock{}, fmt.Errorf("block %q ends before it starts", wb.Activity)
	}

	b := model.ScheduleBlock{
		Start:    start,
		End:      end,
		Activity: strings.TrimSpace(wb.Activity),
		Type:     model.ParseBlockType(wb.Type),
	}
	if wb.TaskID != nil && known[*wb.TaskID] {
		id := *wb.TaskID
		b.TaskID = &id
	}
	if wb.Priority != "" {
		b.Priority = model.ParsePriority(wb.Priority)
	}
	return b, nil
}

// clockOn places an HH:MM clock reading on date's calendar day.
func clockOn(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(model.ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}
