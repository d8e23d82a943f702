package model

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of plan dates.
const DateLayout = "2006-01-02"

// ClockLayout is the HH:MM format used in prompts and LLM output.
const ClockLayout = "15:04"

// BlockType classifies a schedule block.
type BlockType string

const (
	BlockStudy    BlockType = "study"
	BlockBreak    BlockType = "break"
	BlockEvent    BlockType = "event"
	BlockPersonal BlockType = "personal"
)

// ParseBlockType maps LLM output onto a block type; unknown values become personal.
func ParseBlockType(raw string) BlockType {
	switch BlockType(normalizeWord(raw)) {
	case BlockStudy:
		return BlockStudy
	case BlockBreak:
		return BlockBreak
	case BlockEvent:
		return BlockEvent
	default:
		return BlockPersonal
	}
}

// PlanSource records which path produced a plan.
type PlanSource string

const (
	PlanFromLLM      PlanSource = "llm"
	PlanFromFallback PlanSource = "fallback"
	PlanAdjusted     PlanSource = "adjusted"
)

// ScheduleBlock is a single time-boxed entry of a day plan.
type ScheduleBlock struct {
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Activity string       `json:"activity"`
	Type     BlockType    `json:"type"`
	TaskID   *uint        `json:"task_id,omitempty"`
	Priority TaskPriority `json:"priority,omitempty"`
}

// Conflict describes two overlapping intervals. First and Second index the
// schedule; Second is -1 when the overlap is with a calendar event the
// schedule does not carry, and Event then names that event.
type Conflict struct {
	First       int    `json:"first"`
	Second      int    `json:"second"`
	Event       string `json:"event,omitempty"`
	Description string `json:"description"`
}

// Plan is the schedule of one owner for one date.
type Plan struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            uint            `gorm:"uniqueIndex:idx_plan_owner_date;not null" json:"user_id"`
	Date              string          `gorm:"uniqueIndex:idx_plan_owner_date;size:10;not null" json:"date"`
	Schedule          []ScheduleBlock `gorm:"serializer:json" json:"schedule"`
	Summary           string          `json:"summary"`
	Reasoning         string          `json:"reasoning"`
	ProductivityScore float64         `json:"productivity_score"`
	Conflicts         []Conflict      `gorm:"serializer:json" json:"conflicts"`
	Source            PlanSource      `json:"source"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SummaryLine counts blocks by type, e.g. "3 study, 2 break, 1 event".
func SummaryLine(blocks []ScheduleBlock) string {
	counts := map[BlockType]int{}
	for _, b := range blocks {
		counts[b.Type]++
	}
	var parts []string
	for _, t := range []BlockType{BlockStudy, BlockBreak, BlockEvent, BlockPersonal} {
		if n := counts[t]; n > 0 {
			parts = append(parts, strconv.Itoa(n)+" "+string(t))
		}
	}
	if len(parts) == 0 {
		return "empty schedule"
	}
	return strings.Join(parts, ", ")
}
