package planner

import (
	"fmt"

	"study-planner/internal/model"
)

// DetectConflicts reports every pair of study or event blocks whose
// [start, end) intervals overlap, ordered by first then second index.
func DetectConflicts(blocks []model.ScheduleBlock) []model.Conflict {
	var out []model.Conflict
	for i := 0; i < len(blocks); i++ {
		if !blocking(blocks[i]) {
			continue
		}
		for j := i + 1; j < len(blocks); j++ {
			if !blocking(blocks[j]) {
				continue
			}
			a, b := blocks[i], blocks[j]
			if a.Start.Before(b.End) && b.Start.Before(a.End) {
				out = append(out, model.Conflict{
					First:  i,
					Second: j,
					Description: fmt.Sprintf("%q (%s) overlaps %q (%s)",
						a.Activity, span(a, a), b.Activity, span(b, a)),
				})
			}
		}
	}
	return out
}

// EventConflicts reports study or event blocks that overlap a calendar event
// missing from the schedule. An event counts as carried when an event block
// covers exactly its interval.
func EventConflicts(blocks []model.ScheduleBlock, events []model.Event) []model.Conflict {
	var out []model.Conflict
	for _, ev := range events {
		if carried(blocks, ev) {
			continue
		}
		evBlock := model.ScheduleBlock{Start: ev.Start, End: ev.End, Activity: ev.Title, Type: model.BlockEvent}
		for i, b := range blocks {
			if !blocking(b) || !(b.Start.Before(ev.End) && ev.Start.Before(b.End)) {
				continue
			}
			out = append(out, model.Conflict{
				First:  i,
				Second: -1,
				Event:  ev.Title,
				Description: fmt.Sprintf("%q (%s) overlaps calendar event %q (%s)",
					b.Activity, span(b, b), ev.Title, span(evBlock, b)),
			})
		}
	}
	return out
}

// Conflicts is every overlap inside the schedule followed by every overlap
// with a calendar event it leaves out.
func Conflicts(blocks []model.ScheduleBlock, events []model.Event) []model.Conflict {
	return append(DetectConflicts(blocks), EventConflicts(blocks, events)...)
}

func carried(blocks []model.ScheduleBlock, ev model.Event) bool {
	for _, b := range blocks {
		if b.Type == model.BlockEvent && b.Start.Equal(ev.Start) && b.End.Equal(ev.End) {
			return true
		}
	}
	return false
}

// span renders b's clock interval in the location of ref.
func span(b, ref model.ScheduleBlock) string {
	loc := ref.Start.Location()
	return b.Start.In(loc).Format(model.ClockLayout) + "-" + b.End.In(loc).Format(model.ClockLayout)
}

func blocking(b model.ScheduleBlock) bool {
	return b.Type == model.BlockStudy || b.Type == model.BlockEvent
}
