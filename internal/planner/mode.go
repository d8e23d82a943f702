package planner

// Mode selects how a day is planned.
type Mode string

const (
	// ModeInteractive tries the model first and falls back on any failure.
	ModeInteractive Mode = "interactive"
	// ModeBatch goes straight to the deterministic fallback.
	ModeBatch Mode = "batch"
)

// ParseMode maps user input onto a mode, defaulting to interactive.
func ParseMode(raw string) Mode {
	if Mode(raw) == ModeBatch {
		return ModeBatch
	}
	return ModeInteractive
}
