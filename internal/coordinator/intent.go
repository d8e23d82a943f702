package coordinator

import (
	"strings"
	"unicode"
)

// Intent is the coarse purpose of a chat message.
type Intent string

const (
	IntentScheduleQuery        Intent = "schedule_query"
	IntentScheduleModification Intent = "schedule_modification"
	IntentGeneralChat          Intent = "general_chat"
)

var modificationWords = map[string]bool{
	"move": true, "change": true, "reschedule": true, "modify": true,
	"postpone": true, "shift": true, "swap": true,
}

var scheduleWords = map[string]bool{
	"schedule": true, "plan": true, "today": true, "tomorrow": true,
	"calendar": true, "agenda": true, "deadline": true, "due": true,
}

// Classify looks the message's words up in two keyword sets. Modification
// words win over schedule words; matching is on whole words, so
// "reschedule" is a modification and not a query.
func Classify(message string) Intent {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	schedule := false
	for _, w := range words {
		if modificationWords[w] {
			return IntentScheduleModification
		}
		if scheduleWords[w] {
			schedule = true
		}
	}
	if schedule {
		return IntentScheduleQuery
	}
	return IntentGeneralChat
}
