package extraction

import (
	"fmt"
	"strings"
)

// maxDocumentChars bounds the document text placed in the prompt.
const maxDocumentChars = 4000

const fewShot = `Example 1:
Input: "Math 101 Homework due October 20, 2025. Complete problems 1-15 from Chapter 3."
Output: {
    "title": "Math 101 Homework",
    "deadline": "2025-10-20",
    "course": "Math 101",
    "description": "Complete problems 1-15 from Chapter 3"
}

Example 2:
Input: "CS project submission: Build a web app. Deadline: Nov 5th."
Output: {
    "title": "CS project submission",
    "deadline": "2025-11-05",
    "course": "CS",
    "description": "Build a web app"
}`

func buildPrompt(text, today string) string {
	var sb strings.Builder
	sb.WriteString("You are DocBot, an academic document analyst. You read syllabi and assignment sheets and pull out every deadline a student must act on.\n\n")
	sb.WriteString("Extract all assignments, deadlines, and events from the document below.\n")
	sb.WriteString("Reason step by step:\n")
	sb.WriteString("1. Identify phrases that indicate assignments\n")
	sb.WriteString("2. Extract the associated deadlines and dates\n")
	sb.WriteString("3. Determine the course or subject\n")
	sb.WriteString("4. Structure the information\n\n")
	fmt.Fprintf(&sb, "Today is %s. Resolve relative or year-less dates against it.\n\n", today)
	sb.WriteString(fewShot)
	sb.WriteString("\n\nDocument:\n")
	sb.WriteString(truncate(text, maxDocumentChars))
	sb.WriteString(`

Return only JSON with this shape:
{
    "assignments": [{"title": "", "deadline": "YYYY-MM-DD", "course": "", "priority": "low|medium|high|urgent", "description": "", "estimated_duration": 60}],
    "events": [{"title": "", "date": "YYYY-MM-DD", "time": "HH:MM", "location": ""}],
    "confidence": 0.0
}`)
	return sb.String()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
