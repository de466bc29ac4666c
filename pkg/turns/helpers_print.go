package turns

import (
	"fmt"
	"io"
	"strings"
)

// FprintTurns prints turns in a readable transcript form.
func FprintTurns(w io.Writer, ts []Turn) {
	for _, t := range ts {
		name := t.SpeakerName
		if name == "" {
			name = string(t.Role)
		}
		fmt.Fprintf(w, "[%d] %s (%s): %s\n", t.TurnIndex, name, t.ResponseType, t.Content)
	}
}

// RenderTranscript renders turns as "Speaker: content" lines, the form used inside prompts.
func RenderTranscript(ts []Turn) string {
	var sb strings.Builder
	for i, t := range ts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		name := t.SpeakerName
		if name == "" {
			name = string(t.Role)
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(t.Content))
	}
	return sb.String()
}

// IsSubsequence reports whether sub appears in full in the same relative order.
// Turns are compared by conversation id and turn index.
func IsSubsequence(sub, full []Turn) bool {
	j := 0
	for _, t := range full {
		if j == len(sub) {
			break
		}
		if t.ConversationID == sub[j].ConversationID && t.TurnIndex == sub[j].TurnIndex {
			j++
		}
	}
	return j == len(sub)
}
