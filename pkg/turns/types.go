package turns

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role is the chat role a turn is sent with to a backend.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Opposite returns the role that alternates with r. System turns are answered by the user.
func (r Role) Opposite() Role {
	switch r {
	case RoleUser:
		return RoleAssistant
	case RoleAssistant:
		return RoleUser
	default:
		return RoleUser
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ResponseType tells which part of the dialogue produced a turn.
type ResponseType string

const (
	ResponseTypeUser          ResponseType = "user"
	ResponseTypeChainOfReason ResponseType = "chain-of-reason"
	ResponseTypeAssistant     ResponseType = "assistant"
	ResponseTypeToolCall      ResponseType = "tool-call"
)

// Turn is one utterance of a generated dialogue.
//
// Turns are values: once created by NewTurn they are never mutated, and copies
// handed to callers cannot affect the histories they were taken from.
type Turn struct {
	Role           Role
	SpeakerName    string
	Content        string
	TurnIndex      int
	ResponseType   ResponseType
	ConversationID uuid.UUID
}

func NewTurn(
	conversationID uuid.UUID,
	index int,
	role Role,
	responseType ResponseType,
	speaker string,
	content string,
) Turn {
	return Turn{
		Role:           role,
		SpeakerName:    speaker,
		Content:        content,
		TurnIndex:      index,
		ResponseType:   responseType,
		ConversationID: conversationID,
	}
}

// TokenCount is a length proxy (characters), not a tokenizer count.
func (t Turn) TokenCount() int {
	return utf8.RuneCountInString(t.Content)
}

// IsBlank reports whether a generated text carries no content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Document is the source a dialogue is seeded from.
type Document struct {
	// Name identifies the document, usually its path. It is the key stored in the resume ledger.
	Name    string
	Content string
}
