package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type EventType string

const (
	EventTypeConversationStarted  EventType = "conversation-started"
	EventTypeTurn                 EventType = "turn"
	EventTypeConversationFinished EventType = "conversation-finished"
	EventTypeCredentialRotated    EventType = "credential-rotated"
	EventTypeDocumentSkipped      EventType = "document-skipped"
)

// Turn is the event form of a generated turn.
type Turn struct {
	Index        int    `json:"index"`
	Role         string `json:"role"`
	Speaker      string `json:"speaker"`
	ResponseType string `json:"response_type"`
	Content      string `json:"content"`
}

// Event reports progress of a batch run. Fields that do not apply to a type are left empty.
type Event struct {
	Type           EventType `json:"type"`
	Document       string    `json:"document,omitempty"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Turn           *Turn     `json:"turn,omitempty"`
	Slot           int       `json:"slot,omitempty"`
	Message        string    `json:"message,omitempty"`
	Time           time.Time `json:"time"`
}

func NewConversationStartedEvent(document string, id uuid.UUID, budget int) Event {
	return Event{
		Type:           EventTypeConversationStarted,
		Document:       document,
		ConversationID: id,
		Message:        "budget " + strconv.Itoa(budget),
		Time:           time.Now(),
	}
}

func NewTurnEvent(document string, t turns.Turn) Event {
	return Event{
		Type:           EventTypeTurn,
		Document:       document,
		ConversationID: t.ConversationID,
		Turn: &Turn{
			Index:        t.TurnIndex,
			Role:         string(t.Role),
			Speaker:      t.SpeakerName,
			ResponseType: string(t.ResponseType),
			Content:      t.Content,
		},
		Time: time.Now(),
	}
}

func NewConversationFinishedEvent(document string, id uuid.UUID, reason string) Event {
	return Event{
		Type:           EventTypeConversationFinished,
		Document:       document,
		ConversationID: id,
		Message:        reason,
		Time:           time.Now(),
	}
}

func NewCredentialRotatedEvent(document string, slot int, reason string) Event {
	return Event{
		Type:     EventTypeCredentialRotated,
		Document: document,
		Slot:     slot,
		Message:  reason,
		Time:     time.Now(),
	}
}

func NewDocumentSkippedEvent(document string) Event {
	return Event{
		Type:     EventTypeDocumentSkipped,
		Document: document,
		Message:  "already processed",
		Time:     time.Now(),
	}
}

func NewEventFromJson(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "could not parse event")
	}
	if e.Type == "" {
		return Event{}, errors.New("event has no type")
	}
	return e, nil
}
