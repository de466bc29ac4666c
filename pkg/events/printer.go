package events

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/mattn/go-isatty"
)

type PrinterOption func(*printer)

// WithThoughts sets the lines shown while a conversation is being generated.
func WithThoughts(thoughts []string) PrinterOption {
	return func(p *printer) {
		p.thoughts = thoughts
	}
}

func WithRand(r *rand.Rand) PrinterOption {
	return func(p *printer) {
		p.rand = r
	}
}

// WithInteractive forces showing thoughts, whether w is a terminal or not.
func WithInteractive(interactive bool) PrinterOption {
	return func(p *printer) {
		p.interactive = interactive
	}
}

type printer struct {
	w           io.Writer
	thoughts    []string
	rand        *rand.Rand
	interactive bool
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ConsolePrinterFunc returns a handler printing a run's progress to w.
func ConsolePrinterFunc(w io.Writer, options ...PrinterOption) func(msg *message.Message) error {
	p := &printer{
		w:           w,
		rand:        rand.New(rand.NewSource(rand.Int63())),
		interactive: IsTerminal(w),
	}
	for _, o := range options {
		o(p)
	}

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		return p.print(e)
	}
}

func (p *printer) print(e Event) error {
	var err error
	switch e.Type {
	case EventTypeConversationStarted:
		_, err = fmt.Fprintf(p.w, "\n=== %s (%s, %s) ===\n", e.Document, shortID(e.ConversationID.String()), e.Message)
		if err == nil && p.interactive && len(p.thoughts) > 0 {
			_, err = fmt.Fprintf(p.w, "%s\n", p.thoughts[p.rand.Intn(len(p.thoughts))])
		}
	case EventTypeTurn:
		if e.Turn == nil {
			return nil
		}
		content := e.Turn.Content
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		_, err = fmt.Fprintf(p.w, "\n[%d] %s (%s):\n%s", e.Turn.Index, e.Turn.Speaker, e.Turn.ResponseType, content)
	case EventTypeConversationFinished:
		_, err = fmt.Fprintf(p.w, "=== finished %s: %s ===\n", shortID(e.ConversationID.String()), e.Message)
	case EventTypeCredentialRotated:
		_, err = fmt.Fprintf(p.w, "[credential %d] %s\n", e.Slot, e.Message)
	case EventTypeDocumentSkipped:
		_, err = fmt.Fprintf(p.w, "skipping %s: %s\n", e.Document, e.Message)
	}
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
