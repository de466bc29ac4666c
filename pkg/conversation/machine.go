package conversation

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type State int

const (
	StateAwaitingUserOpen State = iota
	StateAwaitingReasoning
	StateAwaitingAssistant
	StateAwaitingUserFollowup
	StateAwaitingToolCall
	StateAwaitingUserFinal
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateAwaitingUserOpen:
		return "awaiting-user-open"
	case StateAwaitingReasoning:
		return "awaiting-reasoning"
	case StateAwaitingAssistant:
		return "awaiting-assistant"
	case StateAwaitingUserFollowup:
		return "awaiting-user-followup"
	case StateAwaitingToolCall:
		return "awaiting-tool-call"
	case StateAwaitingUserFinal:
		return "awaiting-user-final"
	case StateTerminal:
		return "terminal"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type stepKind int

const (
	kindOpening stepKind = iota
	kindReasoning
	kindAssistant
	kindFollowup
	kindToolCall
	kindFinal
	kindInterstitial
)

// Step is one generation the caller has to run.
type Step struct {
	Role         turns.Role
	ResponseType turns.ResponseType
	Speaker      string
	Prompt       string
	// History is the context sent along with Prompt. Follow-ups only see the
	// user history, every other step sees the full model history.
	History   []turns.Turn
	MaxTokens int
	// Interstitial is set for the filler turn inserted to keep roles alternating.
	Interstitial bool

	kind  stepKind
	index int
}

type Options struct {
	// Budget is the number of user-persona messages, the opening included.
	Budget int
	// StrictAlternation inserts an interstitial turn whenever two consecutive
	// model-history turns would share a role.
	StrictAlternation bool
	Personas          settings.PersonaSettings
	ToolMarker        string
	MaxTokens         settings.MaxTokens
}

// SampleBudget draws a budget from the inclusive range [min, max].
func SampleBudget(r *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + r.Intn(max-min+1)
}

// Machine drives the turn taking of one conversation. It is not safe for
// concurrent use.
//
// The caller loops on Next, runs the step against a backend, passes the text
// to Produce, persists the returned turn, then calls Commit.
type Machine struct {
	id       uuid.UUID
	document turns.Document
	prompts  *Prompts
	opts     Options

	state        State
	modelHistory []turns.Turn
	userHistory  []turns.Turn
	exchanges    int
	pending      *Step
}

func NewMachine(id uuid.UUID, document turns.Document, prompts *Prompts, opts Options) *Machine {
	if opts.Budget < 1 {
		opts.Budget = 1
	}
	return &Machine{
		id:       id,
		document: document,
		prompts:  prompts,
		opts:     opts,
		state:    StateAwaitingUserOpen,
	}
}

func (m *Machine) ID() uuid.UUID {
	return m.id
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Budget() int {
	return m.opts.Budget
}

// ModelHistory returns a copy of every turn produced so far.
func (m *Machine) ModelHistory() []turns.Turn {
	return append([]turns.Turn{}, m.modelHistory...)
}

// UserHistory returns a copy of the turns visible to the user persona.
func (m *Machine) UserHistory() []turns.Turn {
	return append([]turns.Turn{}, m.userHistory...)
}

// Terminate ends the conversation, keeping the turns produced so far.
func (m *Machine) Terminate() {
	m.state = StateTerminal
	m.pending = nil
}

// Next returns the next step to run, or false once the conversation is over.
func (m *Machine) Next() (Step, bool, error) {
	if m.state == StateTerminal {
		return Step{}, false, nil
	}

	step, err := m.stepFor(m.state)
	if err != nil {
		return Step{}, false, err
	}

	if m.opts.StrictAlternation && len(m.modelHistory) > 0 {
		last := m.modelHistory[len(m.modelHistory)-1]
		if last.Role == step.Role {
			step, err = m.interstitialStep(step.Role.Opposite())
			if err != nil {
				return Step{}, false, err
			}
		}
	}

	if m.opts.StrictAlternation {
		step.History = mergeSameRole(step.History)
	}

	step.index = len(m.modelHistory)
	m.pending = &step
	return step, true, nil
}

func (m *Machine) stepFor(state State) (Step, error) {
	p := m.prompts
	personas := m.opts.Personas

	var (
		step    Step
		prompt  string
		err     error
		history = m.ModelHistory()
	)

	switch state {
	case StateAwaitingUserOpen:
		prompt, err = render(p.opening, p.with(m.document.Content, ""))
		step = Step{Role: turns.RoleUser, ResponseType: turns.ResponseTypeUser, Speaker: personas.User, kind: kindOpening}
		history = nil
	case StateAwaitingReasoning:
		prompt, err = render(p.reasoning, p.with("", turns.RenderTranscript(m.modelHistory)))
		step = Step{Role: turns.RoleAssistant, ResponseType: turns.ResponseTypeChainOfReason, Speaker: personas.Reasoning, kind: kindReasoning}
	case StateAwaitingAssistant:
		prompt, err = render(p.assistant, p.with("", turns.RenderTranscript(m.modelHistory)))
		step = Step{Role: turns.RoleAssistant, ResponseType: turns.ResponseTypeAssistant, Speaker: personas.Assistant, kind: kindAssistant}
	case StateAwaitingUserFollowup, StateAwaitingUserFinal:
		prompt, err = render(p.followup, p.with("", turns.RenderTranscript(m.userHistory)))
		step = Step{Role: turns.RoleUser, ResponseType: turns.ResponseTypeUser, Speaker: personas.User, kind: kindFollowup}
		if state == StateAwaitingUserFinal {
			step.kind = kindFinal
		}
		history = m.UserHistory()
	case StateAwaitingToolCall:
		prompt, err = render(p.toolCall, p.with("", turns.RenderTranscript(m.modelHistory)))
		step = Step{Role: turns.RoleAssistant, ResponseType: turns.ResponseTypeToolCall, Speaker: personas.Tool, kind: kindToolCall}
	default:
		return Step{}, errors.Errorf("no step for state %s", state)
	}
	if err != nil {
		return Step{}, err
	}

	step.Prompt = prompt
	step.History = history
	step.MaxTokens = m.opts.MaxTokens.For(string(step.ResponseType))
	return step, nil
}

func (m *Machine) interstitialStep(role turns.Role) (Step, error) {
	prompt, err := render(m.prompts.interstitial, m.prompts.with("", turns.RenderTranscript(m.modelHistory)))
	if err != nil {
		return Step{}, err
	}
	rt := turns.ResponseTypeUser
	if role == turns.RoleAssistant {
		rt = turns.ResponseTypeAssistant
	}
	return Step{
		Role:         role,
		ResponseType: rt,
		Speaker:      m.opts.Personas.Interstitial,
		Prompt:       prompt,
		History:      m.ModelHistory(),
		MaxTokens:    m.opts.MaxTokens.For(string(rt)),
		Interstitial: true,
		kind:         kindInterstitial,
	}, nil
}

// mergeSameRole folds consecutive turns of one role into a single message.
// The user history of a strict backend holds both the opening and the
// interstitial that followed it.
func mergeSameRole(history []turns.Turn) []turns.Turn {
	ret := make([]turns.Turn, 0, len(history))
	for _, t := range history {
		if n := len(ret); n > 0 && ret[n-1].Role == t.Role {
			ret[n-1].Content = ret[n-1].Content + "\n\n" + t.Content
			continue
		}
		ret = append(ret, t)
	}
	return ret
}

// Produce turns generated content into the turn for step. Blank content ends
// the conversation and no turn is returned.
func (m *Machine) Produce(step Step, content string) (turns.Turn, bool) {
	if turns.IsBlank(content) {
		m.Terminate()
		return turns.Turn{}, false
	}

	if step.kind == kindAssistant {
		marker := m.opts.Personas.AssistantMarker
		if marker != "" && !strings.HasPrefix(content, strings.TrimSpace(marker)) {
			content = marker + content
		}
	}

	return turns.NewTurn(m.id, step.index, step.Role, step.ResponseType, step.Speaker, content), true
}

// Commit appends the turn produced for the pending step and advances the state.
func (m *Machine) Commit(t turns.Turn) error {
	if m.pending == nil {
		return errors.New("no pending step to commit")
	}
	if t.TurnIndex != m.pending.index || t.ConversationID != m.id {
		return errors.Errorf("turn %d does not belong to the pending step %d", t.TurnIndex, m.pending.index)
	}
	step := *m.pending
	m.pending = nil

	m.modelHistory = append(m.modelHistory, t)
	// Reasoning and tool calls are scratch-pad turns the user persona never sees.
	if step.kind != kindReasoning && step.kind != kindToolCall {
		m.userHistory = append(m.userHistory, t)
	}

	switch step.kind {
	case kindOpening:
		m.exchanges++
		m.state = StateAwaitingReasoning
	case kindReasoning:
		m.state = StateAwaitingAssistant
	case kindAssistant:
		if m.exchanges >= m.opts.Budget {
			m.state = StateTerminal
		} else {
			m.state = StateAwaitingUserFollowup
		}
	case kindFollowup:
		m.exchanges++
		switch {
		case m.opts.ToolMarker != "" && strings.Contains(t.Content, m.opts.ToolMarker):
			m.state = StateAwaitingToolCall
		case m.exchanges >= m.opts.Budget:
			m.state = StateTerminal
		default:
			m.state = StateAwaitingReasoning
		}
	case kindToolCall:
		// A tool call on the last exchange still gets the user's reaction.
		if m.exchanges >= m.opts.Budget {
			m.state = StateAwaitingUserFinal
		} else {
			m.state = StateAwaitingReasoning
		}
	case kindFinal:
		m.state = StateTerminal
	case kindInterstitial:
		// The state is unchanged, the step that was deferred comes next.
	}

	return nil
}
