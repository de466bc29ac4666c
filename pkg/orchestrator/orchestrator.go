package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/conversation"
	"github.com/go-go-golems/synthgen/pkg/events"
	"github.com/go-go-golems/synthgen/pkg/governor"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/toolbox"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrInterrupted is returned when the context was cancelled between two steps.
// The turns produced before the interrupt are persisted and returned along with it.
var ErrInterrupted = errors.New("interrupted")

const DefaultCallTimeout = 2 * time.Minute

// RecordWriter persists one turn before the conversation advances.
type RecordWriter interface {
	Append(t turns.Turn) error
}

// Ledger marks documents as processed.
type Ledger interface {
	RecordProcessed(id string) error
}

type Option func(*Orchestrator)

func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) {
		o.ledger = l
	}
}

func WithSink(s events.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) {
		o.rand = r
	}
}

// WithSleep replaces the function waiting between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
	}
}

func WithEstimator(e governor.TokenEstimator) Option {
	return func(o *Orchestrator) {
		o.estimator = e
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

func WithToolbox(tb *toolbox.Toolbox) Option {
	return func(o *Orchestrator) {
		o.toolbox = tb
	}
}

// Orchestrator runs the conversations of one document at a time against one
// backend. It owns its governor and must not be shared between workers.
type Orchestrator struct {
	backend      backends.Backend
	capabilities backends.Capabilities
	governor     *governor.Governor
	writer       RecordWriter
	ledger       Ledger
	sink         events.Sink
	estimator    governor.TokenEstimator
	toolbox      *toolbox.Toolbox
	rand         *rand.Rand
	sleep        func(ctx context.Context, d time.Duration) error
	callTimeout  time.Duration

	conversation *settings.ConversationSettings
	maxTokens    settings.MaxTokens
	backoff      governor.Backoff
	prompts      *conversation.Prompts
}

func New(
	s *settings.Settings,
	backend backends.Backend,
	capabilities backends.Capabilities,
	gov *governor.Governor,
	writer RecordWriter,
	options ...Option,
) (*Orchestrator, error) {
	if s.Conversation == nil || s.Generation == nil || s.Prompts == nil || s.Retry == nil {
		return nil, errors.Wrap(settings.ErrInvalidConfig, "incomplete settings")
	}
	if gov == nil || writer == nil || backend == nil {
		return nil, errors.New("orchestrator needs a backend, a governor and a record writer")
	}

	o := &Orchestrator{
		backend:      backend,
		capabilities: capabilities,
		governor:     gov,
		writer:       writer,
		sink:         events.NopSink{},
		estimator:    governor.NewTokenEstimator(),
		toolbox:      toolbox.NewDefaultToolbox(),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:        sleepContext,
		callTimeout:  DefaultCallTimeout,
		conversation: s.Conversation,
		maxTokens:    s.Generation.MaxTokens,
		backoff: governor.Backoff{
			Initial:    s.Retry.InitialDelay,
			Max:        s.Retry.MaxDelay,
			MaxRetries: s.Retry.MaxRetries,
		},
	}
	for _, opt := range options {
		opt(o)
	}

	prompts, err := conversation.NewPrompts(s.Prompts, s.Conversation.Personas, s.Conversation.ToolMarker, o.toolbox)
	if err != nil {
		return nil, err
	}
	o.prompts = prompts

	return o, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run generates the configured number of conversations for doc and returns
// every turn produced, across conversations, in order.
//
// Ordinary generation failures end a conversation early and are not errors.
// Errors are returned for a fatal backend fault, credential exhaustion
// (governor.ErrAllCredentialsExhausted), a failed record write, and an
// interrupt (ErrInterrupted). In those cases the document is not recorded
// in the ledger.
func (o *Orchestrator) Run(ctx context.Context, doc turns.Document) ([]turns.Turn, error) {
	ret := []turns.Turn{}
	produced := false

	for i := 0; i < o.conversation.ConversationsPerDocument; i++ {
		ts, err := o.runConversation(ctx, doc)
		ret = append(ret, ts...)
		if err != nil {
			return ret, err
		}
		if len(ts) > 0 {
			produced = true
		}
	}

	if !produced {
		log.Warn().Str("document", doc.Name).Msg("no dialogue produced")
		return ret, nil
	}

	if o.ledger != nil {
		if err := o.ledger.RecordProcessed(doc.Name); err != nil {
			log.Error().Err(err).Str("document", doc.Name).Msg("could not record document as processed")
		}
	}

	return ret, nil
}

func (o *Orchestrator) runConversation(ctx context.Context, doc turns.Document) ([]turns.Turn, error) {
	id := uuid.New()
	budget := conversation.SampleBudget(o.rand, o.conversation.MinTurns, o.conversation.MaxTurns)
	m := conversation.NewMachine(id, doc, o.prompts, conversation.Options{
		Budget:            budget,
		StrictAlternation: o.capabilities.StrictAlternation,
		Personas:          o.conversation.Personas,
		ToolMarker:        o.conversation.ToolMarker,
		MaxTokens:         o.maxTokens,
	})

	logger := log.With().Str("document", doc.Name).Str("conversation", id.String()).Logger()
	logger.Info().Int("budget", budget).Msg("starting conversation")
	o.publish(events.NewConversationStartedEvent(doc.Name, id, budget))

	reason := "budget reached"
	for {
		if ctx.Err() != nil {
			logger.Warn().Int("turns", len(m.ModelHistory())).Msg("conversation interrupted")
			return m.ModelHistory(), ErrInterrupted
		}

		step, ok, err := m.Next()
		if err != nil {
			return m.ModelHistory(), err
		}
		if !ok {
			break
		}

		text, err := o.generate(ctx, doc, step)
		if err != nil {
			if backends.KindOf(err) == backends.KindMalformedResponse {
				logger.Warn().Err(err).Msg("malformed response, ending conversation")
				m.Terminate()
				reason = "malformed response"
				break
			}
			return m.ModelHistory(), err
		}

		turn, ok := m.Produce(step, text)
		if !ok {
			logger.Info().Str("response_type", string(step.ResponseType)).Msg("blank response, ending conversation")
			reason = "blank response"
			break
		}

		if err := o.writer.Append(turn); err != nil {
			return m.ModelHistory(), errors.Wrapf(err, "could not persist turn %d of %s", turn.TurnIndex, id)
		}
		if err := m.Commit(turn); err != nil {
			return m.ModelHistory(), err
		}
		o.publish(events.NewTurnEvent(doc.Name, turn))

		if turn.ResponseType == turns.ResponseTypeToolCall {
			if tool, err := o.toolbox.Match(turn.Content); err != nil {
				logger.Warn().Err(err).Int("turn", turn.TurnIndex).Msg("tool call does not match any tool")
			} else {
				logger.Debug().Str("tool", tool).Int("turn", turn.TurnIndex).Msg("tool call")
			}
		}
	}

	h := m.ModelHistory()
	logger.Info().Int("turns", len(h)).Str("reason", reason).Msg("conversation finished")
	o.publish(events.NewConversationFinishedEvent(doc.Name, id, reason))
	return h, nil
}

// generate runs one step against the backend. Throttling is left to the
// governor. Transient faults are retried with backoff on the same credential,
// then the credential is marked exhausted and the next one is tried.
func (o *Orchestrator) generate(ctx context.Context, doc turns.Document, step conversation.Step) (string, error) {
	slot, err := o.acquire(ctx)
	if err != nil {
		return "", err
	}

	attempt := 0
	for {
		req := backends.Request{
			History:    step.History,
			Role:       step.Role,
			Prompt:     step.Prompt,
			MaxTokens:  step.MaxTokens,
			Credential: slot.Credential,
		}

		// In-flight calls are not cancelled by an interrupt, only bounded by the timeout.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.callTimeout)
		text, err := o.backend.Generate(callCtx, req)
		cancel()

		o.governor.RecordUsage(slot, o.estimate(req, text))
		if err == nil {
			return text, nil
		}

		if !backends.IsRetryable(err) {
			return "", err
		}

		if o.backoff.ShouldRetry(attempt) {
			d := o.backoff.Delay(attempt)
			attempt++
			log.Warn().Err(err).
				Str("document", doc.Name).
				Int("slot", slot.Index).
				Int("attempt", attempt).
				Dur("delay", d).
				Msg("backend call failed, retrying")
			if err := o.sleep(ctx, d); err != nil {
				return "", ErrInterrupted
			}
		} else {
			log.Warn().Err(err).Str("document", doc.Name).Int("slot", slot.Index).Msg("retries used up, rotating credential")
			next, rerr := o.governor.OnExhausted(slot)
			if rerr != nil {
				return "", errors.Wrap(rerr, err.Error())
			}
			o.publish(events.NewCredentialRotatedEvent(doc.Name, next.Index, backends.KindOf(err).String()))
			attempt = 0
		}

		slot, err = o.acquire(ctx)
		if err != nil {
			return "", err
		}
	}
}

func (o *Orchestrator) acquire(ctx context.Context) (*governor.Slot, error) {
	slot, err := o.governor.Acquire(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrInterrupted
		}
		return nil, err
	}
	return slot, nil
}

func (o *Orchestrator) estimate(req backends.Request, response string) int {
	n := o.estimator.Estimate(req.Prompt) + o.estimator.Estimate(response)
	for _, h := range req.History {
		n += o.estimator.Estimate(h.Content)
	}
	return n
}

func (o *Orchestrator) publish(e events.Event) {
	if err := o.sink.Publish(e); err != nil {
		log.Debug().Err(err).Str("event", string(e.Type)).Msg("could not publish event")
	}
}
