package orchestrator

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/backends/mock"
	"github.com/go-go-golems/synthgen/pkg/events"
	"github.com/go-go-golems/synthgen/pkg/governor"
	"github.com/go-go-golems/synthgen/pkg/ledger"
	"github.com/go-go-golems/synthgen/pkg/records"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fixedEstimator int

func (f fixedEstimator) Estimate(string) int { return int(f) }

type failingWriter struct{}

func (failingWriter) Append(turns.Turn) error { return errors.New("disk full") }

type fixture struct {
	settings *settings.Settings
	clock    *fakeClock
	// waits are governor sleeps, backoffs are retry sleeps.
	waits    []time.Duration
	backoffs []time.Duration
	writer   *records.Writer
	ledger   *ledger.Ledger
	sink     *events.CollectingSink
	gov      *governor.Governor
}

var doc = turns.Document{Name: "notes/monads.md", Content: "X"}

func newFixture(t *testing.T, budget int, limits governor.Limits, credentials ...string) *fixture {
	dir := t.TempDir()

	s := settings.NewSettings()
	s.Backend = "echo"
	s.Conversation.MinTurns = budget
	s.Conversation.MaxTurns = budget
	s.Retry = &settings.RetrySettings{InitialDelay: time.Second, MaxDelay: 4 * time.Second, MaxRetries: 2}

	f := &fixture{
		settings: s,
		clock:    &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		sink:     &events.CollectingSink{},
	}

	if len(credentials) == 0 {
		credentials = []string{""}
	}
	gov, err := governor.New(credentials, limits,
		governor.WithClock(f.clock.Now),
		governor.WithSleep(func(ctx context.Context, d time.Duration) error {
			f.waits = append(f.waits, d)
			f.clock.mu.Lock()
			f.clock.now = f.clock.now.Add(d)
			f.clock.mu.Unlock()
			return ctx.Err()
		}))
	require.NoError(t, err)
	f.gov = gov

	f.writer, err = records.Create(filepath.Join(dir, "out.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.writer.Close() })

	f.ledger, err = ledger.Open(filepath.Join(dir, "processed.txt"))
	require.NoError(t, err)
	return f
}

func (f *fixture) orchestrator(t *testing.T, b backends.Backend, caps backends.Capabilities) *Orchestrator {
	o, err := New(f.settings, b, caps, f.gov, f.writer,
		WithLedger(f.ledger),
		WithSink(f.sink),
		WithRand(rand.New(rand.NewSource(1))),
		WithEstimator(fixedEstimator(10)),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			f.backoffs = append(f.backoffs, d)
			return ctx.Err()
		}),
	)
	require.NoError(t, err)
	return o
}

func (f *fixture) persisted(t *testing.T) []records.Record {
	rs, err := records.ReadFile(f.writer.Path())
	require.NoError(t, err)
	return rs
}

func TestBudgetOfTwoPersistsFourTurnsAndRecordsDocument(t *testing.T) {
	f := newFixture(t, 2, governor.Limits{})
	b := mock.New(mock.Texts("I am stuck on X", "Goal: explain X", "X is simple", "What about Y?")...)
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, ts, 4)

	expected := []turns.ResponseType{
		turns.ResponseTypeUser,
		turns.ResponseTypeChainOfReason,
		turns.ResponseTypeAssistant,
		turns.ResponseTypeUser,
	}
	for i, turn := range ts {
		assert.Equal(t, i, turn.TurnIndex)
		assert.Equal(t, expected[i], turn.ResponseType)
	}
	assert.True(t, f.ledger.Contains(doc.Name))

	// Reading the output back gives the same dialogue.
	convs := records.GroupByConversation(f.persisted(t))
	require.Len(t, convs, 1)
	assert.Equal(t, ts, convs[0].Turns())

	assert.Len(t, f.sink.OfType(events.EventTypeTurn), 4)
	finished := f.sink.OfType(events.EventTypeConversationFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, "budget reached", finished[0].Message)
}

func TestEmptyOpeningProducesNothingAndIsNotRecorded(t *testing.T) {
	f := newFixture(t, 2, governor.Limits{})
	b := mock.New(mock.Response{Text: ""})
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, ts)
	assert.False(t, f.ledger.Contains(doc.Name))
	assert.Empty(t, f.persisted(t))
	assert.Len(t, b.Calls(), 1)
}

func TestSecondCallInSameMinuteRotatesCredential(t *testing.T) {
	f := newFixture(t, 1, governor.Limits{RequestsPerMinute: 1}, "k1", "k2")
	b := mock.New()
	b.Fallback = func(req backends.Request) (string, error) { return "text", nil }
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, ts, 3)

	calls := b.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "k1", calls[0].Credential)
	assert.Equal(t, "k2", calls[1].Credential)
	// Both slots were used within the minute, the third call had to wait.
	require.Len(t, f.waits, 1)
	assert.Equal(t, time.Minute, f.waits[0])
}

func TestExhaustedPoolIsFatalAndLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, 2, governor.Limits{RequestsPerDay: 1}, "k1", "k2")
	b := mock.New()
	b.Fallback = func(req backends.Request) (string, error) { return "text", nil }
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, governor.ErrAllCredentialsExhausted))
	assert.Len(t, ts, 2)
	assert.Len(t, f.persisted(t), 2)
	assert.False(t, f.ledger.Contains(doc.Name))
}

func TestTransientFaultsAreRetriedThenRotated(t *testing.T) {
	f := newFixture(t, 1, governor.Limits{}, "k1", "k2")
	fault := backends.NewError(backends.KindServerFault, 503, "overloaded", nil)
	b := mock.New(
		mock.Response{Err: fault},
		mock.Response{Err: fault},
		mock.Response{Err: fault},
	)
	b.Fallback = func(req backends.Request) (string, error) { return "text", nil }
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, ts, 3)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.backoffs)
	calls := b.Calls()
	require.Len(t, calls, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "k1", calls[i].Credential)
	}
	assert.Equal(t, "k2", calls[3].Credential)

	rotated := f.sink.OfType(events.EventTypeCredentialRotated)
	require.Len(t, rotated, 1)
	assert.Equal(t, 1, rotated[0].Slot)
}

func TestPersistentFaultsOnSingleCredentialExhaustPool(t *testing.T) {
	f := newFixture(t, 1, governor.Limits{})
	b := mock.New()
	b.Fallback = func(req backends.Request) (string, error) {
		return "", backends.NewError(backends.KindRateLimited, 429, "slow down", nil)
	}
	o := f.orchestrator(t, b, backends.Capabilities{})

	_, err := o.Run(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, governor.ErrAllCredentialsExhausted))
	assert.Len(t, b.Calls(), 3)
}

func TestClientFaultIsNotRetried(t *testing.T) {
	f := newFixture(t, 2, governor.Limits{}, "bad")
	b := mock.New(mock.Response{Err: backends.NewError(backends.KindClientFault, 401, "invalid key", nil)})
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, backends.KindClientFault, backends.KindOf(err))
	assert.Empty(t, ts)
	assert.Len(t, b.Calls(), 1)
	assert.Empty(t, f.backoffs)
	assert.False(t, f.ledger.Contains(doc.Name))
}

func TestMalformedResponseEndsDialogueNormally(t *testing.T) {
	f := newFixture(t, 3, governor.Limits{})
	b := mock.New(
		mock.Response{Text: "opening"},
		mock.Response{Err: backends.NewError(backends.KindMalformedResponse, 200, "{}", nil)},
	)
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, ts, 1)
	assert.True(t, f.ledger.Contains(doc.Name))
	finished := f.sink.OfType(events.EventTypeConversationFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, "malformed response", finished[0].Message)
}

func TestInterruptFinishesInFlightCall(t *testing.T) {
	f := newFixture(t, 3, governor.Limits{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	b := backends.BackendFunc(func(callCtx context.Context, req backends.Request) (string, error) {
		calls++
		if calls == 2 {
			cancel()
			assert.NoError(t, callCtx.Err())
		}
		return "text", nil
	})
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(ctx, doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterrupted))
	assert.Len(t, ts, 2)
	assert.Len(t, f.persisted(t), 2)
	assert.False(t, f.ledger.Contains(doc.Name))
}

func TestStrictAlternationReachesBackend(t *testing.T) {
	f := newFixture(t, 2, governor.Limits{})
	b := mock.New()
	b.Fallback = func(req backends.Request) (string, error) { return "text", nil }
	o := f.orchestrator(t, b, backends.Capabilities{StrictAlternation: true})

	ts, err := o.Run(context.Background(), doc)
	require.NoError(t, err)
	// opening, reasoning, interstitial, answer, follow-up
	require.Len(t, ts, 5)
	for i := 1; i < len(ts); i++ {
		assert.NotEqual(t, ts[i-1].Role, ts[i].Role)
	}

	calls := b.Calls()
	require.Len(t, calls, 5)
	for i := 1; i < len(calls); i++ {
		assert.NotEqual(t, calls[i-1].Role, calls[i].Role)
	}

	for n, c := range calls {
		roles := []turns.Role{}
		for _, h := range c.History {
			roles = append(roles, h.Role)
		}
		roles = append(roles, c.Role)
		for i := 1; i < len(roles); i++ {
			assert.NotEqual(t, roles[i-1], roles[i], "call %d sends %v", n, roles)
		}
	}
	followup := calls[4].History
	require.Len(t, followup, 2)
	assert.Equal(t, "text\n\ntext", followup[0].Content)
}

func TestSeveralConversationsPerDocument(t *testing.T) {
	f := newFixture(t, 1, governor.Limits{})
	f.settings.Conversation.ConversationsPerDocument = 2
	b := mock.New()
	b.Fallback = func(req backends.Request) (string, error) { return "text", nil }
	o := f.orchestrator(t, b, backends.Capabilities{})

	ts, err := o.Run(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, ts, 6)
	assert.NotEqual(t, ts[0].ConversationID, ts[3].ConversationID)
	assert.Equal(t, 0, ts[3].TurnIndex)
	assert.Len(t, records.GroupByConversation(f.persisted(t)), 2)
	assert.Equal(t, 1, f.ledger.Len())
}

func TestFailedRecordWriteAbortsDocument(t *testing.T) {
	f := newFixture(t, 2, governor.Limits{})
	b := mock.New()
	b.Fallback = func(req backends.Request) (string, error) { return "text", nil }
	o, err := New(f.settings, b, backends.Capabilities{}, f.gov, failingWriter{}, WithLedger(f.ledger))
	require.NoError(t, err)

	ts, err := o.Run(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, ts)
	assert.False(t, f.ledger.Contains(doc.Name))
}

func TestTokensAreChargedToTheGovernor(t *testing.T) {
	f := newFixture(t, 1, governor.Limits{TokensPerMinute: 1000})
	b := mock.New()
	b.Fallback = func(req backends.Request) (string, error) { return "text", nil }
	o := f.orchestrator(t, b, backends.Capabilities{})

	_, err := o.Run(context.Background(), doc)
	require.NoError(t, err)
	state := f.gov.State(f.gov.Current())
	assert.Greater(t, state.TokensThisMinute, 0)
}
