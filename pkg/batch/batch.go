package batch

import (
	"context"
	"sync"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/documents"
	"github.com/go-go-golems/synthgen/pkg/events"
	"github.com/go-go-golems/synthgen/pkg/governor"
	"github.com/go-go-golems/synthgen/pkg/ledger"
	"github.com/go-go-golems/synthgen/pkg/orchestrator"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Summary counts what a batch run did with its documents.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	Turns     int
}

type Option func(*Batch)

func WithSink(s events.Sink) Option {
	return func(b *Batch) {
		b.sink = s
	}
}

func WithGovernorOptions(options ...governor.Option) Option {
	return func(b *Batch) {
		b.governorOptions = append(b.governorOptions, options...)
	}
}

func WithOrchestratorOptions(options ...orchestrator.Option) Option {
	return func(b *Batch) {
		b.orchestratorOptions = append(b.orchestratorOptions, options...)
	}
}

// Batch runs the orchestrator over a list of documents, skipping the ones
// the ledger already knows.
type Batch struct {
	settings *settings.Settings
	instance *backends.Instance
	ledger   *ledger.Ledger
	writer   orchestrator.RecordWriter
	sink     events.Sink

	governorOptions     []governor.Option
	orchestratorOptions []orchestrator.Option

	mu      sync.Mutex
	summary Summary
}

func New(
	s *settings.Settings,
	instance *backends.Instance,
	l *ledger.Ledger,
	writer orchestrator.RecordWriter,
	options ...Option,
) *Batch {
	b := &Batch{
		settings: s,
		instance: instance,
		ledger:   l,
		writer:   writer,
		sink:     events.NopSink{},
	}
	if bs, err := s.SelectedBackend(); err == nil {
		b.orchestratorOptions = append(b.orchestratorOptions, orchestrator.WithCallTimeout(bs.Timeout))
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// Run processes documents and returns once all are done or the run has to
// halt. Halting errors are credential exhaustion, client faults, invalid
// configuration and interrupts. Any other error only fails its document.
func (b *Batch) Run(ctx context.Context, paths []string) (Summary, error) {
	pending := []string{}
	for _, p := range paths {
		if b.ledger.Contains(p) {
			log.Debug().Str("document", p).Msg("already processed, skipping")
			b.count(func(s *Summary) { s.Skipped++ })
			b.publish(events.NewDocumentSkippedEvent(p))
			continue
		}
		pending = append(pending, p)
	}

	limits := governor.Limits{
		RequestsPerMinute: b.instance.RateLimits.RequestsPerMinute,
		TokensPerMinute:   b.instance.RateLimits.TokensPerMinute,
		RequestsPerDay:    b.instance.RateLimits.RequestsPerDay,
	}
	gov, err := governor.New(b.instance.Credentials, limits, b.governorOptions...)
	if err != nil {
		return b.Summary(), errors.Wrap(settings.ErrInvalidConfig, err.Error())
	}

	workers := b.settings.Workers
	if workers > gov.Len() {
		log.Info().Int("workers", workers).Int("credentials", gov.Len()).
			Msg("fewer credentials than workers, reducing the pool")
		workers = gov.Len()
	}
	log.Info().
		Int("documents", len(pending)).
		Int("skipped", b.Summary().Skipped).
		Int("workers", workers).
		Str("backend", b.instance.Name).
		Msg("starting batch")

	if workers <= 1 {
		err = b.runSequential(ctx, gov, pending)
	} else {
		err = b.runPool(ctx, gov.Partition(workers), pending)
	}

	summary := b.Summary()
	log.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("turns", summary.Turns).
		Msg("batch finished")
	return summary, err
}

func (b *Batch) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

func (b *Batch) runSequential(ctx context.Context, gov *governor.Governor, paths []string) error {
	o, err := b.newOrchestrator(gov)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := b.process(ctx, o, p); err != nil {
			return err
		}
	}
	return nil
}

type worker struct {
	id           int
	governor     *governor.Governor
	orchestrator *orchestrator.Orchestrator
}

// runPool gives every worker its own governor, so no credential is shared.
// A worker whose credentials are exhausted hands its document back and
// stops. The batch only fails with ErrAllCredentialsExhausted once no
// worker is left.
func (b *Batch) runPool(ctx context.Context, governors []*governor.Governor, paths []string) error {
	workers := make([]*worker, 0, len(governors))
	for i, gov := range governors {
		o, err := b.newOrchestrator(gov)
		if err != nil {
			return err
		}
		workers = append(workers, &worker{id: i, governor: gov, orchestrator: o})
	}

	for len(paths) > 0 {
		alive, returned, exhausted, err := b.poolRound(ctx, workers, paths)
		if err != nil {
			return err
		}
		if len(returned) > 0 && len(alive) == 0 {
			return exhausted
		}
		workers, paths = alive, returned
	}
	return nil
}

// poolRound runs paths over workers. It returns the workers that still have
// credentials and the documents that were handed back or never picked up.
func (b *Batch) poolRound(
	ctx context.Context,
	workers []*worker,
	paths []string,
) (alive []*worker, returned []string, exhausted error, err error) {
	jobs := make(chan string, len(paths))
	for _, p := range paths {
		jobs <- p
	}
	close(jobs)

	var mu sync.Mutex
	eg, ctx2 := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		eg.Go(func() error {
			log.Debug().Int("worker", w.id).Int("credentials", w.governor.Len()).Msg("worker started")
			for p := range jobs {
				err := b.process(ctx2, w.orchestrator, p)
				if errors.Is(err, governor.ErrAllCredentialsExhausted) {
					log.Warn().Int("worker", w.id).Str("document", p).
						Msg("worker credentials exhausted, handing document back")
					mu.Lock()
					returned = append(returned, p)
					exhausted = err
					mu.Unlock()
					return nil
				}
				if err != nil {
					return err
				}
			}
			mu.Lock()
			alive = append(alive, w)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, nil, nil, err
	}
	for p := range jobs {
		returned = append(returned, p)
	}
	return alive, returned, exhausted, nil
}

func (b *Batch) newOrchestrator(gov *governor.Governor) (*orchestrator.Orchestrator, error) {
	options := append([]orchestrator.Option{
		orchestrator.WithLedger(b.ledger),
		orchestrator.WithSink(b.sink),
	}, b.orchestratorOptions...)
	return orchestrator.New(b.settings, b.instance.Backend, b.instance.Capabilities, gov, b.writer, options...)
}

// process runs one document. It only returns errors that halt the batch.
func (b *Batch) process(ctx context.Context, o *orchestrator.Orchestrator, path string) error {
	if ctx.Err() != nil {
		return orchestrator.ErrInterrupted
	}

	doc, err := documents.Load(path)
	if err != nil {
		log.Error().Err(err).Str("document", path).Msg("could not load document")
		b.count(func(s *Summary) { s.Failed++ })
		return nil
	}

	ts, err := o.Run(ctx, doc)
	b.count(func(s *Summary) { s.Turns += len(ts) })
	if err != nil {
		if IsHalting(err) {
			return err
		}
		log.Error().Err(err).Str("document", path).Msg("document failed")
		b.count(func(s *Summary) { s.Failed++ })
		return nil
	}

	b.count(func(s *Summary) { s.Processed++ })
	return nil
}

// IsHalting reports whether err has to stop the whole batch.
func IsHalting(err error) bool {
	var be *backends.Error
	switch {
	case errors.Is(err, governor.ErrAllCredentialsExhausted),
		errors.Is(err, orchestrator.ErrInterrupted),
		errors.Is(err, settings.ErrInvalidConfig),
		errors.Is(err, context.Canceled):
		return true
	case errors.As(err, &be):
		return be.Kind == backends.KindClientFault
	}
	return false
}

func (b *Batch) count(f func(s *Summary)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f(&b.summary)
}

func (b *Batch) publish(e events.Event) {
	if err := b.sink.Publish(e); err != nil {
		log.Debug().Err(err).Msg("could not publish event")
	}
}
