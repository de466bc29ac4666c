package cmds

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/synthgen/pkg/batch"
	"github.com/go-go-golems/synthgen/pkg/backends/providers"
	"github.com/go-go-golems/synthgen/pkg/documents"
	"github.com/go-go-golems/synthgen/pkg/events"
	"github.com/go-go-golems/synthgen/pkg/ledger"
	"github.com/go-go-golems/synthgen/pkg/records"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate dialogues for every unprocessed document",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			if s.Backend == "" && isatty.IsTerminal(os.Stdin.Fd()) {
				s.Backend, err = selectBackend(s)
				if err != nil {
					return err
				}
			}

			return run(cmd.Context(), s)
		},
	}

	cmd.Flags().String("backend", "", "Backend to generate with (see the backends command)")
	cmd.Flags().String("documents", "", "Root of the document tree")
	cmd.Flags().String("pattern", "", "Glob matched against document file names")
	cmd.Flags().String("output-dir", "", "Directory receiving the JSONL output of the run")
	cmd.Flags().String("ledger", "", "Path of the resume ledger")
	cmd.Flags().Int("workers", 1, "Number of workers, each owning its own credentials")
	cmd.Flags().Int("min-turns", 0, "Lower bound of the turn budget")
	cmd.Flags().Int("max-turns", 0, "Upper bound of the turn budget")
	cmd.Flags().Bool("print", true, "Print dialogues while they are generated")
	cmd.Flags().Bool("dump-events", false, "Print raw progress events as JSON")

	return cmd
}

func selectBackend(s *settings.Settings) (string, error) {
	ui := &input.UI{
		Writer: os.Stderr,
		Reader: os.Stdin,
	}
	names := s.BackendNames()
	answer, err := ui.Select("Which backend should generate the dialogues?", names, &input.Options{
		Default:  names[0],
		Required: true,
		Loop:     true,
	})
	if err != nil {
		return "", errors.Wrap(err, "could not read backend choice")
	}
	return answer, nil
}

func run(ctx context.Context, s *settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	instance, err := providers.NewDefaultRegistry().Create(s)
	if err != nil {
		return err
	}

	l, err := ledger.Open(s.Paths.Ledger)
	if err != nil {
		return err
	}
	paths, err := documents.Walk(s.Paths.Documents, s.Paths.Pattern)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		log.Warn().Str("documents", s.Paths.Documents).Str("pattern", s.Paths.Pattern).Msg("no documents found")
		return nil
	}

	if err := os.MkdirAll(s.Paths.OutputDir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create %s", s.Paths.OutputDir)
	}
	w, err := records.Create(records.NewRunPath(s.Paths.OutputDir, time.Now()))
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Error().Err(err).Msg("could not close output")
		}
	}()
	log.Info().Str("output", w.Path()).Msg("writing dialogues")

	// Interrupts stop the batch between steps. The router gets its own
	// context so that it keeps draining events until the batch returned.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var handler func(msg *message.Message) error
	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	switch {
	case viper.GetBool("dump-events"):
		handler = router.DumpRawEvents(os.Stdout)
	case viper.GetBool("print"):
		handler = events.ConsolePrinterFunc(os.Stdout, events.WithThoughts(s.Thoughts))
	}

	var summary batch.Summary
	var runErr error
	if handler == nil {
		_ = router.Close()
		summary, runErr = batch.New(s, instance, l, w).Run(ctx, paths)
	} else {
		router.AddHandler("console", events.Topic, handler)
		b := batch.New(s, instance, l, w, batch.WithSink(router.Sink()))

		eg := errgroup.Group{}
		routerCtx, cancelRouter := context.WithCancel(context.Background())
		defer cancelRouter()
		eg.Go(func() error {
			return router.Run(routerCtx)
		})
		eg.Go(func() error {
			defer func() {
				_ = router.Close()
			}()
			<-router.Running()
			summary, runErr = b.Run(ctx, paths)
			return nil
		})

		if err := eg.Wait(); err != nil {
			log.Error().Err(err).Msg("event router failed")
		}
	}

	fmt.Fprintf(os.Stderr, "\nprocessed %d, skipped %d, failed %d, %d turns written to %s\n",
		summary.Processed, summary.Skipped, summary.Failed, summary.Turns, w.Path())
	return runErr
}
