package cmds

import (
	"context"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/governor"
	"github.com/go-go-golems/synthgen/pkg/orchestrator"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/pkg/errors"
)

const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitExhausted   = 2
	ExitConfig      = 3
	ExitInterrupted = 130
)

// ExitCode maps the error a command returned to the process exit status.
func ExitCode(err error) int {
	var be *backends.Error
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, orchestrator.ErrInterrupted), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, governor.ErrAllCredentialsExhausted):
		return ExitExhausted
	case errors.Is(err, settings.ErrInvalidConfig):
		return ExitConfig
	case errors.As(err, &be) && be.Kind == backends.KindClientFault:
		return ExitConfig
	}
	return ExitFailure
}
