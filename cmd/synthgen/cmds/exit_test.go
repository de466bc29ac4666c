package cmds

import (
	"context"
	"testing"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/governor"
	"github.com/go-go-golems/synthgen/pkg/orchestrator"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"ok", nil, ExitOK},
		{"interrupted", errors.Wrap(orchestrator.ErrInterrupted, "doc"), ExitInterrupted},
		{"cancelled", context.Canceled, ExitInterrupted},
		{"exhausted", errors.Wrap(governor.ErrAllCredentialsExhausted, "slow down"), ExitExhausted},
		{"config", errors.Wrap(settings.ErrInvalidConfig, "no backend"), ExitConfig},
		{"client fault", backends.NewError(backends.KindClientFault, 401, "", nil), ExitConfig},
		{"server fault", backends.NewError(backends.KindServerFault, 500, "", nil), ExitFailure},
		{"other", errors.New("disk full"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ExitCode(tt.err))
		})
	}
}
