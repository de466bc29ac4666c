package helpers

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillZerologAdapter routes the logs of the event bus to zerolog.
// Unless verbose, every level below error is pushed down one notch, since
// the router logs each subscription and message at info and debug.
type WatermillZerologAdapter struct {
	logger  zerolog.Logger
	verbose bool
}

var _ watermill.LoggerAdapter = &WatermillZerologAdapter{}

func NewWatermill(logger zerolog.Logger, verbose bool) *WatermillZerologAdapter {
	return &WatermillZerologAdapter{
		logger:  logger.With().Str("component", "events").Logger(),
		verbose: verbose,
	}
}

func (w *WatermillZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Fields(map[string]interface{}(fields)).Err(err).Msg(msg)
}

func (w *WatermillZerologAdapter) Info(msg string, fields watermill.LogFields) {
	w.event(zerolog.InfoLevel, fields).Msg(msg)
}

func (w *WatermillZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	w.event(zerolog.DebugLevel, fields).Msg(msg)
}

func (w *WatermillZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	w.event(zerolog.TraceLevel, fields).Msg(msg)
}

func (w *WatermillZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillZerologAdapter{
		logger:  w.logger.With().Fields(map[string]interface{}(fields)).Logger(),
		verbose: w.verbose,
	}
}

func (w *WatermillZerologAdapter) event(level zerolog.Level, fields watermill.LogFields) *zerolog.Event {
	if !w.verbose && level > zerolog.TraceLevel {
		level--
	}
	return w.logger.WithLevel(level).Fields(map[string]interface{}(fields))
}
