package cmds

import (
	"os"

	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultConfigFile = "synthgen.yaml"

// loadSettings reads the dotenv file and the settings file, then applies the
// values set through flags or SYNTHGEN_* environment variables.
func loadSettings() (*settings.Settings, error) {
	if err := settings.LoadDotEnv(viper.GetString("env-file")); err != nil {
		return nil, err
	}

	path := viper.GetString("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	s, err := settings.Load(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("config", path).Msg("Loaded configuration")

	applyOverrides(s)
	return s, nil
}

func applyOverrides(s *settings.Settings) {
	if viper.IsSet("backend") {
		s.Backend = viper.GetString("backend")
	}
	if viper.IsSet("documents") {
		s.Paths.Documents = viper.GetString("documents")
	}
	if viper.IsSet("pattern") {
		s.Paths.Pattern = viper.GetString("pattern")
	}
	if viper.IsSet("output-dir") {
		s.Paths.OutputDir = viper.GetString("output-dir")
	}
	if viper.IsSet("ledger") {
		s.Paths.Ledger = viper.GetString("ledger")
	}
	if viper.IsSet("workers") {
		s.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("min-turns") {
		s.Conversation.MinTurns = viper.GetInt("min-turns")
	}
	if viper.IsSet("max-turns") {
		s.Conversation.MaxTurns = viper.GetInt("max-turns")
	}
}
