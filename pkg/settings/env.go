package settings

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win over the files, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "could not stat %s", p)
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "could not load %s", p)
		}
	}
	return nil
}
