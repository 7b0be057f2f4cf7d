// Package dotenv loads a .env file into the process environment before
// config parsing. A missing file is not an error; deployments that set real
// environment variables run without one.
package dotenv

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads .env from the working directory, or the file named by
// BIDSYNC_ENV_FILE when set.
func Load() error {
	path := strings.TrimSpace(os.Getenv("BIDSYNC_ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
