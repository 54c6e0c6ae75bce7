package openf1

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const (
	EnvUsername = "OPENF1_USERNAME"
	EnvPassword = "OPENF1_PASSWORD"
)

// LoadCredentials reads OPENF1_USERNAME and OPENF1_PASSWORD from the
// environment after loading the given .env files (default: ./.env).
// Missing files are ignored, variables already set are not overwritten.
func LoadCredentials(files ...string) (username, password string, err error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if loadErr := godotenv.Load(f); loadErr != nil && !errors.Is(loadErr, fs.ErrNotExist) {
			return "", "", loadErr
		}
	}
	return os.Getenv(EnvUsername), os.Getenv(EnvPassword), nil
}
