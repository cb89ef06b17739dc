// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves API keys for the pipeline. Keys come from three
// places, highest precedence first: an explicit value (flag or config), the
// process environment (optionally seeded from a .env file), and a directory
// of plain-text files where the filename is the key name.
//
// Known keys: gemini-api-key (GEMINI_API_KEY), scopus-api-key (SCOPUS_API_KEY).
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	GeminiAPIKey = "gemini-api-key"
	ScopusAPIKey = "scopus-api-key"
)

// envNames maps secret file names to environment variables.
var envNames = map[string]string{
	GeminiAPIKey: "GEMINI_API_KEY",
	ScopusAPIKey: "SCOPUS_API_KEY",
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, log zerolog.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Str("secret", name).Msg("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// LoadDotenv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Store resolves keys against loaded secret files and the environment.
type Store struct {
	files  map[string]string
	getenv func(string) string
}

// NewStore wraps a map returned by Load.
func NewStore(files map[string]string) *Store {
	if files == nil {
		files = map[string]string{}
	}
	return &Store{files: files, getenv: os.Getenv}
}

// Resolve returns explicit when non-empty, then the environment variable
// for key, then the secret file value.
func (s *Store) Resolve(key, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env, ok := envNames[key]; ok {
		if v := strings.TrimSpace(s.getenv(env)); v != "" {
			return v
		}
	}
	return s.files[key]
}

// Names returns the loaded secret file names, for startup logging.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.files))
	for k := range s.files {
		names = append(names, k)
	}
	return names
}
