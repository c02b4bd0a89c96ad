// Package keys keeps API keys in the user's config directory so they do not
// have to live in the environment.
package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	ServiceGemini = "gemini"
	FileName      = "credentials.json"
)

var ErrNoKey = errors.New("no stored key")

type entry struct {
	Key     string    `json:"key"`
	SavedAt time.Time `json:"saved_at"`
}

type Store struct {
	dir string
}

func NewStore() (*Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return NewStoreAt(dir), nil
}

func NewStoreAt(dir string) *Store {
	return &Store{dir: dir}
}

// ConfigDir is CLICKGENIUS_CONFIG_DIR when set, otherwise clickgenius under
// the platform's user config directory.
func ConfigDir() (string, error) {
	if dir := os.Getenv("CLICKGENIUS_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "clickgenius"), nil
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

func (s *Store) load() (map[string]entry, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]entry{}, nil
	}
	if err != nil {
		return nil, err
	}

	entries := map[string]entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return entries, nil
}

func (s *Store) save(entries map[string]entry) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	// owner read/write only
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}

func (s *Store) Set(service, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key cannot be empty")
	}
	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[service] = entry{Key: key, SavedAt: time.Now().UTC()}
	return s.save(entries)
}

// Get returns ErrNoKey when nothing is stored for service.
func (s *Store) Get(service string) (string, error) {
	entries, err := s.load()
	if err != nil {
		return "", err
	}
	e, ok := entries[service]
	if !ok || e.Key == "" {
		return "", fmt.Errorf("%w for %s", ErrNoKey, service)
	}
	return e.Key, nil
}

func (s *Store) Delete(service string) error {
	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[service]; !ok {
		return fmt.Errorf("%w for %s", ErrNoKey, service)
	}
	delete(entries, service)
	return s.save(entries)
}

// Services lists the services with a stored key, sorted.
func (s *Store) Services() ([]string, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	names := lo.Keys(entries)
	slices.Sort(names)
	return names, nil
}

func Mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

type Source string

const (
	SourceNone  Source = ""
	SourceFlag  Source = "command-line flag"
	SourceEnv   Source = "environment (GEMINI_API_KEY)"
	SourceStore Source = "stored key"
)

// Resolve picks the key to use: the flag, then the environment, then the
// store. store may be nil.
func Resolve(flagKey, envKey string, store *Store) (string, Source) {
	if flagKey != "" {
		return flagKey, SourceFlag
	}
	if envKey != "" {
		return envKey, SourceEnv
	}
	if store == nil {
		return "", SourceNone
	}
	key, err := store.Get(ServiceGemini)
	if err != nil {
		return "", SourceNone
	}
	return key, SourceStore
}
