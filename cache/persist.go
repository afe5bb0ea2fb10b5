package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormatVersion identifies the on-disk cache layout. Files written with a
// different version are discarded wholesale on load; no partial migration
// is attempted.
const FormatVersion = 1

type envelope[T any] struct {
	Version   int                 `json:"version"`
	Kind      string              `json:"kind"`
	SavedAt   time.Time           `json:"saved_at"`
	LastPurge time.Time           `json:"last_purge,omitempty"`
	Entries   map[string]Entry[T] `json:"entries"`
}

func (s *Store[T]) filename() string {
	return "cache_" + strings.ReplaceAll(s.kind, " ", "_") + ".json"
}

// Save serializes the store's full mapping to dir. The write is atomic
// (temporary file + rename). A store that has not changed since the last
// save is skipped.
func (s *Store[T]) Save(dir string) error {
	s.mu.RLock()
	if !s.dirty {
		s.mu.RUnlock()
		return nil
	}
	gen := s.gen
	env := envelope[T]{
		Version:   FormatVersion,
		Kind:      s.kind,
		SavedAt:   s.now(),
		LastPurge: s.lastPurge,
		Entries:   make(map[string]Entry[T], len(s.entries)),
	}
	for k, e := range s.entries {
		env.Entries[k] = e
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s cache: %w", s.kind, err)
	}

	path := filepath.Join(dir, s.filename())
	tmp := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	// Clear the flag only if nothing mutated the store while we were
	// serializing; a write that landed mid-save must trigger another save.
	s.mu.Lock()
	if s.gen == gen {
		s.dirty = false
	}
	s.mu.Unlock()

	s.log.Debug().Str("cache", s.kind).Int("entries", len(env.Entries)).Msg("cache saved")
	return nil
}

// Load replaces the store's contents with the on-disk representation in
// dir. A missing file leaves the store empty and returns nil. A corrupt or
// version-mismatched file also leaves the store empty, but returns a
// FetchError the caller may log; the store stays usable either way.
func (s *Store[T]) Load(dir string) error {
	path := filepath.Join(dir, s.filename())
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &FetchError{Kind: s.kind, Err: err}
	}

	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return &FetchError{Kind: s.kind, Err: err}
	}
	if env.Version != FormatVersion {
		return &FetchError{Kind: s.kind, Err: fmt.Errorf("format version %d, want %d", env.Version, FormatVersion)}
	}

	s.mu.Lock()
	s.entries = env.Entries
	if s.entries == nil {
		s.entries = make(map[string]Entry[T])
	}
	s.lastPurge = env.LastPurge
	s.dirty = false
	s.gen++
	s.mu.Unlock()

	s.log.Debug().Str("cache", s.kind).Int("entries", len(env.Entries)).Msg("cache loaded")
	return nil
}
