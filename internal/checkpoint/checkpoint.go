// Package checkpoint persists the per worklist file progress of a batch run.
//
// The store maps a worklist file to the number of its leading items that were
// completed. Entries are kept most recently updated first and the number of
// files is bounded, the least recently updated entries are evicted.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/logfields"
	"github.com/simplesurance/forkpr/internal/orderedmap"
)

// DefMaxEntries is the default maximum number of files for that progress is
// retained.
const DefMaxEntries = 100

const loggerName = "checkpoint"

// Mode defines how the checkpoint is initialized.
type Mode int

const (
	// ModeResume loads the persisted checkpoint.
	ModeResume Mode = iota
	// ModeSynced starts with an empty checkpoint, persisted progress is
	// discarded on the next Flush.
	ModeSynced
)

// Store is a bounded recency-ordered mapping of worklist files to their last
// completed item index.
// It is safe for concurrent use.
type Store struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	entries *orderedmap.Map[string, int]

	logger *zap.Logger
}

// New returns an empty Store that is persisted to path.
func New(fs afero.Fs, path string, maxEntries int) *Store {
	return &Store{
		fs:      fs,
		path:    path,
		entries: orderedmap.New[string, int](maxEntries),
		logger:  zap.L().Named(loggerName),
	}
}

// Load replaces the content of the store with the persisted checkpoint.
// In ModeSynced the store is emptied instead.
// A missing or unparseable checkpoint file results in an empty store.
func (s *Store) Load(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = orderedmap.New[string, int](s.entries.Cap())

	if mode == ModeSynced {
		s.logger.Info(
			"synced mode, starting with an empty checkpoint",
			logfields.Event("checkpoint_discarded"),
			zap.String("checkpoint_file", s.path),
		)
		return nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug(
				"checkpoint file does not exist, starting with an empty checkpoint",
				logfields.Event("checkpoint_not_found"),
				zap.String("checkpoint_file", s.path),
			)
			return nil
		}

		return fmt.Errorf("reading checkpoint file failed: %w", err)
	}

	entries, err := decode(data, s.entries.Cap())
	if err != nil {
		s.logger.Warn(
			"checkpoint file is corrupt, starting with an empty checkpoint",
			logfields.Event("checkpoint_corrupt"),
			zap.String("checkpoint_file", s.path),
			zap.Error(err),
		)
		return nil
	}

	s.entries = entries

	s.logger.Debug(
		"checkpoint loaded",
		logfields.Event("checkpoint_loaded"),
		zap.String("checkpoint_file", s.path),
		zap.Int("entries", entries.Len()),
	)

	return nil
}

// Get returns the number of completed leading items of file.
// If the file is unknown, 0 is returned.
func (s *Store) Get(file string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, _ := s.entries.Get(file)
	return idx
}

// Record sets the last completed item index of file and makes it the most
// recent entry.
func (s *Store) Record(file string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := s.entries.Set(file, index)
	if len(evicted) > 0 {
		s.logger.Debug(
			"evicted checkpoint entries",
			logfields.Event("checkpoint_entries_evicted"),
			zap.Strings("files", evicted),
		)
	}
}

// Files returns the files of the checkpoint, most recent first.
func (s *Store) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.entries.Keys()
}

// Flush writes the checkpoint to the file.
// The file is written to a temporary file first and then renamed.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(s.entries)
	if err != nil {
		return fmt.Errorf("encoding checkpoint failed: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory failed: %w", err)
	}

	tmpFile, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary checkpoint file failed: %w", err)
	}

	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("writing temporary checkpoint file failed: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("closing temporary checkpoint file failed: %w", err)
	}

	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("replacing checkpoint file failed: %w", err)
	}

	return nil
}

// encode marshals the entries as JSON object, the keys are written in the
// order of the map.
func encode(entries *orderedmap.Map[string, int]) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	buf.WriteByte('{')

	i := 0
	entries.Foreach(func(file string, idx int) bool {
		var key []byte

		key, err = json.Marshal(file)
		if err != nil {
			return false
		}

		if i > 0 {
			buf.WriteByte(',')
		}
		i++

		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", idx)

		return true
	})
	if err != nil {
		return nil, err
	}

	buf.WriteByte('}')

	var result bytes.Buffer
	if err := json.Indent(&result, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	result.WriteByte('\n')

	return result.Bytes(), nil
}

// decode parses a JSON object of file to index entries, keeping the key order.
// Entries that exceed maxEntries are dropped.
func decode(data []byte, maxEntries int) (*orderedmap.Map[string, int], error) {
	result := orderedmap.New[string, int](maxEntries)

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a json object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		file, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}

		var idx int
		if err := dec.Decode(&idx); err != nil {
			return nil, fmt.Errorf("value of %q: %w", file, err)
		}

		if idx < 0 {
			return nil, fmt.Errorf("value of %q is negative: %d", file, idx)
		}

		result.PushBack(file, idx)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return result, nil
}
