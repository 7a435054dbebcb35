// Package memory keeps the bot's long-lived fact list. Facts are added and removed by
// markers the model embeds in its replies and are re-injected into every system prompt.
// The backing file always mirrors the in-memory list after a mutation.
package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var (
	writeMarker  = regexp.MustCompile(`write_memory\{(.*?)\}`)
	deleteMarker = regexp.MustCompile(`delete_memory\{(.*?)\}`)
)

// Store is an ordered list of memory entries persisted to a flat file (one entry per line).
type Store struct {
	path string

	mu      sync.RWMutex
	entries []string
}

// Open loads entries from path. A missing file starts an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			s.entries = append(s.entries, line)
		}
	}
	return s, nil
}

// Entries returns a copy of the current list.
func (s *Store) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.entries...)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// String renders the list the way it is injected into prompts: one entry per line.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	for _, e := range s.entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return b.String()
}

// Append adds an entry and persists.
func (s *Store) Append(entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.persistLocked()
}

// Remove deletes the first entry equal to entry and persists. It reports whether
// anything was removed.
func (s *Store) Remove(entry string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e == entry {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true, s.persistLocked()
		}
	}
	return false, nil
}

// Extraction describes the markers found in one reply.
type Extraction struct {
	Text    string   // reply with all markers stripped
	Written []string // entries appended, in order
	Deleted []string // entries removed
}

// Extract applies every write_memory{...} and delete_memory{...} marker in reply to the
// store and returns the reply with the markers removed. Persistence errors are returned
// after all markers have been applied in memory.
func (s *Store) Extract(reply string) (Extraction, error) {
	var ex Extraction
	var errs []error

	for _, m := range writeMarker.FindAllStringSubmatch(reply, -1) {
		if err := s.Append(m[1]); err != nil {
			errs = append(errs, err)
		}
		ex.Written = append(ex.Written, m[1])
	}
	text := writeMarker.ReplaceAllString(reply, "")

	for _, m := range deleteMarker.FindAllStringSubmatch(text, -1) {
		removed, err := s.Remove(m[1])
		if err != nil {
			errs = append(errs, err)
		}
		if removed {
			ex.Deleted = append(ex.Deleted, m[1])
		}
	}
	text = deleteMarker.ReplaceAllString(text, "")

	ex.Text = strings.TrimSpace(text)
	return ex, errors.Join(errs...)
}

// persistLocked rewrites the file atomically (temp file + rename).
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	var b strings.Builder
	for _, e := range s.entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".memory-*")
	if err != nil {
		return fmt.Errorf("persist memory: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("persist memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("persist memory: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("persist memory: %w", err)
	}
	return nil
}
