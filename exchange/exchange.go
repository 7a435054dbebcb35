// Package exchange reads chat lines that other processes append to flat files
// (chat exports, streamer voice transcripts, redeem triggers).
//
// Each line has the form "author;msg:content". Consumption is tracked with an
// acknowledged byte offset instead of truncating right after every read: only
// complete, newline-terminated lines past the offset are returned, a trailing
// partial line stays in the file for the next poll, and the file is compacted
// (truncated) only once everything written to it has been acknowledged.
//
// Writers do not take a lock, so compaction still has a small window: a line
// appended between the final size check and the truncate is lost. Appends that
// land before the check keep the file intact until the next poll.
package exchange

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Separator splits the author from the message content.
const Separator = ";msg:"

// ErrMalformedLine is returned by ParseLine when the separator is missing.
var ErrMalformedLine = errors.New("exchange: malformed line")

// Line is one parsed exchange entry.
type Line struct {
	Author  string
	Content string
}

// ParseLine splits "author;msg:content". Content may itself contain the separator.
func ParseLine(raw string) (Line, error) {
	raw = strings.TrimRight(raw, "\r")
	author, content, ok := strings.Cut(raw, Separator)
	if !ok {
		return Line{}, fmt.Errorf("%w: %q", ErrMalformedLine, raw)
	}
	return Line{Author: strings.TrimSpace(author), Content: content}, nil
}

// FileSource polls a single exchange file.
type FileSource struct {
	Path string

	mu     sync.Mutex
	offset int64
}

// NewFileSource returns a source for path.
func NewFileSource(path string) *FileSource { return &FileSource{Path: path} }

// Poll returns all complete lines appended since the last acknowledged offset.
// A missing file yields no lines and no error. Malformed lines are logged and skipped.
func (s *FileSource) Poll() ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		s.offset = 0
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close exchange file", slog.String("path", s.Path), slog.Any("err", err))
		}
	}()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.Path, err)
	}
	if st.Size() < s.offset {
		// truncated or replaced by the writer
		s.offset = 0
	}
	if st.Size() == s.offset {
		return nil, nil
	}

	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", s.Path, err)
	}
	buf, err := io.ReadAll(io.LimitReader(f, st.Size()-s.offset))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		return nil, nil
	}
	complete := buf[:end+1]
	s.offset += int64(len(complete))

	var out []Line
	for _, raw := range strings.Split(string(complete), "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		l, err := ParseLine(raw)
		if err != nil {
			slog.Warn("skipping exchange line", slog.String("path", s.Path), slog.Any("err", err))
			continue
		}
		out = append(out, l)
	}

	s.compact(f)
	return out, nil
}

// compact truncates the file once every byte has been acknowledged. A writer that appended
// between our read and this check keeps its bytes because the size no longer matches; one
// that appends between the check and Truncate does not.
func (s *FileSource) compact(f *os.File) {
	st, err := f.Stat()
	if err != nil || st.Size() != s.offset {
		return
	}
	if err := f.Truncate(0); err != nil {
		slog.Warn("failed to compact exchange file", slog.String("path", s.Path), slog.Any("err", err))
		return
	}
	s.offset = 0
}
