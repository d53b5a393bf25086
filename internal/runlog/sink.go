package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLogNotFound is returned when no log exists at the requested path.
var ErrLogNotFound = errors.New("runlog: log not found")

// Sink receives the log when a run ends.
type Sink interface {
	Write(*Log) error
}

// FileSink writes a log as indented JSON. Writes go through a temporary file
// and a rename under an advisory lock so readers never see a partial log.
type FileSink struct {
	path string
}

// NewFileSink returns a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: filepath.Clean(path)}
}

// Path returns the destination file.
func (s *FileSink) Path() string {
	return s.path
}

// Write persists the log.
func (s *FileSink) Write(l *Log) error {
	if l == nil {
		return fmt.Errorf("runlog: nil log")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("runlog: ensure dir: %w", err)
	}
	encoded, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("runlog: encode: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("runlog: lock %s: %w", s.path, err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("runlog: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(encoded, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("runlog: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("runlog: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("runlog: rename: %w", err)
	}
	return nil
}

// Load reads a log written by FileSink.
func Load(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrLogNotFound
		}
		return nil, fmt.Errorf("runlog: read %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses a JSON log.
func Decode(data []byte) (*Log, error) {
	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("runlog: decode: %w", err)
	}
	if l.RunID == "" || l.Recipe == "" {
		return nil, fmt.Errorf("runlog: decode: not an execution log")
	}
	return &l, nil
}

// MultiSink fans a log out to several sinks and joins their errors.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(l *Log) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Write(l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
