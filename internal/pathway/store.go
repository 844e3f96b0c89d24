package pathway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StageError tags an error with the stage and document it came from.
type StageError struct {
	Stage    string
	Document string
	Err      error
}

func (e *StageError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Stage, e.Document, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// WriteJSON writes v as indented JSON through a temp file and rename so a
// reader never sees a half-written artifact.
func WriteJSON(path string, v any) error {
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteFile(path, blob)
}

func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadJSON(path string, v any) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(blob, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// AppendTruncationEntry appends one "<timestamp>: <file>" line to the log.
func AppendTruncationEntry(logPath, originalFile string, at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s: %s\n", at.Format(time.RFC3339Nano), originalFile); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// BuildCorpus joins the contents of every matching text file in dir,
// ordered by file name, with CorpusDelimiter.
func BuildCorpus(dir string) (string, int, error) {
	files, err := ListBySuffix(dir, MatchingTextSuffix)
	if err != nil {
		return "", 0, err
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, CorpusDelimiter), len(parts), nil
}
