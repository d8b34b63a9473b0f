// Package results persists scenario artifacts: one JSON file per
// (application, condition, kind), a SQLite ledger of iteration outcomes,
// and a CSV summary built from the JSON files.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// Kind distinguishes artifacts of the same (application, condition).
type Kind string

const (
	KindMetrics Kind = "metrics"
	KindAudit   Kind = "lighthouse_metrics"
)

// Writer writes artifacts under Root/Scenario.
type Writer struct {
	// Root is the results directory.
	Root string
	// Scenario names the subtree, e.g. "login".
	Scenario string
}

// NewWriter returns a writer for scenario artifacts under root.
func NewWriter(root, scenario string) *Writer {
	return &Writer{Root: root, Scenario: scenario}
}

// Dir returns the directory artifacts are written to.
func (w *Writer) Dir() string {
	return filepath.Join(w.Root, w.Scenario)
}

// Path returns the deterministic artifact path
// {dir}/{application}_{condition}_{kind}.json.
func (w *Writer) Path(application, condition string, kind Kind) string {
	return filepath.Join(w.Dir(), fmt.Sprintf("%s_%s_%s.json", application, condition, kind))
}

// Write serializes v and replaces the artifact at Path. The file is written
// to a temporary sibling and renamed into place, so readers see either the
// previous or the new content, never a partial file.
func (w *Writer) Write(application, condition string, kind Kind, v any) (string, error) {
	if err := validName(application); err != nil {
		return "", fmt.Errorf("application: %w", err)
	}
	if err := validName(condition); err != nil {
		return "", fmt.Errorf("condition: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", kind, err)
	}
	data = append(data, '\n')

	path := w.Path(application, condition, kind)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return multierr.Append(fmt.Errorf("write %s: %w", path, err), tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Append(fmt.Errorf("sync %s: %w", path, err), tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

var errBadName = errors.New("must be non-empty and free of path separators and underscores")

// validName rejects names that would make the path ambiguous or escape the
// results directory.
func validName(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\_`) {
		return fmt.Errorf("%q %w", s, errBadName)
	}
	return nil
}

// Read decodes the artifact at Path into v. A missing file returns an
// error satisfying errors.Is(err, fs.ErrNotExist).
func (w *Writer) Read(application, condition string, kind Kind, v any) error {
	data, err := os.ReadFile(w.Path(application, condition, kind))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s_%s_%s: %w", application, condition, kind, err)
	}
	return nil
}

// Remove deletes the artifact at Path. A missing file is not an error.
func (w *Writer) Remove(application, condition string, kind Kind) error {
	if err := os.Remove(w.Path(application, condition, kind)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
