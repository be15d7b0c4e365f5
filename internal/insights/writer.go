// Package insights serializes aggregated occupancy statistics into the
// JSON document consumed by the visualization front end.
package insights

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"parkride-insights-backend/internal/model"
)

// SchemaVersion identifies the insights document layout. The front end
// depends on it; bump it on any breaking change.
const SchemaVersion = 1

// Document is the full published insights payload. Facilities is keyed by
// facility id; encoding/json emits map keys sorted, so identical input
// produces byte-identical output.
type Document struct {
	SchemaVersion int                         `json:"schema_version"`
	GeneratedAt   time.Time                   `json:"generated_at"`
	Facilities    map[string]FacilityInsights `json:"facilities"`
}

// FacilityInsights holds one facility's reference data and its ordered
// bucket records.
type FacilityInsights struct {
	Name    string                `json:"name"`
	Spots   int                   `json:"spots,omitempty"`
	Suburb  string                `json:"suburb,omitempty"`
	Buckets []model.InsightRecord `json:"buckets"`
}

// Writer publishes insight documents to a fixed path.
type Writer struct {
	path string
}

// NewWriter returns a writer publishing to path. The parent directory is
// created on the first write.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the published document location.
func (w *Writer) Path() string { return w.path }

// Write publishes doc atomically: the document is marshalled to a temporary
// file in the target directory, synced, and renamed over the published
// path. A reader holding the previous document open keeps seeing it whole;
// a failed write leaves the published path untouched.
func (w *Writer) Write(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal insights document: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create insights dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".insights-*.json")
	if err != nil {
		return fmt.Errorf("create temp insights file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp insights file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp insights file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp insights file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp insights file: %w", err)
	}

	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("publish insights document: %w", err)
	}
	return nil
}

// Read loads the currently published document.
func (w *Writer) Read() (Document, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse insights document: %w", err)
	}
	return doc, nil
}
