// Package export writes a snapshot of the current (non-shadowed) findings
// to a zstd-compressed JSON document, for feeding dashboards or archiving
// an audit baseline outside the working tree.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"srcaudit/internal/logging"
	"srcaudit/internal/report"
	"srcaudit/internal/storage"
	"srcaudit/internal/version"
)

// Finding is one exported finding.
type Finding struct {
	Path    string `json:"path"`
	Line    uint32 `json:"line"`
	Column  uint32 `json:"column"`
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

// Manifest describes one export.
type Manifest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Version   string    `json:"version"`
	Files     int       `json:"files"`
	Findings  int       `json:"findings"`
	// Clean is false when some known files were skipped (deleted or
	// changed since analysis); the export is then partial.
	Clean bool `json:"clean"`
}

// Document is the exported payload.
type Document struct {
	Manifest Manifest  `json:"manifest"`
	Findings []Finding `json:"findings"`
}

// Exporter reads the store and writes export documents.
type Exporter struct {
	db     *storage.DB
	logger *logging.Logger
}

// NewExporter creates an exporter against the given store.
func NewExporter(db *storage.DB, logger *logging.Logger) *Exporter {
	return &Exporter{db: db, logger: logger}
}

// Export writes the current findings to path and returns the manifest.
func (e *Exporter) Export(path string) (*Manifest, error) {
	var all []Finding
	files := make(map[string]struct{})

	clean, err := report.ForEach(e.db, e.logger,
		func(p string, line, column uint32, tool, message string) bool {
			all = append(all, Finding{
				Path:    p,
				Line:    line,
				Column:  column,
				Tool:    tool,
				Message: message,
			})
			files[p] = struct{}{}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to read findings: %w", err)
	}

	doc := Document{
		Manifest: Manifest{
			ID:        uuid.NewString(),
			CreatedAt: time.Now().UTC(),
			Version:   version.Version,
			Files:     len(files),
			Findings:  len(all),
			Clean:     clean,
		},
		Findings: all,
	}

	if err := writeCompressed(path, &doc); err != nil {
		return nil, err
	}

	e.logger.Info("export written", logging.Fields{
		"path":     path,
		"files":    doc.Manifest.Files,
		"findings": doc.Manifest.Findings,
		"clean":    doc.Manifest.Clean,
	})
	return &doc.Manifest, nil
}

func writeCompressed(path string, doc *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to create compressor: %w", err)
	}

	encErr := json.NewEncoder(zw).Encode(doc)
	if closeErr := zw.Close(); encErr == nil {
		encErr = closeErr
	}
	if closeErr := f.Close(); encErr == nil {
		encErr = closeErr
	}
	if encErr != nil {
		os.Remove(path) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to write %s: %w", path, encErr)
	}
	return nil
}

// ReadDocument loads an export document back, mainly for verification.
func ReadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // Read-only handle

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open compressor: %w", err)
	}
	defer zr.Close()

	var doc Document
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &doc, nil
}
