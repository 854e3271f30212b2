package legal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/lexgraph/graph/model"
)

// Differ compares two versions of a document.
type Differ interface {
	Diff(ctx context.Context, previous, current string) (DiffResult, error)
}

// DiffResult summarizes the changes between two versions.
type DiffResult struct {
	Summary string `json:"summary"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// Map returns r in the form stored in accumulated data.
func (r DiffResult) Map() map[string]any {
	return map[string]any{
		"summary": r.Summary,
		"added":   r.Added,
		"removed": r.Removed,
	}
}

// LineDiffer counts lines present in one version but not the other.
type LineDiffer struct{}

// Diff implements Differ.
func (LineDiffer) Diff(_ context.Context, previous, current string) (DiffResult, error) {
	added, removed := lineDelta(previous, current)
	return DiffResult{
		Summary: fmt.Sprintf("%d line(s) added, %d line(s) removed", added, removed),
		Added:   added,
		Removed: removed,
	}, nil
}

func lineDelta(previous, current string) (added, removed int) {
	counts := make(map[string]int)
	for _, l := range splitLines(previous) {
		counts[l]++
	}
	for _, l := range splitLines(current) {
		if counts[l] > 0 {
			counts[l]--
			continue
		}
		added++
	}
	for _, n := range counts {
		removed += n
	}
	return added, removed
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// LLMDiffer asks a model to describe the changes. Line counts come from
// LineDiffer.
type LLMDiffer struct {
	LLM       model.Caller
	MaxTokens int
}

// Diff implements Differ.
func (d LLMDiffer) Diff(ctx context.Context, previous, current string) (DiffResult, error) {
	res, _ := LineDiffer{}.Diff(ctx, previous, current)

	maxTokens := d.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	prompt := fmt.Sprintf("PREVIOUS VERSION:\n%s\n\nCURRENT VERSION:\n%s", previous, current)
	text, err := d.LLM.Call(ctx, prompt, diffSystemPrompt, 0, maxTokens)
	if err != nil {
		return DiffResult{}, fmt.Errorf("diff summary: %w", err)
	}
	res.Summary = strings.TrimSpace(text)
	return res, nil
}

// Exporter publishes an approved document.
type Exporter interface {
	// Export stores the document and returns where it went.
	Export(ctx context.Context, doc ExportDocument) (string, error)
}

// ExportDocument is the payload handed to an Exporter.
type ExportDocument struct {
	WorkID       string         `json:"work_id"`
	DocumentType string         `json:"document_type"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ExportedAt   time.Time      `json:"exported_at"`
}

// FileExporter writes each document as <Dir>/<work_id>.json.
//
// Files are written to a temporary name and renamed into place, so readers
// never observe a partial export.
type FileExporter struct {
	Dir string
}

// Export implements Exporter.
func (e *FileExporter) Export(ctx context.Context, doc ExportDocument) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc.WorkID == "" || strings.ContainsAny(doc.WorkID, `/\`) || doc.WorkID == "." || doc.WorkID == ".." {
		return "", fmt.Errorf("export: invalid work ID %q", doc.WorkID)
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(e.Dir, doc.WorkID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("export: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("export: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("export: close: %w", err)
	}

	path := filepath.Join(e.Dir, doc.WorkID+".json")
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("export: rename: %w", err)
	}
	return path, nil
}
