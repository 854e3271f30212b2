package legal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineDiffer(t *testing.T) {
	tests := []struct {
		name              string
		previous, current string
		added, removed    int
	}{
		{"identical", "a\nb", "a\nb", 0, 0},
		{"empty previous", "", "a\nb", 2, 0},
		{"empty current", "a\nb", "", 0, 2},
		{"replaced line", "a\nb\nc", "a\nx\nc", 1, 1},
		{"duplicates counted", "a\na", "a", 0, 1},
		{"crlf", "a\r\nb", "a\nb", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := LineDiffer{}.Diff(context.Background(), tt.previous, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.added, res.Added)
			assert.Equal(t, tt.removed, res.Removed)
		})
	}
}

func TestLLMDiffer(t *testing.T) {
	llm := defaultLLM()
	res, err := LLMDiffer{LLM: llm}.Diff(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "- Term shortened", res.Summary)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Removed)

	calls := llm.callsFor(diffSystemPrompt)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "PREVIOUS VERSION:\na")
}

func TestFileExporter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	e := &FileExporter{Dir: dir}

	path, err := e.Export(context.Background(), ExportDocument{
		WorkID:       "doc-7",
		DocumentType: TypeNewContract,
		Content:      "final",
		Metadata:     map[string]any{"decision": "approved"},
		ExportedAt:   testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc-7.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc ExportDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "final", doc.Content)
	assert.Equal(t, "approved", doc.Metadata["decision"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")
}

func TestFileExporterRejectsPathTraversal(t *testing.T) {
	e := &FileExporter{Dir: t.TempDir()}
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := e.Export(context.Background(), ExportDocument{WorkID: id, Content: "x"})
		assert.Error(t, err, "work ID %q", id)
	}
}
