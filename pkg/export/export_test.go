package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"path", "kind"},
		Rows: []map[string]string{
			{"path": "overrides/data.json", "kind": "data"},
			{"path": "attempt 1/feedback/a.pdf"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "path,kind\noverrides/data.json,data\nattempt 1/feedback/a.pdf,\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Dataset{
		Title:   "Personal data export",
		Headers: []string{"path", "kind"},
		Rows:    []map[string]string{{"path": strings.Repeat("x", 100), "kind": "file"}},
		Notes:   []string{"Exported for user-a"},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
