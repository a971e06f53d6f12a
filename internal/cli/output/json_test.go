package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileRecord struct {
	ID   string `json:"id" yaml:"id"`
	Size int64  `json:"size" yaml:"size"`
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, fileRecord{ID: "f-1", Size: 42}))

	rendered := buf.String()
	assert.Contains(t, rendered, `"id": "f-1"`)
	assert.Contains(t, rendered, `"size": 42`)
}

func TestPrintJSONArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, []fileRecord{{ID: "a"}, {ID: "b"}}))

	rendered := buf.String()
	assert.Contains(t, rendered, `"id": "a"`)
	assert.Contains(t, rendered, `"id": "b"`)
}
