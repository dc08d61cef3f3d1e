package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const previewDoc = `{
  "title": "Jaringan Komputer",
  "content": [{"blocks": [
    {"id": "t1", "type": "text", "content": {"text": "Pengantar"}, "config": {"startTime": 0, "endTime": 30}},
    {"id": "q1", "type": "quiz", "content": {"question": "OSI punya berapa lapisan?", "options": ["5", "7"], "correctAnswerIndex": 1}},
    {"id": "t2", "type": "paragraph", "content": {"text": "Lapisan fisik"}}
  ]}]
}`

func TestPreview(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, preview(&out, []byte(previewDoc), false, false))

	s := out.String()
	assert.Contains(t, s, "Jaringan Komputer")
	assert.Contains(t, s, "[quiz]")
	assert.Contains(t, s, "locked by")
	assert.Contains(t, s, "cut-points")
	assert.NotContains(t, s, "\033[", "no colour outside a terminal")
}

func TestPreview_Malformed(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, preview(&out, []byte("  "), false, false))
}
