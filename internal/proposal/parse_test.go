package proposal

import (
	"encoding/json"
	"testing"

	apperrors "ai-video-cutter/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplyShapes(t *testing.T) {
	testCases := []struct {
		name    string
		text    string
		shape   Shape
		message string
		numCuts int
	}{
		{name: "ai_message key", text: `{"ai_message":"hi","cuts":[{"start":1,"end":2}]}`, shape: Structured, message: "hi", numCuts: 1},
		{name: "message key", text: `{"message":"hello","cuts":[]}`, shape: Structured, message: "hello"},
		{name: "ai_message wins", text: `{"ai_message":"a","message":"b"}`, shape: Structured, message: "a"},
		{name: "empty ai_message falls back", text: `{"ai_message":"","message":"b"}`, shape: Structured, message: "b"},
		{name: "fenced with prose", text: "Okay:\n```json\n{\"message\":\"m\",\"cuts\":[{\"start\":\"0:01\",\"end\":\"0:02\"}]}\n```\nDone.", shape: Structured, message: "m", numCuts: 1},
		{name: "prose only", text: "No JSON here", shape: Unstructured, message: "No JSON here"},
		{name: "broken json", text: `{"message": "x", "cuts": [}`, shape: Unstructured, message: `{"message": "x", "cuts": [}`},
		{name: "unrelated object", text: `{"foo":"bar"}`, shape: Unstructured, message: `{"foo":"bar"}`},
		{name: "empty", text: "", shape: Unstructured, message: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reply := ParseReply(tc.text)
			assert.Equal(t, tc.shape, reply.Shape)
			assert.Equal(t, tc.message, reply.Message)
			assert.Len(t, reply.Cuts, tc.numCuts)
		})
	}
}

func TestSeconds(t *testing.T) {
	got, err := Seconds(json.RawMessage(`12.5`))
	require.NoError(t, err)
	assert.Equal(t, 12.5, got)

	got, err = Seconds(json.RawMessage(`"01:02"`))
	require.NoError(t, err)
	assert.Equal(t, 62.0, got)

	_, err = Seconds(json.RawMessage(`"1:xx"`))
	assert.True(t, apperrors.Is(err, apperrors.CodeMalformedTimestamp))

	_, err = Seconds(nil)
	assert.Error(t, err)
	_, err = Seconds(json.RawMessage(`null`))
	assert.Error(t, err)
	_, err = Seconds(json.RawMessage(`true`))
	assert.Error(t, err)
}
