package proposal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ai-video-cutter/pkg/timecode"
	"ai-video-cutter/pkg/util"
)

// Shape tells whether a model reply carried the structured JSON envelope.
type Shape int

const (
	Unstructured Shape = iota
	Structured
)

func (s Shape) String() string {
	if s == Structured {
		return "structured"
	}
	return "unstructured"
}

// Reply is a parsed model response. Cuts are raw timestamp pairs that have
// not been validated against the video yet.
type Reply struct {
	Shape   Shape
	Message string
	Cuts    []RawCut
}

// RawCut holds one start/end pair as sent by the model: a number of seconds
// or a timestamp string.
type RawCut struct {
	Start json.RawMessage `json:"start"`
	End   json.RawMessage `json:"end"`
}

type envelope struct {
	AiMessage *string  `json:"ai_message"`
	Message   *string  `json:"message"`
	Cuts      []RawCut `json:"cuts"`
}

// ParseReply interprets text as the JSON envelope, tolerating code fences and
// surrounding prose. Text that is not an envelope becomes an unstructured
// reply whose message is the trimmed text.
func ParseReply(text string) Reply {
	trimmed := strings.TrimSpace(text)
	unstructured := Reply{Shape: Unstructured, Message: trimmed}

	candidate, ok := util.ExtractJsonObject(trimmed)
	if !ok {
		return unstructured
	}

	var env envelope
	if err := json.Unmarshal([]byte(candidate), &env); err != nil {
		return unstructured
	}
	if env.AiMessage == nil && env.Message == nil && env.Cuts == nil {
		return unstructured
	}

	reply := Reply{Shape: Structured, Cuts: env.Cuts}
	switch {
	case env.AiMessage != nil && *env.AiMessage != "":
		reply.Message = *env.AiMessage
	case env.Message != nil:
		reply.Message = *env.Message
	}
	return reply
}

// Seconds resolves a timestamp value: a JSON number, or a string accepted by
// timecode.Parse.
func Seconds(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing timestamp")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("decode timestamp: %w", err)
		}
		return timecode.Parse(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("timestamp %s is neither a number nor a string", string(raw))
	}
	return f, nil
}
