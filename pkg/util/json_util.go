package util

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJsonObject finds a JSON object embedded in model output. A fenced
// code block wins; otherwise the span from the first '{' to the last '}' is
// returned. ok is false when the text holds no candidate object.
func ExtractJsonObject(text string) (string, bool) {
	if m := fencedBlock.FindStringSubmatch(text); len(m) > 1 {
		inner := strings.TrimSpace(m[1])
		if strings.HasPrefix(inner, "{") {
			return inner, true
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
