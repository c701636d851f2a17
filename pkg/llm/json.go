package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model reply carries no parseable JSON value.
var ErrNoJSON = errors.New("no valid JSON found in response")

// reasoningBlock matches <think>...</think> sections emitted by reasoning models.
var reasoningBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ExtractJSON returns the first complete JSON object or array in a model
// reply. Reasoning blocks, markdown fences and surrounding prose are skipped,
// and a malformed candidate does not hide a valid one later in the text.
func ExtractJSON(response string) (string, error) {
	text := reasoningBlock.ReplaceAllString(response, "")

	for start := 0; start < len(text); start++ {
		open := text[start]
		if open != '{' && open != '[' {
			continue
		}
		end := closingIndex(text, start)
		if end < 0 {
			continue
		}
		if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}
	return "", ErrNoJSON
}

// closingIndex returns the index of the bracket closing the one at start,
// ignoring brackets inside JSON strings, or -1 when the value is truncated.
func closingIndex(s string, start int) int {
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseJSONResponse extracts the JSON value from a reply and decodes it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var out T

	raw, err := ExtractJSON(response)
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return out, nil
}
