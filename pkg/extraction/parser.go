package extraction

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoStructuredPayload is returned when no JSON object or array can be
// located in a model response.
var ErrNoStructuredPayload = errors.New("no structured payload in response")

// ParseStructuredResponse extracts the JSON payload from a model response.
//
// Models wrap JSON in markdown fences, prefix it with prose, or both. The
// parser tries, in order:
//  1. The content of a ```json (or bare ```) fenced block
//  2. The outermost {...} object and the outermost [...] array in the raw
//     text, the one that opens first tried first
//
// An array that opens before any object is the payload itself; trying the
// object strategy first would return a single element of that array.
//
// The extracted candidate must parse as valid JSON; otherwise the next
// strategy is tried. Returns ErrNoStructuredPayload when nothing parses.
func ParseStructuredResponse(response string) (json.RawMessage, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, ErrNoStructuredPayload
	}

	if fenced, ok := fencedBlock(response); ok {
		if raw, ok := validJSON(fenced); ok {
			return raw, nil
		}
	}

	objStart := strings.IndexByte(response, '{')
	arrStart := strings.IndexByte(response, '[')
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if raw, ok := validJSON(outermost(response, '[', ']')); ok {
			return raw, nil
		}
		if raw, ok := validJSON(outermost(response, '{', '}')); ok {
			return raw, nil
		}
		return nil, ErrNoStructuredPayload
	}

	if raw, ok := validJSON(outermost(response, '{', '}')); ok {
		return raw, nil
	}
	if raw, ok := validJSON(outermost(response, '[', ']')); ok {
		return raw, nil
	}

	return nil, ErrNoStructuredPayload
}

// fencedBlock returns the content of the first markdown code fence.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{}[]") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// outermost returns the substring from the first open delimiter to the last
// matching close delimiter, or "" when absent.
func outermost(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func validJSON(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}
