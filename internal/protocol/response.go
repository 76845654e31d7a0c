package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Reply stream headers
const (
	ContentType        = "text/plain; charset=utf-8"
	RequestContentType = "application/json"
)

// ErrMissingIndex is returned for a reply line without an index
var ErrMissingIndex = errors.New("reply line has no index")

type successLine struct {
	Index   int      `json:"index"`
	Data    any      `json:"data"`
	Read    []string `json:"read"`
	Changed []string `json:"changed"`
}

type errorLine struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type rawLine struct {
	Index   *int            `json:"index"`
	Data    json.RawMessage `json:"data"`
	Read    []string        `json:"read"`
	Changed []string        `json:"changed"`
	Error   json.RawMessage `json:"error"`
}

// MarshalSuccess encodes a success reply line, newline terminated.
// Nil table lists are sent as empty arrays.
func MarshalSuccess(index int, data any, read, changed []string) ([]byte, error) {
	if read == nil {
		read = []string{}
	}
	if changed == nil {
		changed = []string{}
	}
	line, err := json.Marshal(successLine{Index: index, Data: data, Read: read, Changed: changed})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result %d: %w", index, err)
	}
	return append(line, '\n'), nil
}

// MarshalError encodes an error reply line, newline terminated
func MarshalError(index int, message string) []byte {
	// a struct of int and string always marshals
	line, _ := json.Marshal(errorLine{Index: index, Error: message})
	return append(line, '\n')
}

// ParseResult decodes one reply line. A line is an error line when its error
// field is present and is neither null, false, 0 nor an empty string.
func ParseResult(line []byte) (*Result, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	if raw.Index == nil {
		return nil, ErrMissingIndex
	}

	result := &Result{Index: *raw.Index}
	if msg, ok := errorMessage(raw.Error); ok {
		result.Error = &Error{Message: msg}
		return result, nil
	}

	result.Data = raw.Data
	result.Read = raw.Read
	result.Changed = raw.Changed
	return result, nil
}

// errorMessage extracts a message from a truthy error payload.
// Non-string payloads are kept as their JSON text.
func errorMessage(raw json.RawMessage) (string, bool) {
	raw = trimWhitespace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch {
	case bytes.Equal(raw, []byte("null")),
		bytes.Equal(raw, []byte("false")),
		bytes.Equal(raw, []byte("0")),
		bytes.Equal(raw, []byte(`""`)):
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	return string(raw), true
}
