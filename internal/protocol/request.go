package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned for a body that is not an array of argument arrays
var ErrInvalidRequest = errors.New("invalid request body")

// EncodeRequest builds the request body: one argument array per job, in order.
func EncodeRequest(args [][]json.RawMessage) ([]byte, error) {
	body := make([][]json.RawMessage, len(args))
	for i, a := range args {
		if a == nil {
			a = []json.RawMessage{}
		}
		body[i] = a
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return data, nil
}

// ParseRequest parses a request body into jobs indexed by position.
// An empty body or JSON null yields no jobs.
func ParseRequest(data []byte) ([]*Job, error) {
	data = trimWhitespace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var argsArr [][]json.RawMessage
	if err := json.Unmarshal(data, &argsArr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	jobs := make([]*Job, len(argsArr))
	for i, args := range argsArr {
		if args == nil {
			args = []json.RawMessage{}
		}
		jobs[i] = &Job{Index: i, Args: args}
	}
	return jobs, nil
}

// EncodeArgs marshals call arguments one by one
func EncodeArgs(args []any) ([]json.RawMessage, error) {
	encoded := make([]json.RawMessage, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal argument %d: %w", i, err)
		}
		encoded[i] = data
	}
	return encoded, nil
}

// trimWhitespace removes leading and trailing whitespace from byte slice
func trimWhitespace(data []byte) []byte {
	start, end := 0, len(data)
	for start < end && isSpace(data[start]) {
		start++
	}
	for end > start && isSpace(data[end-1]) {
		end--
	}
	return data[start:end]
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
