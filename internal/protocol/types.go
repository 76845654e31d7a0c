package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"httprpc/internal/scope"
)

// Job is one logical call inside a wire request. Index is the job's position
// in the request body and the only key used to match it with a reply line.
type Job struct {
	Index  int
	Args   []json.RawMessage
	Result any // set by the batch that executes the job
}

// DecodeArgs unmarshals the job's arguments into dst, positionally.
// Missing trailing arguments leave their destinations untouched.
func (j *Job) DecodeArgs(dst ...any) error {
	for i, d := range dst {
		if i >= len(j.Args) {
			return nil
		}
		if err := json.Unmarshal(j.Args[i], d); err != nil {
			return fmt.Errorf("invalid argument %d: %w", i, err)
		}
	}
	return nil
}

// JobBatch is the unit of server-side execution. All jobs of a batch share one
// scope and therefore one read/changed provenance set.
type JobBatch struct {
	Jobs    []*Job
	Execute func(ctx context.Context, sc *scope.Scope) error
}

// Error is the error payload of a reply line
type Error struct {
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Result is one decoded reply line: either a success carrying data and table
// provenance, or an error.
type Result struct {
	Index   int
	Data    json.RawMessage
	Read    []string
	Changed []string
	Error   *Error
}

// HasError returns true if the line carries an error
func (r *Result) HasError() bool {
	return r.Error != nil
}
