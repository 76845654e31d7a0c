package registry

import (
	"context"
	"encoding/json"

	"httprpc/internal/protocol"
	"httprpc/internal/scope"
)

// Kind tells how a handler turns jobs into batches
type Kind int

const (
	// KindDirect handlers run once per job, each job in its own batch
	KindDirect Kind = iota
	// KindGrouping handlers partition the jobs into batches themselves
	KindGrouping
)

func (k Kind) String() string {
	if k == KindGrouping {
		return "grouping"
	}
	return "direct"
}

// DirectFunc handles one job. Its result becomes the job's data.
type DirectFunc func(ctx context.Context, sc *scope.Scope, args []json.RawMessage) (any, error)

// GroupingFunc partitions all jobs of a request into batches. Every job must
// appear in exactly one batch.
type GroupingFunc func(jobs []*protocol.Job) []*protocol.JobBatch

// Handler is either a DirectFunc or a GroupingFunc, fixed at construction
type Handler struct {
	kind     Kind
	direct   DirectFunc
	grouping GroupingFunc
}

// Direct wraps a per-job function
func Direct(fn DirectFunc) Handler {
	return Handler{kind: KindDirect, direct: fn}
}

// Grouping wraps a batch-building function
func Grouping(fn GroupingFunc) Handler {
	return Handler{kind: KindGrouping, grouping: fn}
}

// Kind returns the handler kind
func (h Handler) Kind() Kind {
	return h.kind
}

// Batches turns jobs into the batches to execute
func (h Handler) Batches(jobs []*protocol.Job) []*protocol.JobBatch {
	if h.kind == KindGrouping {
		return h.grouping(jobs)
	}

	batches := make([]*protocol.JobBatch, len(jobs))
	for i, job := range jobs {
		batches[i] = directBatch(job, h.direct)
	}
	return batches
}

// directBatch wraps a single job so that executing the batch stores the
// handler's result on the job
func directBatch(job *protocol.Job, fn DirectFunc) *protocol.JobBatch {
	return &protocol.JobBatch{
		Jobs: []*protocol.Job{job},
		Execute: func(ctx context.Context, sc *scope.Scope) error {
			result, err := fn(ctx, sc, job.Args)
			if err != nil {
				return err
			}
			job.Result = result
			return nil
		},
	}
}
