package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"httprpc/internal/metrics"
	"httprpc/internal/protocol"
	"httprpc/internal/scope"
	"httprpc/internal/trace"
)

// Runner executes one job batch in a fresh scope and writes a reply line for
// every job of the batch
type Runner struct {
	conf    scope.Conf
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRunner creates a new Runner. conf is handed to every scope it creates.
func NewRunner(conf scope.Conf, m *metrics.Metrics, logger zerolog.Logger) *Runner {
	return &Runner{
		conf:    conf,
		metrics: m,
		logger:  logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes batch under span. On success every job gets its result plus
// the tables the whole batch read and changed; on failure every job gets the
// batch's error.
func (r *Runner) Run(ctx context.Context, method string, span *trace.Span, batch *protocol.JobBatch, w *LineWriter) error {
	read := scope.NewRecorder()
	changed := scope.NewRecorder()
	sc := scope.New(span, r.conf, scope.Hooks{
		OnRead:    read.Record,
		OnChanged: changed.Record,
	})

	start := time.Now()
	err := r.execute(ctx, sc, batch)
	r.metrics.ObserveBatch(method, len(batch.Jobs), err, time.Since(start))

	lines := make([][]byte, 0, len(batch.Jobs))
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("method", method).
			Int("jobs", len(batch.Jobs)).
			Str("traceId", span.TraceID).
			Msg("failed to handle")

		for _, job := range batch.Jobs {
			lines = append(lines, protocol.MarshalError(job.Index, err.Error()))
		}
		return w.WriteLines(lines)
	}

	readNames := read.Names()
	changedNames := changed.Names()
	for _, job := range batch.Jobs {
		line, mErr := protocol.MarshalSuccess(job.Index, job.Result, readNames, changedNames)
		if mErr != nil {
			r.logger.Error().Err(mErr).Str("method", method).Int("index", job.Index).Msg("failed to encode result")
			line = protocol.MarshalError(job.Index, mErr.Error())
		}
		lines = append(lines, line)
	}
	return w.WriteLines(lines)
}

// execute runs the batch, turning a panic into an error
func (r *Runner) execute(ctx context.Context, sc *scope.Scope, batch *protocol.JobBatch) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if batch.Execute == nil {
		return errors.New("batch has no executor")
	}
	return batch.Execute(ctx, sc)
}
