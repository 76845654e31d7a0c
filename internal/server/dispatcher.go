package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"httprpc/internal/metrics"
	"httprpc/internal/protocol"
	"httprpc/internal/registry"
	"httprpc/internal/trace"
)

// errUnassigned is sent for jobs a grouping handler left out of every batch
var errUnassigned = errors.New("job was not assigned to any batch")

// Dispatcher handles one wire call: it resolves the handler for the method
// in the path, builds job batches, runs them concurrently and streams one
// reply line per job.
type Dispatcher struct {
	resolver    registry.Resolver
	runner      *Runner
	maxBodySize int64
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(resolver registry.Resolver, runner *Runner, maxBodySize int64, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		resolver:    resolver,
		runner:      runner,
		maxBodySize: maxBodySize,
		metrics:     m,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// ServeHTTP handles HTTP requests
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		d.writeError(w, "", http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	method := extractMethod(r.URL.Path)
	if method == "" {
		d.writeError(w, "", http.StatusNotFound, "method name is required")
		return
	}

	body, status, err := d.readBody(r)
	if err != nil {
		d.writeError(w, method, status, err.Error())
		return
	}

	jobs, err := protocol.ParseRequest(body)
	if err != nil {
		d.writeError(w, method, http.StatusBadRequest, err.Error())
		return
	}

	span := trace.FromHeaders(r.Header)
	if span == nil {
		span = trace.NewTrace("handle " + r.URL.Path)
	}

	h := w.Header()
	h.Set("Content-Type", protocol.ContentType)
	h.Set("Transfer-Encoding", "chunked")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	d.metrics.ObserveRequest(method, strconv.Itoa(http.StatusOK))

	lw := NewLineWriter(w)
	ctx := r.Context()

	batches, err := d.batches(ctx, method, jobs)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("method", method).
			Int("jobs", len(jobs)).
			Str("traceId", span.TraceID).
			Msg("failed to resolve handler")
		d.metrics.ObserveLoadFailure(method, len(jobs))
		d.writeAll(lw, jobs, err)
		return
	}

	d.logger.Debug().
		Str("method", method).
		Int("jobs", len(jobs)).
		Int("batches", len(batches)).
		Str("traceId", span.TraceID).
		Msg("dispatching")

	if missing := unassigned(jobs, batches); len(missing) > 0 {
		d.logger.Error().Str("method", method).Int("jobs", len(missing)).Msg("handler left jobs unassigned")
		d.writeAll(lw, missing, errUnassigned)
	}

	var g errgroup.Group
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			return d.runner.Run(ctx, method, span, batch, lw)
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Debug().Err(err).Str("method", method).Msg("client went away while streaming")
	}
}

// batches resolves the handler and builds the batches. A panicking grouping
// handler fails the whole request like a resolution failure.
func (d *Dispatcher) batches(ctx context.Context, method string, jobs []*protocol.Job) (batches []*protocol.JobBatch, err error) {
	handler, err := d.resolver.Resolve(ctx, method)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			batches = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return handler.Batches(jobs), nil
}

// readBody reads the request body, honoring maxBodySize
func (d *Dispatcher) readBody(r *http.Request) ([]byte, int, error) {
	if d.maxBodySize <= 0 {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("failed to read request body")
		}
		return body, 0, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, d.maxBodySize+1))
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("failed to read request body")
	}
	if int64(len(body)) > d.maxBodySize {
		return nil, http.StatusRequestEntityTooLarge, errors.New("request body too large")
	}
	return body, 0, nil
}

// writeAll writes an error line carrying err for each job
func (d *Dispatcher) writeAll(lw *LineWriter, jobs []*protocol.Job, err error) {
	lines := make([][]byte, len(jobs))
	for i, job := range jobs {
		lines[i] = protocol.MarshalError(job.Index, err.Error())
	}
	_ = lw.WriteLines(lines)
}

// writeError rejects a request before any reply line was written
func (d *Dispatcher) writeError(w http.ResponseWriter, method string, status int, msg string) {
	d.metrics.ObserveRequest(method, strconv.Itoa(status))
	http.Error(w, msg, status)
}

// unassigned returns the jobs that appear in no batch
func unassigned(jobs []*protocol.Job, batches []*protocol.JobBatch) []*protocol.Job {
	seen := make(map[*protocol.Job]struct{}, len(jobs))
	for _, b := range batches {
		for _, j := range b.Jobs {
			seen[j] = struct{}{}
		}
	}

	var missing []*protocol.Job
	for _, j := range jobs {
		if _, ok := seen[j]; !ok {
			missing = append(missing, j)
		}
	}
	return missing
}

// extractMethod extracts the method name from a URL path
// Examples:
//
//	/getUser -> getUser
//	/getUser/ -> getUser
//	/getUser/extra -> getUser
func extractMethod(path string) string {
	path = strings.TrimPrefix(path, "/")
	if idx := strings.Index(path, "/"); idx != -1 {
		path = path[:idx]
	}
	return path
}
