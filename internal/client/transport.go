package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"httprpc/internal/batcher"
	"httprpc/internal/discovery"
	"httprpc/internal/metrics"
	"httprpc/internal/protocol"
	"httprpc/internal/trace"
)

// HeaderService names the target service of a wire call
const HeaderService = "x-service"

const (
	defaultMaxLineSize = 16 * 1024 * 1024
	statusBodyLimit    = 512
)

// TransportConfig for creating a new Transport
type TransportConfig struct {
	Discovery      discovery.Discovery
	Tables         *TableRegistry
	Reporter       Reporter
	Metrics        *metrics.Metrics
	HTTPClient     *http.Client // optional, replaces the default client
	RequestTimeout time.Duration
	MaxLineSize    int
	Logger         zerolog.Logger
}

// Transport sends one span group of calls as a single HTTP request and settles
// each call as soon as its reply line arrives.
type Transport struct {
	discovery   discovery.Discovery
	tables      *TableRegistry
	reporter    Reporter
	metrics     *metrics.Metrics
	httpClient  *http.Client
	maxLineSize int
	logger      zerolog.Logger
}

// NewTransport creates a new Transport
func NewTransport(cfg TransportConfig) *Transport {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  true,
			},
			Timeout: cfg.RequestTimeout,
		}
	}

	tables := cfg.Tables
	if tables == nil {
		tables = NewTableRegistry()
	}

	logger := cfg.Logger.With().Str("component", "transport").Logger()

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = NewLogReporter(cfg.Logger)
	}

	maxLineSize := cfg.MaxLineSize
	if maxLineSize <= 0 {
		maxLineSize = defaultMaxLineSize
	}

	return &Transport{
		discovery:   cfg.Discovery,
		tables:      tables,
		reporter:    reporter,
		metrics:     cfg.Metrics,
		httpClient:  httpClient,
		maxLineSize: maxLineSize,
		logger:      logger,
	}
}

// Send performs one wire call for calls, all of which originate from parent.
// Every call is settled when Send returns.
func (t *Transport) Send(ctx context.Context, key batcher.Key, parent *trace.Span, calls []*call) {
	span := trace.NewSpan(parent)
	start := time.Now()

	err := t.send(ctx, key, span, calls)
	t.metrics.ObserveWireCall(key.Endpoint.String(), key.Method, err, time.Since(start))

	if err != nil {
		t.logger.Debug().
			Err(err).
			Str("endpoint", key.Endpoint.String()).
			Str("method", key.Method).
			Str("traceId", span.TraceID).
			Msg("wire call failed")
	}

	for _, c := range calls {
		if err != nil {
			t.settle(c, nil, err)
			continue
		}
		if !c.pending.Settled() {
			t.metrics.ObserveAnomaly(metrics.AnomalyNoResult)
			t.reporter.Report("job received no result", map[string]any{
				"endpoint": key.Endpoint.String(),
				"method":   key.Method,
			})
			t.settle(c, nil, ErrNoResult)
		}
	}
}

// send returns an error that applies to every call not settled yet
func (t *Transport) send(ctx context.Context, key batcher.Key, span *trace.Span, calls []*call) error {
	addr, err := t.discovery.Resolve(ctx, key.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", key.Endpoint, err)
	}
	url := addr.URL(key.Method)

	args := make([][]json.RawMessage, len(calls))
	for i, c := range calls {
		args[i] = c.args
	}
	body, err := protocol.EncodeRequest(args)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", protocol.RequestContentType)
	req.Header.Set(HeaderService, key.Endpoint.Name)
	span.Inject(req.Header)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		err = &TransportError{URL: url, Err: err}
		t.observe(addr, err)
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	var reader io.Reader = resp.Body
	var head *headBuffer
	if !ok {
		head = &headBuffer{limit: statusBodyLimit}
		reader = io.TeeReader(resp.Body, head)
	}

	if err := t.readLines(reader, url, calls); err != nil {
		err = &TransportError{URL: url, Err: err}
		t.observe(addr, err)
		return err
	}

	if !ok {
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(head.buf))}
		if resp.StatusCode >= 500 {
			t.observe(addr, statusErr)
		} else {
			t.observe(addr, nil)
		}
		for _, c := range calls {
			if !c.pending.Settled() {
				t.settle(c, nil, statusErr)
			}
		}
		return nil
	}

	t.observe(addr, nil)
	return nil
}

// readLines settles calls from the reply stream, one line at a time
func (t *Transport) readLines(r io.Reader, url string, calls []*call) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), t.maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		result, err := protocol.ParseResult(line)
		if err != nil {
			t.metrics.ObserveAnomaly(metrics.AnomalyInvalidLine)
			t.reporter.Report("found invalid response", map[string]any{"line": string(line), "url": url})
			continue
		}

		if result.Index < 0 || result.Index >= len(calls) {
			t.metrics.ObserveAnomaly(metrics.AnomalyUnknownJob)
			t.reporter.Report("referencing a non existing job", map[string]any{"line": string(line), "url": url})
			continue
		}

		c := calls[result.Index]
		if c.pending.Settled() {
			t.metrics.ObserveAnomaly(metrics.AnomalyDuplicate)
			t.reporter.Report("duplicate result for job", map[string]any{"line": string(line), "url": url})
			continue
		}

		t.apply(c, result)
	}

	return scanner.Err()
}

// apply settles c from its reply line
func (t *Transport) apply(c *call, result *protocol.Result) {
	if result.HasError() {
		t.settle(c, nil, &RemoteError{Message: result.Error.Message})
		return
	}

	for _, name := range result.Read {
		c.scope.OnRead(t.tables.Get(name))
	}
	for _, name := range result.Changed {
		c.scope.OnChanged(t.tables.Get(name))
	}

	value, err := c.decode(result.Data)
	if err != nil {
		t.settle(c, nil, fmt.Errorf("failed to decode result: %w", err))
		return
	}
	t.settle(c, value, nil)
}

func (t *Transport) settle(c *call, value any, err error) {
	if c.pending.settle(value, err) {
		t.metrics.ObserveClientJob(c.method, err)
	}
}

func (t *Transport) observe(addr discovery.Address, err error) {
	if o, ok := t.discovery.(discovery.Observer); ok {
		o.Observe(addr, err)
	}
}

// headBuffer keeps the first limit bytes written to it
type headBuffer struct {
	buf   []byte
	limit int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.limit - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}
