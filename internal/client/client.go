// Package client issues calls to remote services. Calls to the same endpoint
// and method made close together travel in one HTTP request, and each call
// settles as soon as its own reply line arrives.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"httprpc/internal/batcher"
	"httprpc/internal/config"
	"httprpc/internal/discovery"
	"httprpc/internal/metrics"
	"httprpc/internal/protocol"
	"httprpc/internal/scope"
)

// Endpoint is the logical service a call targets
type Endpoint = batcher.Endpoint

// DecodeFunc transforms the data of a successful reply into the call's value
type DecodeFunc func(data json.RawMessage) (any, error)

// Request describes one call
type Request struct {
	Endpoint Endpoint
	Method   string
	Args     []any
	Decode   DecodeFunc // optional, overrides the client default
}

// call is one queued invocation
type call struct {
	scope   *scope.Scope
	method  string
	args    []json.RawMessage
	decode  DecodeFunc
	pending *Pending
}

// Config for creating a new Client
type Config struct {
	MaxBatchSize   int
	MaxWait        time.Duration
	RequestTimeout time.Duration
	MaxLineSize    int
	Discovery      discovery.Discovery
	Reporter       Reporter
	Metrics        *metrics.Metrics
	HTTPClient     *http.Client
	Decode         DecodeFunc
	Logger         zerolog.Logger
}

// Client coalesces calls and sends them through a Transport
type Client struct {
	coalescer *batcher.Coalescer[*call]
	transport *Transport
	tables    *TableRegistry
	decode    DecodeFunc
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New creates a new Client
func New(cfg Config) *Client {
	tables := NewTableRegistry()

	c := &Client{
		tables:  tables,
		decode:  cfg.Decode,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("component", "client").Logger(),
	}
	if c.decode == nil {
		c.decode = decodeJSON
	}

	c.transport = NewTransport(TransportConfig{
		Discovery:      cfg.Discovery,
		Tables:         tables,
		Reporter:       cfg.Reporter,
		Metrics:        cfg.Metrics,
		HTTPClient:     cfg.HTTPClient,
		RequestTimeout: cfg.RequestTimeout,
		MaxLineSize:    cfg.MaxLineSize,
		Logger:         cfg.Logger,
	})

	c.coalescer = batcher.New(batcher.Options{
		MaxSize: cfg.MaxBatchSize,
		MaxWait: cfg.MaxWait,
	}, c.dispatch, cfg.Logger)

	return c
}

// NewFromConfig creates a Client from the client section of the config
func NewFromConfig(cfg config.ClientConfig, d discovery.Discovery, m *metrics.Metrics, logger zerolog.Logger) *Client {
	return New(Config{
		MaxBatchSize:   cfg.MaxBatchSize,
		MaxWait:        cfg.GetMaxWaitDuration(),
		RequestTimeout: cfg.GetRequestTimeoutDuration(),
		MaxLineSize:    cfg.MaxLineSize,
		Discovery:      d,
		Metrics:        m,
		Logger:         logger,
	})
}

// Tables returns the registry interning remote table handles
func (c *Client) Tables() *TableRegistry {
	return c.tables
}

// Call queues a call and returns immediately. A nil scope runs the call under
// a fresh trace.
func (c *Client) Call(sc *scope.Scope, req Request) *Pending {
	p := newPending()

	if sc == nil {
		sc = scope.New(nil, scope.Conf{}, scope.Hooks{})
	}

	args, err := protocol.EncodeArgs(req.Args)
	if err != nil {
		p.settle(nil, err)
		return p
	}

	decode := req.Decode
	if decode == nil {
		decode = c.decode
	}

	cl := &call{
		scope:   sc,
		method:  req.Method,
		args:    args,
		decode:  decode,
		pending: p,
	}

	key := batcher.Key{Endpoint: req.Endpoint, Method: req.Method}
	if err := c.coalescer.Enqueue(key, cl); err != nil {
		p.settle(nil, err)
	}

	return p
}

// dispatch sends one flushed batch, one wire call per originating span
func (c *Client) dispatch(key batcher.Key, calls []*call) {
	c.metrics.ObserveFlush(key.Endpoint.String(), key.Method, len(calls))

	groups := groupBySpan(calls)

	c.logger.Debug().
		Str("endpoint", key.Endpoint.String()).
		Str("method", key.Method).
		Int("calls", len(calls)).
		Int("spans", len(groups)).
		Msg("dispatching batch")

	if len(groups) == 1 {
		c.transport.Send(context.Background(), key, groups[0].span, groups[0].calls)
		return
	}

	var g errgroup.Group
	for _, group := range groups {
		group := group
		g.Go(func() error {
			c.transport.Send(context.Background(), key, group.span, group.calls)
			return nil
		})
	}
	_ = g.Wait()
}

// Close flushes queued calls and waits for in-flight wire calls
func (c *Client) Close(ctx context.Context) error {
	return c.coalescer.Close(ctx)
}

// CallAs issues a call and waits for its result decoded as T
func CallAs[T any](ctx context.Context, c *Client, sc *scope.Scope, req Request) (T, error) {
	var zero T

	req.Decode = func(data json.RawMessage) (any, error) {
		var v T
		if len(data) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}

	value, err := c.Call(sc, req).Wait(ctx)
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}

	v, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected result type %T", value)
	}
	return v, nil
}

// decodeJSON is the default DecodeFunc
func decodeJSON(data json.RawMessage) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
