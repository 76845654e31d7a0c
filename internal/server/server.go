// Package server runs the handler side of the protocol: the HTTP dispatcher,
// the batch runner and the process-level listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"httprpc/internal/client"
	"httprpc/internal/config"
	"httprpc/internal/discovery"
	"httprpc/internal/metrics"
	"httprpc/internal/plugin"
	"httprpc/internal/registry"
	"httprpc/internal/scope"
)

// Server represents the main server
type Server struct {
	cfg           *config.Config
	registry      *registry.Registry
	pluginManager *plugin.Manager
	client        *client.Client
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer
	rpcServer     *http.Server
	metricsServer *http.Server
	logger        zerolog.Logger
}

// New creates a new Server. Handlers registered on Registry() before Start
// are served alongside plugins from the configured directory.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	d := discovery.NewStatic(cfg.Endpoints, true, logger)
	c := client.NewFromConfig(cfg.Client, d, m, logger)

	handlers := registry.New(cfg.Server.HandlerCacheSize, logger)

	var pluginMgr *plugin.Manager
	if cfg.Server.Plugins.Enabled {
		pluginMgr = plugin.NewManager(logger)
		pluginMgr.SetTimeout(cfg.Server.GetPluginTimeoutDuration())
		pluginMgr.SetCaller(c)

		if err := pluginMgr.LoadFromDirectory(cfg.Server.GetPluginDirectory()); err != nil {
			return nil, fmt.Errorf("failed to load plugins: %w", err)
		}
		pluginMgr.Register(handlers)

		methods := pluginMgr.Methods()
		if len(methods) > 0 {
			logger.Info().
				Strs("methods", methods).
				Str("directory", cfg.Server.GetPluginDirectory()).
				Msg("plugins enabled")
		} else {
			logger.Info().
				Str("directory", cfg.Server.GetPluginDirectory()).
				Msg("plugins enabled but no plugins found")
		}
	} else {
		logger.Info().Msg("plugins disabled")
	}

	return &Server{
		cfg:           cfg,
		registry:      handlers,
		pluginManager: pluginMgr,
		client:        c,
		metrics:       m,
		gatherer:      reg,
		logger:        logger,
	}, nil
}

// Registry returns the handler registry
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Client returns the client used for outgoing calls
func (s *Server) Client() *client.Client {
	return s.client
}

// Handler returns the dispatcher serving wire calls
func (s *Server) Handler() http.Handler {
	runner := NewRunner(scope.Conf{Service: s.cfg.Server.Service}, s.metrics, s.logger)
	return NewDispatcher(s.registry, runner, s.cfg.MaxBodySize, s.metrics, s.logger)
}

// Start starts the listeners
func (s *Server) Start() error {
	rpcAddr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	rpcListener, err := net.Listen("tcp", rpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", rpcAddr, err)
	}

	// replies stream for as long as batches run, so there is no write timeout
	s.rpcServer = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("addr", rpcAddr).
			Strs("methods", s.registry.Methods()).
			Msg("starting RPC server")
		if err := s.rpcServer.Serve(rpcListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	if s.cfg.IsMetricsEnabled() {
		metricsAddr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.MetricsPort))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(s.gatherer))

		s.metricsServer = &http.Server{
			Addr:         metricsAddr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			s.logger.Info().
				Str("addr", metricsAddr).
				Msg("starting metrics server")
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var rpcErr, metricsErr error

	if s.rpcServer != nil {
		rpcErr = s.rpcServer.Shutdown(ctx)
	}
	if s.metricsServer != nil {
		metricsErr = s.metricsServer.Shutdown(ctx)
	}

	// flush calls handlers queued while serving their last requests
	clientErr := s.client.Close(ctx)

	if rpcErr != nil {
		return fmt.Errorf("RPC server shutdown error: %w", rpcErr)
	}
	if metricsErr != nil {
		return fmt.Errorf("metrics server shutdown error: %w", metricsErr)
	}
	if clientErr != nil {
		return fmt.Errorf("client shutdown error: %w", clientErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
