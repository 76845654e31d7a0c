package discovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"httprpc/internal/config"
)

// Static resolves endpoints from a fixed table loaded from configuration.
// With passthrough enabled, endpoints missing from the table resolve to
// their own name and port. The table is read-only after construction.
type Static struct {
	endpoints   map[string]*weightedRoundRobin
	byAddress   map[Address][]*target
	passthrough bool
	logger      zerolog.Logger
}

// NewStatic builds a Static discovery from endpoint configuration
func NewStatic(endpoints []config.EndpointConfig, passthrough bool, logger zerolog.Logger) *Static {
	s := &Static{
		endpoints:   make(map[string]*weightedRoundRobin, len(endpoints)),
		byAddress:   make(map[Address][]*target),
		passthrough: passthrough,
		logger:      logger.With().Str("component", "discovery").Logger(),
	}

	for _, ep := range endpoints {
		breakerCfg := BreakerConfig{}
		if ep.CircuitBreaker != nil {
			breakerCfg = BreakerConfig{
				Enabled:             ep.CircuitBreaker.Enabled,
				FailureThreshold:    ep.CircuitBreaker.FailureThreshold,
				RecoveryTimeout:     ep.CircuitBreaker.GetRecoveryTimeoutDuration(),
				HalfOpenMaxRequests: ep.CircuitBreaker.HalfOpenMaxRequests,
			}
		}

		targets := make([]*target, 0, len(ep.Addresses))
		for _, a := range ep.Addresses {
			weight := a.Weight
			if weight <= 0 {
				weight = config.DefaultAddressWeight
			}
			t := &target{
				addr:    Address{Host: a.Host, Port: a.Port},
				weight:  weight,
				breaker: NewBreaker(breakerCfg),
			}
			targets = append(targets, t)
			s.byAddress[t.addr] = append(s.byAddress[t.addr], t)
		}
		s.endpoints[ep.Name] = newWeightedRoundRobin(targets)
	}

	return s
}

// Resolve implements Discovery
func (s *Static) Resolve(ctx context.Context, ep Endpoint) (Address, error) {
	if err := ctx.Err(); err != nil {
		return Address{}, err
	}

	wrr, ok := s.endpoints[ep.Name]

	if !ok {
		if s.passthrough {
			return Address{Host: ep.Name, Port: ep.Port}, nil
		}
		return Address{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, ep.Name)
	}

	t := wrr.next()
	if t == nil {
		return Address{}, fmt.Errorf("%w: %s", ErrNoAddress, ep.Name)
	}
	return t.addr, nil
}

// Observe implements Observer
func (s *Static) Observe(addr Address, err error) {
	targets := s.byAddress[addr]

	for _, t := range targets {
		if err == nil {
			t.breaker.Success()
			continue
		}

		before := t.breaker.State()
		t.breaker.Failure()
		if after := t.breaker.State(); after != before {
			s.logger.Warn().
				Err(err).
				Str("address", addr.String()).
				Str("state", after).
				Msg("circuit breaker state changed")
		}
	}
}
