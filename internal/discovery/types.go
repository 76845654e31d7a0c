// Package discovery maps logical endpoints to the network addresses serving them.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"httprpc/internal/batcher"
)

// Endpoint is the logical service a call targets
type Endpoint = batcher.Endpoint

var (
	// ErrUnknownEndpoint is returned for endpoints missing from the table
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrNoAddress is returned when every address of an endpoint is unavailable
	ErrNoAddress = errors.New("no available address")
)

// Address is a concrete host and port
type Address struct {
	Host string
	Port int
}

// String returns host:port
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Scheme returns https for port 443 and http otherwise
func (a Address) Scheme() string {
	if a.Port == 443 {
		return "https"
	}
	return "http"
}

// URL returns the address of a method on this host
func (a Address) URL(method string) string {
	return fmt.Sprintf("%s://%s/%s", a.Scheme(), a.String(), method)
}

// Discovery resolves a logical endpoint to an address
type Discovery interface {
	Resolve(ctx context.Context, ep Endpoint) (Address, error)
}

// Observer is implemented by discoveries that want wire call outcomes.
// err is nil for a call that completed.
type Observer interface {
	Observe(addr Address, err error)
}
