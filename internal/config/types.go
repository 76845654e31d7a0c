package config

import "time"

// EnvPrefix is the prefix of environment variables overriding file values
const EnvPrefix = "HTTPRPC"

// Config represents the main configuration structure
type Config struct {
	Host        string           `json:"host" envconfig:"HOST"`
	Port        int              `json:"port" envconfig:"PORT"`
	MetricsPort int              `json:"metricsPort" envconfig:"METRICS_PORT"` // 0 disables the metrics listener
	LogLevel    string           `json:"logLevel" envconfig:"LOG_LEVEL"`
	MaxBodySize int64            `json:"maxBodySize" envconfig:"MAX_BODY_SIZE"`
	Client      ClientConfig     `json:"client" envconfig:"CLIENT"`
	Server      ServerConfig     `json:"server" envconfig:"SERVER"`
	Endpoints   []EndpointConfig `json:"endpoints" ignored:"true"`
}

// ClientConfig configures call coalescing and the wire transport
type ClientConfig struct {
	MaxBatchSize   int `json:"maxBatchSize" envconfig:"MAX_BATCH_SIZE"`
	MaxWait        int `json:"maxWait" envconfig:"MAX_WAIT"`               // ms - coalescing window
	RequestTimeout int `json:"requestTimeout" envconfig:"REQUEST_TIMEOUT"` // ms - bound on one wire call
	MaxLineSize    int `json:"maxLineSize" envconfig:"MAX_LINE_SIZE"`      // bytes - longest accepted reply line
}

// ServerConfig configures the handler side
type ServerConfig struct {
	Service          string       `json:"service" envconfig:"SERVICE"`
	HandlerCacheSize int          `json:"handlerCacheSize" envconfig:"HANDLER_CACHE_SIZE"`
	Plugins          PluginConfig `json:"plugins" envconfig:"PLUGINS"`
}

// PluginConfig represents plugin configuration
type PluginConfig struct {
	Enabled   bool   `json:"enabled" envconfig:"ENABLED"`
	Directory string `json:"directory" envconfig:"DIRECTORY"` // path to plugins directory
	Timeout   int    `json:"timeout" envconfig:"TIMEOUT"`     // execution timeout in milliseconds
}

// EndpointConfig maps a logical endpoint name to the addresses serving it
type EndpointConfig struct {
	Name           string                `json:"name"`
	Addresses      []AddressConfig       `json:"addresses"`
	CircuitBreaker *CircuitBreakerConfig `json:"circuitBreaker,omitempty"`
}

// AddressConfig represents one host:port serving an endpoint
type AddressConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Weight int    `json:"weight"`
}

// CircuitBreakerConfig represents per-address circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled             bool `json:"enabled"`
	FailureThreshold    int  `json:"failureThreshold"`
	RecoveryTimeout     int  `json:"recoveryTimeout"` // ms
	HalfOpenMaxRequests int  `json:"halfOpenMaxRequests"`
}

// Default values
const (
	DefaultHost             = "localhost"
	DefaultPort             = 8080
	DefaultLogLevel         = "info"
	DefaultMaxBodySize      = int64(0) // 0 means no limit
	DefaultMaxBatchSize     = 32
	DefaultMaxWait          = 1     // ms
	DefaultRequestTimeout   = 30000 // ms
	DefaultMaxLineSize      = 16 * 1024 * 1024
	DefaultHandlerCacheSize = 256
	DefaultAddressWeight    = 1
	DefaultPluginDirectory  = "./plugins"
	DefaultPluginTimeout    = 30000 // ms
)

// GetMaxWaitDuration returns the coalescing window as time.Duration
func (c *ClientConfig) GetMaxWaitDuration() time.Duration {
	return time.Duration(c.MaxWait) * time.Millisecond
}

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *ClientConfig) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetPluginDirectory returns the plugins directory path
func (c *ServerConfig) GetPluginDirectory() string {
	if c.Plugins.Directory == "" {
		return DefaultPluginDirectory
	}
	return c.Plugins.Directory
}

// GetPluginTimeoutDuration returns plugin timeout as time.Duration
func (c *ServerConfig) GetPluginTimeoutDuration() time.Duration {
	if c.Plugins.Timeout == 0 {
		return time.Duration(DefaultPluginTimeout) * time.Millisecond
	}
	return time.Duration(c.Plugins.Timeout) * time.Millisecond
}

// GetRecoveryTimeoutDuration returns the breaker recovery timeout as time.Duration
func (c *CircuitBreakerConfig) GetRecoveryTimeoutDuration() time.Duration {
	return time.Duration(c.RecoveryTimeout) * time.Millisecond
}

// IsMetricsEnabled returns true if the metrics listener is configured
func (c *Config) IsMetricsEnabled() bool {
	return c.MetricsPort > 0
}
