package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// Load reads the configuration file, applies environment overrides and
// defaults, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Client.MaxBatchSize == 0 {
		cfg.Client.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Client.MaxWait == 0 {
		cfg.Client.MaxWait = DefaultMaxWait
	}
	if cfg.Client.RequestTimeout == 0 {
		cfg.Client.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Client.MaxLineSize == 0 {
		cfg.Client.MaxLineSize = DefaultMaxLineSize
	}
	if cfg.Server.HandlerCacheSize == 0 {
		cfg.Server.HandlerCacheSize = DefaultHandlerCacheSize
	}

	for i := range cfg.Endpoints {
		for j := range cfg.Endpoints[i].Addresses {
			if cfg.Endpoints[i].Addresses[j].Weight == 0 {
				cfg.Endpoints[i].Addresses[j].Weight = DefaultAddressWeight
			}
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("metricsPort must be between 0 and 65535")
	}
	if cfg.MetricsPort != 0 && cfg.MetricsPort == cfg.Port {
		return fmt.Errorf("metricsPort must differ from port")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.MaxBodySize < 0 {
		return fmt.Errorf("maxBodySize must be non-negative")
	}

	if cfg.Client.MaxBatchSize < 1 {
		return fmt.Errorf("client.maxBatchSize must be positive")
	}
	if cfg.Client.MaxWait < 0 {
		return fmt.Errorf("client.maxWait must be non-negative")
	}
	if cfg.Client.RequestTimeout < 0 {
		return fmt.Errorf("client.requestTimeout must be non-negative")
	}
	if cfg.Client.MaxLineSize < 1024 {
		return fmt.Errorf("client.maxLineSize must be at least 1024")
	}

	if cfg.Server.HandlerCacheSize < 1 {
		return fmt.Errorf("server.handlerCacheSize must be positive")
	}
	if cfg.Server.Plugins.Timeout < 0 {
		return fmt.Errorf("server.plugins.timeout must be non-negative")
	}

	endpointNames := make(map[string]bool)
	for i, ep := range cfg.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint[%d]: name is required", i)
		}
		if endpointNames[ep.Name] {
			return fmt.Errorf("endpoint[%d]: duplicate endpoint name '%s'", i, ep.Name)
		}
		endpointNames[ep.Name] = true

		if len(ep.Addresses) == 0 {
			return fmt.Errorf("endpoint '%s': at least one address is required", ep.Name)
		}
		for j, addr := range ep.Addresses {
			if addr.Host == "" {
				return fmt.Errorf("endpoint '%s', address[%d]: host is required", ep.Name, j)
			}
			if addr.Port < 1 || addr.Port > 65535 {
				return fmt.Errorf("endpoint '%s', address[%d]: port must be between 1 and 65535", ep.Name, j)
			}
			if addr.Weight <= 0 {
				return fmt.Errorf("endpoint '%s', address[%d]: weight must be positive", ep.Name, j)
			}
		}
	}

	return nil
}
