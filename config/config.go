// Package config defines the server configuration: listen addresses, the
// reconstruction chain descriptor, and optional integrations. The chain
// descriptor arrives here already parsed; this core does not deal with any
// other textual source form.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/casemr/gadgetron/errors"
)

// Config is the root configuration for the reconstruction server.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Metrics MetricsConfig `json:"metrics"`
	NATS    NATSConfig    `json:"nats"`
	Chain   ChainConfig   `json:"chain"`
}

// ServerConfig holds the network listeners.
type ServerConfig struct {
	// Listen is the TCP address for the binary reconstruction protocol.
	Listen string `json:"listen"`
	// WebSocketListen optionally serves the same protocol over binary
	// WebSocket messages. Empty disables the listener.
	WebSocketListen string `json:"websocket_listen,omitempty"`
}

// MetricsConfig holds the Prometheus exposition endpoint.
// An empty listen address disables the endpoint.
type MetricsConfig struct {
	Listen string `json:"listen,omitempty"`
}

// NATSConfig holds the optional session event publisher.
// An empty URL disables publishing.
type NATSConfig struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// ChainConfig is the ordered chain descriptor a pipeline is assembled from.
type ChainConfig struct {
	// QueueCapacity is the default capacity of the queue ahead of each
	// stage. Zero means queue.DefaultCapacity.
	QueueCapacity int `json:"queue_capacity,omitempty"`
	// Stages is the ordered list of stage types with their parameters.
	Stages []StageSpec `json:"stages"`
}

// StageSpec is one entry of the chain descriptor: a stage type name plus
// an opaque parameter bag handed to the stage's Configure.
type StageSpec struct {
	Type          string          `json:"type"`
	Params        json.RawMessage `json:"params,omitempty"`
	QueueCapacity int             `json:"queue_capacity,omitempty"`
}

// Default returns a configuration with sensible defaults: the standard
// protocol port and a pass-through chain.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":9002"},
		Chain: ChainConfig{
			Stages: []StageSpec{{Type: "passthrough"}},
		},
	}
}

// Validate checks the configuration for structural problems. Stage types
// are only checked for presence here; whether a type exists is decided at
// pipeline assembly against the stage registry.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "Config", "Validate", "server.listen")
	}
	if len(c.Chain.Stages) == 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: chain must contain at least one stage", errors.ErrInvalidConfig),
			"Config", "Validate", "chain.stages")
	}
	if c.Chain.QueueCapacity < 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: negative queue capacity", errors.ErrInvalidConfig),
			"Config", "Validate", "chain.queue_capacity")
	}
	for i, spec := range c.Chain.Stages {
		if spec.Type == "" {
			return errors.WrapConfig(
				fmt.Errorf("%w: chain entry %d has no stage type", errors.ErrInvalidConfig, i),
				"Config", "Validate", "chain.stages")
		}
		if spec.QueueCapacity < 0 {
			return errors.WrapConfig(
				fmt.Errorf("%w: chain entry %d has negative queue capacity", errors.ErrInvalidConfig, i),
				"Config", "Validate", "chain.stages")
		}
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return errors.WrapConfig(
			fmt.Errorf("%w: nats.subject required when nats.url is set", errors.ErrInvalidConfig),
			"Config", "Validate", "nats.subject")
	}
	return nil
}
