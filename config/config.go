// Package config holds the tunables a Session needs that have no wire
// representation — queue sizing and shutdown timeouts, primarily. These are
// loaded the way the mcp-server-go codebase this package was adapted from
// loads its own settings: struct tags read by joeshaw/envdecode.
package config

import (
	"time"

	"github.com/joeshaw/envdecode"
)

// Config carries the ambient, non-protocol settings for a Session.
type Config struct {
	// SendQueueCapacity bounds the internal outbound queue. The queue is
	// "unbounded" per spec.md in the sense that Send never fails due to
	// capacity — a full queue applies backpressure to Send instead.
	SendQueueCapacity int `env:"MSGPACKRPC_SEND_QUEUE_CAPACITY,default=256"`

	// ShutdownDrainTimeout is a suggested default for callers building a
	// context to pass to Session.Shutdown; the Session itself does not
	// enforce a timeout (spec.md §5: "the engine itself imposes no timeout").
	ShutdownDrainTimeout time.Duration `env:"MSGPACKRPC_SHUTDOWN_DRAIN_TIMEOUT,default=30s"`
}

// Default returns the zero-configuration defaults, equivalent to what
// FromEnv would produce with no environment variables set.
func Default() Config {
	return Config{
		SendQueueCapacity:    256,
		ShutdownDrainTimeout: 30 * time.Second,
	}
}

// FromEnv loads a Config from the process environment, falling back to
// Default's values (via the struct tags' own defaults) for anything unset.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
