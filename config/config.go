// Package config loads router configuration from the environment and
// from a TOML realm manifest, with optional live reloading of the
// manifest file.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Env is the process-level configuration, populated from WAMPKIT_*
// environment variables.
type Env struct {
	// ListenAddr is the websocket listen address.
	ListenAddr string `env:"WAMPKIT_LISTEN_ADDR,default=:9277"`

	// RealmsFile points at the TOML realm manifest. Empty means no
	// manifest; realms must be added programmatically or auto-created.
	RealmsFile string `env:"WAMPKIT_REALMS_FILE"`

	// WatchRealms reloads the manifest when the file changes.
	WatchRealms bool `env:"WAMPKIT_WATCH_REALMS,default=false"`

	// AutoRealm creates realms on first HELLO instead of aborting.
	AutoRealm bool `env:"WAMPKIT_AUTO_REALM,default=false"`

	// SendQueueSize bounds each session's outbound queue.
	SendQueueSize int `env:"WAMPKIT_SEND_QUEUE_SIZE,default=256"`

	// HandshakeTimeout bounds the HELLO-to-WELCOME exchange.
	HandshakeTimeout time.Duration `env:"WAMPKIT_HANDSHAKE_TIMEOUT,default=30s"`

	// RedisAddr enables Redis-backed event history when non-empty;
	// otherwise history is kept in memory when HistoryDepth > 0.
	RedisAddr string `env:"WAMPKIT_REDIS_ADDR"`

	// HistoryDepth is how many events are retained per topic. Zero
	// disables event history.
	HistoryDepth int `env:"WAMPKIT_HISTORY_DEPTH,default=0"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"WAMPKIT_LOG_LEVEL,default=info"`
}

// FromEnv decodes Env from the process environment.
func FromEnv() (*Env, error) {
	var cfg Env
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding environment: %w", err)
	}
	return &cfg, nil
}
