package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/embedmeet/embedmeet/pkg/roomname"
)

// WebSocketConfig holds WebSocket-specific configuration
type WebSocketConfig struct {
	WriteTimeout time.Duration // Timeout for writing messages to WebSocket
	ReadTimeout  time.Duration // Timeout for reading messages from WebSocket (keepalive)
	PingInterval time.Duration // Interval for sending ping messages
}

type Config struct {
	// Server configuration
	HTTPAddr string
	LogLevel string

	// Conferencing server selection
	DefaultServerDomain string

	// Session lifecycle timings
	ConnectTimeout        time.Duration // How long a join may stay unresolved before timing out
	ScriptGraceDelay      time.Duration // Wait after script load before re-checking factory availability
	ContainerPollAttempts int           // Bounded retries waiting for the rendering surface
	ContainerPollDelay    time.Duration // Delay between container poll attempts

	// WebSocket configuration
	WebSocket WebSocketConfig
}

func Load() *Config {
	cfg := Default()

	// Load from environment variables
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if domain := os.Getenv("DEFAULT_SERVER_DOMAIN"); domain != "" {
		cfg.DefaultServerDomain = domain
	}
	if timeout := os.Getenv("CONNECT_TIMEOUT"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.ConnectTimeout = time.Duration(seconds) * time.Second
		}
	}
	if delay := os.Getenv("SCRIPT_GRACE_DELAY"); delay != "" {
		if ms, err := strconv.Atoi(delay); err == nil {
			cfg.ScriptGraceDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if attempts := os.Getenv("CONTAINER_POLL_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.ContainerPollAttempts = n
		}
	}
	if delay := os.Getenv("CONTAINER_POLL_DELAY"); delay != "" {
		if ms, err := strconv.Atoi(delay); err == nil {
			cfg.ContainerPollDelay = time.Duration(ms) * time.Millisecond
		}
	}

	// WebSocket configuration from environment variables (timeout values in seconds)
	if timeout := os.Getenv("WEBSOCKET_WRITE_TIMEOUT"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.WebSocket.WriteTimeout = time.Duration(seconds) * time.Second
		}
	}
	if timeout := os.Getenv("WEBSOCKET_READ_TIMEOUT"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.WebSocket.ReadTimeout = time.Duration(seconds) * time.Second
		}
	}
	if interval := os.Getenv("WEBSOCKET_PING_INTERVAL"); interval != "" {
		if seconds, err := strconv.Atoi(interval); err == nil {
			cfg.WebSocket.PingInterval = time.Duration(seconds) * time.Second
		}
	}

	// Parse command line flags
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP server address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.DefaultServerDomain, "server-domain", cfg.DefaultServerDomain, "Default conferencing server domain")
	flag.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Connection timeout for joining a meeting")
	flag.Parse()

	return cfg
}

// Default returns the built-in configuration. Tests use it directly so they
// never touch the process flag set.
func Default() *Config {
	return &Config{
		HTTPAddr:            ":8080",
		LogLevel:            "info",
		DefaultServerDomain: roomname.Servers[0].Domain,

		ConnectTimeout:        15 * time.Second,
		ScriptGraceDelay:      500 * time.Millisecond,
		ContainerPollAttempts: 20,
		ContainerPollDelay:    250 * time.Millisecond,

		WebSocket: WebSocketConfig{
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  3 * time.Minute,
			PingInterval: 60 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	if _, ok := roomname.ServerByDomain(c.DefaultServerDomain); !ok {
		return ErrUnknownServerDomain
	}
	if c.ConnectTimeout <= 0 {
		return ErrInvalidConnectTimeout
	}
	if c.ContainerPollAttempts <= 0 || c.ContainerPollDelay <= 0 {
		return ErrInvalidContainerPoll
	}
	return nil
}
