package config

import "errors"

var (
	ErrUnknownServerDomain   = errors.New("default server domain is not in the known server list (set DEFAULT_SERVER_DOMAIN env var or --server-domain flag)")
	ErrInvalidConnectTimeout = errors.New("connect timeout must be positive")
	ErrInvalidContainerPoll  = errors.New("container poll attempts and delay must be positive")
)
