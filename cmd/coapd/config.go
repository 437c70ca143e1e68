// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import "time"

// Config holds the coapd daemon's environment-driven configuration.
type Config struct {
	// Observability
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"     envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"    envDefault:"json"`

	// Endpoint
	ListenAddress          string `env:"LISTEN_ADDRESS"            envDefault:":5683"`
	MaxRetransmit          int    `env:"MAX_RETRANSMIT"            envDefault:"4"`
	ResponseTimeoutSeconds int64  `env:"RESPONSE_TIMEOUT_SECONDS"  envDefault:"2"`
	TicksPerSecond         int64  `env:"TICKS_PER_SECOND"          envDefault:"1000"`
	MaxPDUSize             int    `env:"MAX_PDU_SIZE"              envDefault:"1152"`
	MaxNodes               int    `env:"MAX_NODES"                 envDefault:"0"`
	SocketReadBuffer       int    `env:"SOCKET_READ_BUFFER"        envDefault:"1048576"`
	SocketWriteBuffer      int    `env:"SOCKET_WRITE_BUFFER"       envDefault:"1048576"`

	// Rate Limiting
	RateLimitCapacity int64 `env:"RATE_LIMIT_CAPACITY" envDefault:"0"` // 0 disables
	RateLimitRefill   int64 `env:"RATE_LIMIT_REFILL"   envDefault:"0"`
	RateLimitMaxPeers int   `env:"RATE_LIMIT_MAX_PEERS" envDefault:"10000"`

	// Circuit Breaker
	BreakerMaxFailures      int           `env:"BREAKER_MAX_FAILURES"       envDefault:"3"`
	BreakerResetTimeout     time.Duration `env:"BREAKER_RESET_TIMEOUT"      envDefault:"10s"`
	BreakerSuccessThreshold int           `env:"BREAKER_SUCCESS_THRESHOLD"  envDefault:"2"`

	// Event loop
	TickInterval    time.Duration `env:"TICK_INTERVAL"     envDefault:"100ms"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"30s"`
}
