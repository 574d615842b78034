/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string

	JWTSigningKey string
	MetricsBind   string

	// Sweep cadence for the expiry/restore pass. A configuration value,
	// not a correctness property.
	SweepInterval time.Duration

	// Optional YAML registry of display devices; the built-in four-TV
	// seed applies when empty.
	DeviceRegistryPath string

	// Resolution cache + leader election.
	CacheEnabled          bool
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Tracing configuration.
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("HEIMDALL_ENV", "development"),
		HTTPBind:    getEnv("HEIMDALL_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("HEIMDALL_HTTP_PORT", 8080),
		DBBackend:   DatabaseBackend(getEnv("HEIMDALL_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:       getEnv("HEIMDALL_DB_DSN", ""),

		JWTSigningKey: getEnv("HEIMDALL_JWT_SIGNING_KEY", ""),
		MetricsBind:   getEnv("HEIMDALL_METRICS_BIND", "127.0.0.1:9000"),

		SweepInterval:      time.Duration(getEnvInt("HEIMDALL_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		DeviceRegistryPath: getEnv("HEIMDALL_DEVICE_REGISTRY", ""),

		CacheEnabled:          getEnvBool("HEIMDALL_CACHE_ENABLED", false),
		LeaderElectionEnabled: getEnvBool("HEIMDALL_LEADER_ELECTION_ENABLED", false),
		RedisAddr:             getEnv("HEIMDALL_REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("HEIMDALL_REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("HEIMDALL_REDIS_DB", 0),
		InstanceID:            getEnv("HEIMDALL_INSTANCE_ID", ""),

		TracingEnabled:    getEnvBool("HEIMDALL_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("HEIMDALL_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("HEIMDALL_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("HEIMDALL_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("HEIMDALL_JWT_SIGNING_KEY must be provided")
	}

	if cfg.SweepInterval < time.Second {
		return nil, fmt.Errorf("HEIMDALL_SWEEP_INTERVAL_SECONDS must be at least 1")
	}

	if cfg.LeaderElectionEnabled && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("HEIMDALL_REDIS_ADDR is required when leader election is enabled")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
