package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds the HTTP surface settings read from the environment.
type ServerConfig struct {
	APIToken       string        // Bearer token required on every route but /health; empty disables auth
	AllowedOrigins []string      // CORS origins
	StartLimit     int           // POST /runs requests allowed per client per window
	StartWindow    time.Duration // Window of StartLimit
}

// NewServerConfig creates a server configuration from environment variables.
// It reads API_TOKEN, CORS_ALLOWED_ORIGINS (default: localhost),
// RUN_START_LIMIT (default: 6) and RUN_START_WINDOW (default: 1h).
func NewServerConfig() (*ServerConfig, error) {
	origins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if origins == "" {
		origins = "http://localhost:*,http://127.0.0.1:*" // default
	}

	limitStr := os.Getenv("RUN_START_LIMIT")
	if limitStr == "" {
		limitStr = "6" // default
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_START_LIMIT: %v", err)
	}

	windowStr := os.Getenv("RUN_START_WINDOW")
	if windowStr == "" {
		windowStr = "1h" // default
	}
	window, err := time.ParseDuration(windowStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_START_WINDOW: %v", err)
	}

	cfg := &ServerConfig{
		APIToken:       strings.TrimSpace(os.Getenv("API_TOKEN")),
		AllowedOrigins: splitList(origins),
		StartLimit:     limit,
		StartWindow:    window,
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// normalize validates the configuration.
func (c *ServerConfig) normalize() error {
	if c.StartLimit < 1 {
		return fmt.Errorf("RUN_START_LIMIT must be at least 1, got: %d", c.StartLimit)
	}
	if c.StartWindow < time.Second {
		return fmt.Errorf("RUN_START_WINDOW must be at least 1s, got: %s", c.StartWindow)
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
