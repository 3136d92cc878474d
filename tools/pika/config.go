package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/maxpert/publist/publishlist"
)

type Config struct {
	// Connection
	Host           string
	Secret         string
	RequestTimeout time.Duration

	// Run options
	Threads        int
	Batches        int
	Duration       time.Duration
	BatchSize      int
	Users          int
	Resources      int
	ResourcePrefix string
	Policy         string

	// Retry
	MaxRetries int

	// Verify options
	Verify        bool
	VerifySamples int
	VerifyTimeout time.Duration
}

// DefaultConfig returns the flag defaults
func DefaultConfig() *Config {
	return &Config{
		Host:           "http://127.0.0.1:8080/admin",
		RequestTimeout: 10 * time.Second,
		Threads:        4,
		Duration:       10 * time.Second,
		BatchSize:      100,
		Users:          50,
		Resources:      1000,
		ResourcePrefix: "/sites/pika/",
		Policy:         "all_users",
		MaxRetries:     3,
		VerifySamples:  20,
		VerifyTimeout:  time.Minute,
	}
}

func (c *Config) Validate() error {
	c.Host = strings.TrimRight(strings.TrimSpace(c.Host), "/")
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if _, err := url.ParseRequestURI(c.Host); err != nil {
		return fmt.Errorf("invalid host %q: %w", c.Host, err)
	}

	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}
	if c.Batches < 0 {
		return fmt.Errorf("batches must be non-negative")
	}
	if c.Batches == 0 && c.Duration <= 0 {
		return fmt.Errorf("either batches or duration must be set")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be at least 1")
	}
	if c.Users < 1 || c.Resources < 1 {
		return fmt.Errorf("users and resources must be at least 1")
	}
	if _, err := publishlist.PolicyByName(c.Policy); err != nil {
		return err
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be non-negative")
	}
	if c.VerifySamples < 0 {
		return fmt.Errorf("verify-samples must be non-negative")
	}
	if c.RequestTimeout <= 0 || c.VerifyTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
