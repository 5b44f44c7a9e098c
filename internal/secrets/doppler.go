// Package secrets resolves sensitive configuration from Doppler or the environment.
package secrets

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// lookupTimeout bounds a single `doppler secrets get` call
const lookupTimeout = 5 * time.Second

// DopplerClient provides access to secrets stored in Doppler
type DopplerClient struct {
	Project     string
	Config      string
	initialized bool

	// run executes the CLI; replaced in tests
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewDopplerClient creates a new Doppler client
func NewDopplerClient(project, config string) *DopplerClient {
	return &DopplerClient{
		Project: project,
		Config:  config,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Initialize checks if Doppler CLI is installed
func (d *DopplerClient) Initialize() error {
	if _, err := exec.LookPath("doppler"); err != nil {
		return fmt.Errorf("doppler CLI not found: %w", err)
	}
	d.initialized = true
	return nil
}

// GetSecret retrieves a secret, preferring values injected by `doppler run`
func (d *DopplerClient) GetSecret(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	if !d.initialized {
		return "", fmt.Errorf("doppler client not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	output, err := d.run(ctx, "doppler", "secrets", "get", key,
		"--project", d.Project,
		"--config", d.Config,
		"--plain")
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}

	return strings.TrimSpace(string(output)), nil
}

// GetSecretWithFallback gets a secret from Doppler with a fallback value
func (d *DopplerClient) GetSecretWithFallback(key, fallback string) string {
	value, err := d.GetSecret(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// EnvSource reads secrets straight from the environment
type EnvSource struct{}

// GetSecretWithFallback returns the environment value or the fallback
func (EnvSource) GetSecretWithFallback(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// StaticSource serves secrets from a fixed map
type StaticSource map[string]string

// GetSecretWithFallback returns the mapped value or the fallback
func (s StaticSource) GetSecretWithFallback(key, fallback string) string {
	if value, ok := s[key]; ok && value != "" {
		return value
	}
	return fallback
}
