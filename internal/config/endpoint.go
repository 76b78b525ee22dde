package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/smpn3pacet/jadwal/internal/remote"
)

// EndpointFile holds the runtime endpoint override inside the config
// directory.
const EndpointFile = "endpoint"

// Fallback is the endpoint used when neither an override nor the
// environment provides one. Release builds may set it with
// -ldflags "-X github.com/smpn3pacet/jadwal/internal/config.Fallback=...".
var Fallback = ""

// Layer names where an endpoint came from.
type Layer string

const (
	LayerOverride    Layer = "override"
	LayerEnvironment Layer = "environment"
	LayerFallback    Layer = "fallback"
	LayerNone        Layer = "none"
)

// EndpointResolver picks the remote endpoint from three layers, in
// priority order: a runtime override, the environment default and the
// hardcoded fallback. It is safe for concurrent use and implements
// remote.EndpointSource, so backends see a new override on their next call.
type EndpointResolver struct {
	mu       sync.RWMutex
	override string
	env      string
	fallback string

	// path persists the override; empty keeps it in memory only.
	path string
}

var _ remote.EndpointSource = (*EndpointResolver)(nil)

// NewEndpointResolver creates a resolver. overridePath, when set, is read
// now and written by SetOverride. env is the environment default.
func NewEndpointResolver(overridePath, env, fallback string) (*EndpointResolver, error) {
	r := &EndpointResolver{
		env:      strings.TrimSpace(env),
		fallback: strings.TrimSpace(fallback),
		path:     overridePath,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// ResolverFor builds the resolver for a loaded configuration: the
// override file in the config directory, the configured endpoint as the
// environment layer and the package Fallback.
func ResolverFor(cfg *Config) (*EndpointResolver, error) {
	return NewEndpointResolver(filepath.Join(cfg.Dir, EndpointFile), cfg.Endpoint, Fallback)
}

// Endpoint implements remote.EndpointSource.
func (r *EndpointResolver) Endpoint() string {
	endpoint, _ := r.Resolve()
	return endpoint
}

// Resolve returns the effective endpoint and the layer it came from.
func (r *EndpointResolver) Resolve() (string, Layer) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.override != "":
		return r.override, LayerOverride
	case r.env != "":
		return r.env, LayerEnvironment
	case r.fallback != "":
		return r.fallback, LayerFallback
	}
	return "", LayerNone
}

// Path returns the override file path, or "" when overrides are not
// persisted.
func (r *EndpointResolver) Path() string {
	return r.path
}

// ValidateEndpoint checks that raw is an absolute URL with a host and one
// of the schemes the backends speak.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid endpoint %q: scheme must be http, https, ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", raw)
	}
	return nil
}

// SetOverride sets the runtime override and persists it. An empty value
// clears the override.
func (r *EndpointResolver) SetOverride(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint != "" {
		if err := ValidateEndpoint(endpoint); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path != "" {
		if endpoint == "" {
			if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove endpoint override: %w", err)
			}
		} else {
			if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(r.path, []byte(endpoint+"\n"), 0o644); err != nil {
				return fmt.Errorf("failed to write endpoint override: %w", err)
			}
		}
	}
	r.override = endpoint
	return nil
}

// Reload rereads the override file. A missing file clears the override.
func (r *EndpointResolver) Reload() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read endpoint override: %w", err)
	}
	endpoint := strings.TrimSpace(string(data))
	if endpoint != "" {
		if err := ValidateEndpoint(endpoint); err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}
	}

	r.mu.Lock()
	r.override = endpoint
	r.mu.Unlock()
	return nil
}
