package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/KianaMei/genqueue/internal/domain"
)

// Config describes one configured provider backend.
type Config struct {
	ID       string
	Type     Type
	Enabled  bool
	Endpoint string
	APIKey   string
}

// Registry resolves provider ids to their configuration, adapter and
// credential. Stored credentials come from the credential repository;
// config-level keys act as the bootstrap default.
type Registry struct {
	configs     map[string]Config
	adapters    map[Type]Adapter
	credentials domain.CredentialRepository
}

// NewRegistry builds a registry over a fixed set of provider configs.
func NewRegistry(configs []Config, adapters map[Type]Adapter, credentials domain.CredentialRepository) *Registry {
	byID := make(map[string]Config, len(configs))
	for _, cfg := range configs {
		byID[cfg.ID] = cfg
	}
	return &Registry{configs: byID, adapters: adapters, credentials: credentials}
}

// Resolve returns the config and adapter for a provider id.
func (r *Registry) Resolve(providerID string) (Config, Adapter, error) {
	cfg, ok := r.configs[providerID]
	if !ok {
		return Config{}, nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, providerID)
	}
	if !cfg.Enabled {
		return Config{}, nil, fmt.Errorf("%w: %q", domain.ErrProviderDisabled, providerID)
	}
	adapter, ok := r.adapters[cfg.Type]
	if !ok {
		return Config{}, nil, fmt.Errorf("%w: no adapter for type %q", domain.ErrUnknownProvider, cfg.Type)
	}
	return cfg, adapter, nil
}

// ResolveCredential picks the API key for a request. A non-empty
// request-scoped key wins; an empty one never shadows the stored or
// configured key.
func (r *Registry) ResolveCredential(ctx context.Context, providerID, requestKey string) (string, error) {
	if key := strings.TrimSpace(requestKey); key != "" {
		return key, nil
	}
	if r.credentials != nil {
		stored, err := r.credentials.Get(ctx, providerID)
		if err != nil {
			return "", fmt.Errorf("load stored credential: %w", err)
		}
		if stored != "" {
			return stored, nil
		}
	}
	if cfg, ok := r.configs[providerID]; ok {
		return strings.TrimSpace(cfg.APIKey), nil
	}
	return "", nil
}
