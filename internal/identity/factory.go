package identity

import (
	"fmt"

	"docchat/internal/config"
	"docchat/internal/docchat"
)

// NewIdentityProviderFromConfig creates an IdentityProvider from configuration.
func NewIdentityProviderFromConfig(cfg config.IdentityConfig, clock docchat.Clock) (docchat.IdentityProvider, error) {
	switch cfg.Type {
	case "rest", "":
		return NewRESTProvider(RESTOptions{
			URL:      cfg.URL,
			TokenURL: cfg.TokenURL,
			APIKey:   cfg.APIKey,
		}, clock)
	case "memory":
		return NewMemoryProvider(cfg.Secret, clock)
	default:
		return nil, fmt.Errorf("unsupported identity type: %q", cfg.Type)
	}
}
