package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type namedProvider struct {
	name     string
	provider Provider
}

// ChainProvider tries providers in order and returns the first result that is
// not CredentialsNotLoaded.
type ChainProvider struct {
	providers []namedProvider

	mu       sync.Mutex
	last     Credentials
	haveLast bool
	selected string
}

// NewChainProvider returns an empty chain.
func NewChainProvider() *ChainProvider {
	return &ChainProvider{}
}

// Then appends a provider under name.
func (c *ChainProvider) Then(name string, p Provider) *ChainProvider {
	c.providers = append(c.providers, namedProvider{name: name, provider: p})
	return c
}

// ProvideCredentials walks the chain.
func (c *ChainProvider) ProvideCredentials(ctx context.Context) (Credentials, error) {
	var notLoaded []error
	for _, np := range c.providers {
		creds, err := np.provider.ProvideCredentials(ctx)
		if err == nil {
			if creds.ProviderName == "" {
				creds.ProviderName = np.name
			}
			c.mu.Lock()
			c.last, c.haveLast, c.selected = creds, true, np.name
			c.mu.Unlock()
			return creds, nil
		}
		if IsNotLoaded(err) {
			notLoaded = append(notLoaded, fmt.Errorf("%s: %w", np.name, err))
			continue
		}
		return Credentials{}, err
	}
	return Credentials{}, &Error{
		Kind:     CredentialsNotLoaded,
		Provider: "Chain",
		Message:  "no provider in the chain returned credentials",
		Err:      errors.Join(notLoaded...),
	}
}

// Selected returns the name of the provider that last succeeded.
func (c *ChainProvider) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// FallbackOnInterrupt returns the last credentials the chain served.
func (c *ChainProvider) FallbackOnInterrupt() (Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.haveLast
}
