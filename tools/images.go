package tools

import (
	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/store"
)

// ImageProviders holds the configured store.ImageProvider implementations
// and the fallback order used when image_generator's caller does not name
// one explicitly (spec §4.3: "Provider is chosen by explicit argument then
// by provider-availability fallback order").
type ImageProviders struct {
	byName map[string]store.ImageProvider
	order  []string
}

// NewImageProviders builds an ImageProviders set from providers in fallback
// priority order (first is tried first when no explicit provider is named).
func NewImageProviders(providers ...store.ImageProvider) *ImageProviders {
	p := &ImageProviders{byName: make(map[string]store.ImageProvider, len(providers))}
	for _, provider := range providers {
		p.byName[provider.Name()] = provider
		p.order = append(p.order, provider.Name())
	}
	return p
}

// Select returns the named provider, or the first provider in fallback
// order if name is empty. Returns ProviderUnavailable if name is set but
// unknown, or if no providers are configured at all.
func (p *ImageProviders) Select(name string) (store.ImageProvider, error) {
	if p == nil || len(p.order) == 0 {
		return nil, errs.New(errs.ProviderUnavailable, "no image providers configured")
	}
	if name == "" {
		return p.byName[p.order[0]], nil
	}
	provider, ok := p.byName[name]
	if !ok {
		return nil, errs.Newf(errs.ProviderUnavailable, "image provider %q is not configured", name)
	}
	return provider, nil
}
