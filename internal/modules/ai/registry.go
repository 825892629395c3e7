package ai

import (
	"strings"

	"github.com/lexiflow/core/internal/config"
	"go.uber.org/zap"
)

type providerEntry struct {
	cfg config.AIProvider
	gen Generator
	err error
}

// Registry holds one generator per configured provider.
type Registry struct {
	defaultID string
	entries   []providerEntry
}

// NewRegistry builds generators for every enabled provider. Providers that
// cannot be built stay listed with their error so status can report them.
func NewRegistry(cfg config.AIConfig, log *zap.Logger) *Registry {
	r := &Registry{defaultID: strings.TrimSpace(cfg.DefaultProvider)}
	for _, p := range cfg.Providers {
		e := providerEntry{cfg: p}
		if p.Enabled {
			e.gen, e.err = newGenerator(p, cfg)
			if e.err != nil {
				log.Warn("AI provider unavailable", zap.String("provider", p.ID), zap.Error(e.err))
			}
		}
		r.entries = append(r.entries, e)
	}
	return r
}

// Register adds a provider backed by an existing generator.
func (r *Registry) Register(p config.AIProvider, gen Generator) {
	p.Enabled = true
	r.entries = append(r.entries, providerEntry{cfg: p, gen: gen})
}

func (r *Registry) usable(e providerEntry) bool {
	return e.cfg.Enabled && e.gen != nil
}

// Select returns the default provider when usable, else the first usable one.
func (r *Registry) Select() (Generator, config.AIProvider, bool) {
	if r == nil {
		return nil, config.AIProvider{}, false
	}
	if r.defaultID != "" {
		for _, e := range r.entries {
			if r.usable(e) && strings.TrimSpace(e.cfg.ID) == r.defaultID {
				return e.gen, e.cfg, true
			}
		}
	}
	for _, e := range r.entries {
		if r.usable(e) {
			return e.gen, e.cfg, true
		}
	}
	return nil, config.AIProvider{}, false
}

// Embedder returns the first usable provider that can produce embeddings,
// preferring the default one.
func (r *Registry) Embedder() (Generator, config.AIProvider, bool) {
	if r == nil {
		return nil, config.AIProvider{}, false
	}
	if gen, p, ok := r.Select(); ok && supportsEmbeddings(p.Type) {
		return gen, p, true
	}
	for _, e := range r.entries {
		if r.usable(e) && supportsEmbeddings(e.cfg.Type) {
			return e.gen, e.cfg, true
		}
	}
	return nil, config.AIProvider{}, false
}

func supportsEmbeddings(providerType string) bool {
	return !isAnthropicProviderType(providerType)
}

// Status describes every configured provider.
func (r *Registry) Status() []ProviderStatus {
	out := make([]ProviderStatus, 0)
	if r == nil {
		return out
	}
	_, selected, ok := r.Select()
	for _, e := range r.entries {
		s := ProviderStatus{
			ID:         e.cfg.ID,
			Name:       e.cfg.Name,
			Type:       normalizeProviderType(e.cfg.Type),
			Model:      e.cfg.DefaultModel,
			Enabled:    e.cfg.Enabled,
			Configured: e.gen != nil,
			Default:    ok && e.cfg.ID == selected.ID,
			Embeddings: supportsEmbeddings(e.cfg.Type),
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		if e.err != nil {
			s.Error = e.err.Error()
		}
		out = append(out, s)
	}
	return out
}
