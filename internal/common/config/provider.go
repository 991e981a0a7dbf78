// internal/common/config/provider.go
package config

// Provider is the configuration capability the core components depend
// on. Values are resolved tenant-first: a tenant-scoped override wins
// over the platform default for the same path. Hot-reload mechanics are
// the implementation's concern, not the caller's.
type Provider interface {
	Search() SearchConfig
	SLA() SLAConfig
	TenantTier(tenantID string) string
	TenantTierConfig(tenantID string) TierConfig
	TenantIndex(tenantID string) string
	RedoPolicy(tenantID string, source string) (RedoPolicy, bool)
}

type staticProvider struct {
	cfg *Config
}

// NewProvider wraps a loaded Config in the Provider interface.
func NewProvider(cfg *Config) Provider {
	return &staticProvider{cfg: cfg}
}

func (p *staticProvider) Search() SearchConfig {
	return p.cfg.Search
}

func (p *staticProvider) SLA() SLAConfig {
	return p.cfg.SLA
}

func (p *staticProvider) TenantTier(tenantID string) string {
	return p.cfg.Tier(tenantID)
}

func (p *staticProvider) TenantTierConfig(tenantID string) TierConfig {
	return p.cfg.TierConfigFor(tenantID)
}

func (p *staticProvider) TenantIndex(tenantID string) string {
	if t, ok := p.cfg.Tenants[tenantID]; ok && t.Index != "" {
		return t.Index
	}
	return p.cfg.Search.DefaultIndex
}

func (p *staticProvider) RedoPolicy(tenantID string, source string) (RedoPolicy, bool) {
	tier := p.cfg.SLA.Tiers[p.cfg.Tier(tenantID)]
	policy, ok := tier.Redo[source]
	return policy, ok
}
