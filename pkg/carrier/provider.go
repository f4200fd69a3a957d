package carrier

import (
	"context"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Config is the resolved carrier connection configuration. Immutable value;
// replaced wholesale on cache refresh.
type Config struct {
	Enabled bool
	BaseURL string
	APIKey  string
}

// Settings is the persisted carrier settings record, the primary
// configuration tier. Absence of a record is not an error.
type Settings struct {
	Active     bool
	SandboxURL string
	SandboxKey string
	ProdURL    string
	ProdKey    string
}

// SettingsSource reads the persisted carrier settings record.
// A nil record with a nil error means no settings exist.
type SettingsSource interface {
	CarrierSettings(ctx context.Context) (*Settings, error)
}

// StaticConfig is the fallback configuration tier, taken from environment
// variables at process start.
type StaticConfig struct {
	BaseURL string
	APIKey  string
}

// DefaultConfigTTL bounds how stale a cached carrier configuration may be.
const DefaultConfigTTL = 5 * time.Minute

// Provider resolves carrier configuration from the settings record with a
// static fallback, caching the result for a bounded time. One instance is
// constructed per process and shared by everything that talks to the carrier.
//
// Resolution never fails the caller: a settings-store outage is logged and
// treated as a cache miss against the static tier.
type Provider struct {
	source  SettingsSource
	static  StaticConfig
	sandbox bool
	ttl     time.Duration
	logger  *otelzap.Logger

	now func() time.Time // injectable for tests

	mu        sync.Mutex
	cached    Config
	fetchedAt time.Time
}

// NewProvider creates a config provider. source may be nil when no settings
// store is wired; resolution then always uses the static tier.
func NewProvider(source SettingsSource, static StaticConfig, sandbox bool, ttl time.Duration, logger *otelzap.Logger) *Provider {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &Provider{
		source:  source,
		static:  static,
		sandbox: sandbox,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the provider's time source. Used in tests to step
// through the cache TTL without sleeping.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Resolve returns the current carrier configuration. Within the TTL the
// cached value is returned unconditionally, even if the underlying settings
// have changed; staleness is traded for settings-store call volume.
func (p *Provider) Resolve(ctx context.Context) Config {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.fetchedAt.IsZero() && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.cached
	}

	p.cached = p.resolve(ctx)
	p.fetchedAt = p.now()
	return p.cached
}

func (p *Provider) resolve(ctx context.Context) Config {
	if p.source != nil {
		settings, err := p.source.CarrierSettings(ctx)
		switch {
		case err != nil:
			p.logger.Warn("Carrier settings lookup failed, using static config",
				zap.Error(err),
			)
		case settings != nil && settings.Active:
			cfg := Config{Enabled: true}
			if p.sandbox {
				cfg.BaseURL = settings.SandboxURL
				cfg.APIKey = settings.SandboxKey
			} else {
				cfg.BaseURL = settings.ProdURL
				cfg.APIKey = settings.ProdKey
			}
			return cfg
		}
	}

	return Config{
		Enabled: p.static.APIKey != "",
		BaseURL: p.static.BaseURL,
		APIKey:  p.static.APIKey,
	}
}

// Invalidate drops the cached configuration so the next Resolve re-reads
// the settings record. Used after a settings update is persisted.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchedAt = time.Time{}
}
