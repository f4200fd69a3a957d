package carrier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cartline/shipping/pkg/carrier"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type fakeSource struct {
	settings *carrier.Settings
	err      error
	calls    int
}

func (f *fakeSource) CarrierSettings(ctx context.Context) (*carrier.Settings, error) {
	f.calls++
	return f.settings, f.err
}

func testLogger() *otelzap.Logger {
	return otelzap.New(zap.NewNop())
}

func TestProvider_ActiveSettingsWin(t *testing.T) {
	source := &fakeSource{settings: &carrier.Settings{
		Active:     true,
		SandboxURL: "https://sandbox.example.test",
		SandboxKey: "sandbox-key",
		ProdURL:    "https://prod.example.test",
		ProdKey:    "prod-key",
	}}
	static := carrier.StaticConfig{BaseURL: "https://static.example.test", APIKey: "static-key"}

	p := carrier.NewProvider(source, static, true, time.Minute, testLogger())
	cfg := p.Resolve(context.Background())

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://sandbox.example.test", cfg.BaseURL)
	assert.Equal(t, "sandbox-key", cfg.APIKey)
}

func TestProvider_ProductionMode(t *testing.T) {
	source := &fakeSource{settings: &carrier.Settings{
		Active:  true,
		ProdURL: "https://prod.example.test",
		ProdKey: "prod-key",
	}}

	p := carrier.NewProvider(source, carrier.StaticConfig{}, false, time.Minute, testLogger())
	cfg := p.Resolve(context.Background())

	assert.Equal(t, "https://prod.example.test", cfg.BaseURL)
	assert.Equal(t, "prod-key", cfg.APIKey)
}

func TestProvider_MissingSettingsFallsBack(t *testing.T) {
	source := &fakeSource{} // no settings record
	static := carrier.StaticConfig{BaseURL: "https://static.example.test", APIKey: "static-key"}

	p := carrier.NewProvider(source, static, true, time.Minute, testLogger())
	cfg := p.Resolve(context.Background())

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://static.example.test", cfg.BaseURL)
	assert.Equal(t, "static-key", cfg.APIKey)
}

func TestProvider_InactiveSettingsFallBack(t *testing.T) {
	source := &fakeSource{settings: &carrier.Settings{Active: false, SandboxKey: "ignored"}}
	static := carrier.StaticConfig{BaseURL: "https://static.example.test", APIKey: "static-key"}

	p := carrier.NewProvider(source, static, true, time.Minute, testLogger())
	cfg := p.Resolve(context.Background())

	assert.Equal(t, "static-key", cfg.APIKey)
}

func TestProvider_SourceFailureNeverFailsCaller(t *testing.T) {
	source := &fakeSource{err: errors.New("settings store down")}
	static := carrier.StaticConfig{BaseURL: "https://static.example.test", APIKey: "static-key"}

	p := carrier.NewProvider(source, static, true, time.Minute, testLogger())
	cfg := p.Resolve(context.Background())

	assert.Equal(t, "static-key", cfg.APIKey)
}

func TestProvider_CachesWithinTTL(t *testing.T) {
	source := &fakeSource{settings: &carrier.Settings{Active: true, SandboxKey: "v1"}}

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	p := carrier.NewProvider(source, carrier.StaticConfig{}, true, 5*time.Minute, testLogger()).
		WithClock(func() time.Time { return clock })

	ctx := context.Background()
	first := p.Resolve(ctx)
	assert.Equal(t, "v1", first.APIKey)
	assert.Equal(t, 1, source.calls)

	// Underlying settings change; within the TTL the stale value is served.
	source.settings = &carrier.Settings{Active: true, SandboxKey: "v2"}
	clock = clock.Add(4 * time.Minute)
	assert.Equal(t, "v1", p.Resolve(ctx).APIKey)
	assert.Equal(t, 1, source.calls)

	// TTL expiry triggers a refresh.
	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, "v2", p.Resolve(ctx).APIKey)
	assert.Equal(t, 2, source.calls)
}

func TestProvider_InvalidateForcesRefresh(t *testing.T) {
	source := &fakeSource{settings: &carrier.Settings{Active: true, SandboxKey: "v1"}}

	p := carrier.NewProvider(source, carrier.StaticConfig{}, true, time.Hour, testLogger())
	ctx := context.Background()

	p.Resolve(ctx)
	source.settings = &carrier.Settings{Active: true, SandboxKey: "v2"}
	p.Invalidate()

	assert.Equal(t, "v2", p.Resolve(ctx).APIKey)
}

func TestProvider_NilSourceUsesStatic(t *testing.T) {
	static := carrier.StaticConfig{BaseURL: "https://static.example.test", APIKey: ""}

	p := carrier.NewProvider(nil, static, true, time.Minute, testLogger())
	cfg := p.Resolve(context.Background())

	assert.False(t, cfg.Enabled) // no key means the integration is off
	assert.Equal(t, "https://static.example.test", cfg.BaseURL)
}
