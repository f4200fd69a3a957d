// Package settings persists the carrier integration settings record.
package settings

import (
	"context"

	"github.com/cartline/shipping/pkg/carrier"
)

// Record is the stored carrier settings row. At most one record exists;
// the config provider reads it as the primary configuration tier.
type Record struct {
	Active     bool   `json:"active"`
	SandboxURL string `json:"sandboxUrl"`
	SandboxKey string `json:"sandboxKey"`
	ProdURL    string `json:"prodUrl"`
	ProdKey    string `json:"prodKey"`
}

// Store reads and writes the carrier settings record.
type Store interface {
	carrier.SettingsSource

	// Save replaces the settings record.
	Save(ctx context.Context, rec Record) error
}

func toCarrier(rec *Record) *carrier.Settings {
	if rec == nil {
		return nil
	}
	return &carrier.Settings{
		Active:     rec.Active,
		SandboxURL: rec.SandboxURL,
		SandboxKey: rec.SandboxKey,
		ProdURL:    rec.ProdURL,
		ProdKey:    rec.ProdKey,
	}
}
