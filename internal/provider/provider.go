// Package provider resolves the outbound adapters once at startup.
package provider

import (
	"fmt"

	"github.com/switchboard-labs/switchboard/internal/config"
	"github.com/switchboard-labs/switchboard/internal/domain"
	"github.com/switchboard-labs/switchboard/internal/provider/relay"
	"github.com/switchboard-labs/switchboard/internal/provider/s3store"
	"github.com/switchboard-labs/switchboard/internal/provider/sandbox"
	"go.uber.org/zap"
)

// Build returns the provider set selected by cfg.Provider. Media storage uses
// S3 whenever a bucket is configured, regardless of the backend.
func Build(cfg *config.Config, logger *zap.Logger) (domain.Providers, error) {
	var p domain.Providers

	switch cfg.Provider {
	case config.ProviderSandbox:
		p = sandbox.NewSet().Providers()
		logger.Info("using sandbox providers")

	case config.ProviderRelay:
		c, err := relay.NewClient(cfg.RelayBaseURL, cfg.RelayAPIKey, cfg.ProviderTimeout, logger)
		if err != nil {
			return p, err
		}
		p = domain.Providers{
			Telephony: c.Telephony(),
			Email:     c.Email(),
			WhatsApp:  c.Messaging(domain.ChannelWhatsApp),
			Line:      c.Messaging(domain.ChannelLine),
			TTS:       c.TTS(),
			Storage:   &sandbox.Storage{},
		}

	default:
		return p, fmt.Errorf("unknown provider: %s (valid options: sandbox, relay)", cfg.Provider)
	}

	if cfg.S3.Enabled() {
		store, err := s3store.New(cfg.S3, logger)
		if err != nil {
			return p, fmt.Errorf("configure S3 storage: %w", err)
		}
		p.Storage = store
	} else if cfg.Provider == config.ProviderRelay {
		logger.Warn("S3_BUCKET not set; voice messages will use sandbox media URLs")
	}
	return p, nil
}
