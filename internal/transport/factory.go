package transport

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/drip-mailer/internal/config"
)

// New constructs the configured transport backend.
func New(cfg config.SMTPConfig, logger zerolog.Logger) (Transport, error) {
	backend := normalize(cfg.Backend, config.BackendSMTP)
	switch backend {
	case config.BackendSMTP:
		t := NewSMTPTransportFromConfig(cfg, logger)
		logger.Info().
			Str("backend", backend).
			Bool("implicit_tls", cfg.ImplicitTLS).
			Msg("transport initialised")
		return t, nil
	case config.BackendMock:
		t := NewMockTransport(logger)
		logger.Info().
			Str("backend", backend).
			Msg("transport initialised")
		return t, nil
	default:
		return nil, fmt.Errorf("transport: unsupported backend %q", cfg.Backend)
	}
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
