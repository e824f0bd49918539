package core

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mfreeman451/clientradar/pkg/notifications"
)

// buildChannels creates the configured notification channels. The database
// channel is always present.
func (s *Server) buildChannels() ([]notifications.Channel, error) {
	cfg := s.config.Notifications

	channels := []notifications.Channel{notifications.DatabaseChannel{}}

	for i := range cfg.Webhooks {
		ch, err := notifications.NewWebhookChannel(&cfg.Webhooks[i], nil)
		if err != nil {
			return nil, err
		}

		channels = append(channels, ch)
	}

	for i := range cfg.Shoutrrr {
		ch, err := notifications.NewShoutrrrChannel(&cfg.Shoutrrr[i])
		if err != nil {
			return nil, err
		}

		channels = append(channels, ch)
	}

	if cfg.NATS != nil && cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("clientradar"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}

		s.addCloser(func() error {
			return nc.Drain()
		})

		channels = append(channels, notifications.NewNATSChannel(nc, cfg.NATS.Subject))
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}

	s.logger.Info("notification channels configured", "channels", names)

	return channels, nil
}
