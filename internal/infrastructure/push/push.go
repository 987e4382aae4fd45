// Package push selects the push provider configured for the relay.
package push

import (
	"context"
	"fmt"

	"github.com/verida/notification-server/config"
	domain "github.com/verida/notification-server/internal/domain/push"
	"github.com/verida/notification-server/internal/infrastructure/push/fcm"
	"github.com/verida/notification-server/internal/infrastructure/push/mqtt"
	"github.com/verida/notification-server/pkg/logger"
)

// Provider is a push.Sender that may hold a connection.
type Provider interface {
	domain.Sender
	Close() error
}

// NewProvider builds the provider named by cfg.Provider. No connection is
// made until the first send.
func NewProvider(cfg *config.PushConfig, log logger.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderFCM:
		return closerless{fcm.NewSender(cfg, log)}, nil
	case config.ProviderMQTT:
		return mqtt.NewSender(&cfg.MQTT, log), nil
	case config.ProviderLog:
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
}

type closerless struct {
	domain.Sender
}

func (closerless) Close() error { return nil }

// LogSender writes each wake-up to the log instead of delivering it.
type LogSender struct {
	log logger.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{log: log.With(logger.Component("push"))}
}

// Send logs the wake-up and always succeeds.
func (s *LogSender) Send(_ context.Context, token string, msg domain.WakeUp) error {
	s.log.Info("Wake-up notification",
		logger.DeviceToken(token),
		logger.AppContext(msg.Context),
	)
	return nil
}

// Close is a no-op.
func (s *LogSender) Close() error { return nil }
