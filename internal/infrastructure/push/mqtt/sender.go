// Package mqtt delivers wake-up notifications over an MQTT broker. Each
// device subscribes to "<prefix>/<device token>"; the payload is the JSON
// wake-up message.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/push"
	apperrors "github.com/verida/notification-server/pkg/errors"
	"github.com/verida/notification-server/pkg/lazy"
	"github.com/verida/notification-server/pkg/logger"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	maxQoS                   = 2
)

// publisher is the subset of pahomqtt.Client the sender uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Sender implements push.Sender by publishing to a per-device topic.
type Sender struct {
	client      *lazy.Value[publisher]
	topicPrefix string
	qos         byte
	log         logger.Logger
}

// NewSender creates a sender that connects to the broker on first use.
func NewSender(cfg *config.MQTTConfig, log logger.Logger) *Sender {
	log = log.With(logger.Component("mqtt"))
	return newSender(cfg, log, func(context.Context) (publisher, error) {
		return connect(cfg, log)
	})
}

func newSender(cfg *config.MQTTConfig, log logger.Logger, dial func(context.Context) (publisher, error)) *Sender {
	qos := cfg.QoS
	if qos > maxQoS {
		qos = maxQoS
	}
	return &Sender{
		client:      lazy.New(dial),
		topicPrefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:         qos,
		log:         log,
	}
}

func connect(cfg *config.MQTTConfig, log logger.Logger) (publisher, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	if strings.HasPrefix(cfg.BrokerURL, "ssl://") || strings.HasPrefix(cfg.BrokerURL, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("MQTT connection lost", logger.Error(err))
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect: timeout after %v", defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	log.Info("Connected to MQTT broker", logger.String("broker", cfg.BrokerURL))
	return client, nil
}

// Send publishes msg to the device's topic and waits for the broker
// acknowledgement or ctx to end.
func (s *Sender) Send(ctx context.Context, token string, msg push.WakeUp) error {
	if token == "" || strings.ContainsAny(token, "+#/") {
		return apperrors.Mark(fmt.Errorf("token %q is not a valid topic segment", token), apperrors.ErrInvalidToken)
	}

	client, err := s.client.Get(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal wake-up: %w", err)
	}

	t := client.Publish(s.topicPrefix+"/"+token, s.qos, false, payload)
	select {
	case <-t.Done():
		if err := t.Error(); err != nil {
			return fmt.Errorf("mqtt publish: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish: %w", ctx.Err())
	}
}

// Close disconnects from the broker if a connection was made.
func (s *Sender) Close() error {
	client, ok := s.client.Peek()
	if !ok {
		return nil
	}
	if c, ok := client.(pahomqtt.Client); ok {
		c.Disconnect(defaultDisconnectQuiesce)
	}
	return nil
}
