// Package fcm delivers wake-up notifications through Firebase Cloud
// Messaging as data-only, high priority background messages.
package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/push"
	apperrors "github.com/verida/notification-server/pkg/errors"
	"github.com/verida/notification-server/pkg/lazy"
	"github.com/verida/notification-server/pkg/logger"
)

type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Sender implements push.Sender on FCM. The Firebase app is initialized on
// the first send and shared afterwards.
type Sender struct {
	client *lazy.Value[messenger]
	log    logger.Logger
}

// NewSender creates a sender using the service-account file at
// cfg.CredentialsPath.
func NewSender(cfg *config.PushConfig, log logger.Logger) *Sender {
	log = log.With(logger.Component("fcm"))
	credentials := cfg.CredentialsPath
	return newSender(log, func(ctx context.Context) (messenger, error) {
		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentials))
		if err != nil {
			return nil, fmt.Errorf("initialize firebase app: %w", err)
		}
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize firebase messaging: %w", err)
		}
		log.Info("Firebase messaging initialized")
		return client, nil
	})
}

// newSender builds the client under a context that the first caller's
// cancellation does not reach.
func newSender(log logger.Logger, init func(context.Context) (messenger, error)) *Sender {
	return &Sender{
		client: lazy.New(func(ctx context.Context) (messenger, error) {
			return init(context.WithoutCancel(ctx))
		}),
		log: log,
	}
}

// Send delivers msg to token.
func (s *Sender) Send(ctx context.Context, token string, msg push.WakeUp) error {
	client, err := s.client.Get(ctx)
	if err != nil {
		return err
	}

	if _, err := client.Send(ctx, buildMessage(token, msg)); err != nil {
		if messaging.IsUnregistered(err) || errorutils.IsInvalidArgument(err) {
			return apperrors.Mark(err, apperrors.ErrInvalidToken)
		}
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func buildMessage(token string, msg push.WakeUp) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Data:  msg.Data(),
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-push-type": "background",
				"apns-priority":  "5",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{ContentAvailable: true},
			},
		},
	}
}
