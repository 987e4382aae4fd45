package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/push"
	"github.com/verida/notification-server/internal/infrastructure/persistence/memory"
	"github.com/verida/notification-server/pkg/logger"
)

func TestNewServices(t *testing.T) {
	cfg := config.Default()
	cfg.Push.Async = false

	var sent []string
	var outcomes []push.Outcome
	svcs := NewServices(&Dependencies{
		Store: memory.NewStore(),
		Sender: push.SenderFunc(func(_ context.Context, token string, _ push.WakeUp) error {
			sent = append(sent, token)
			return nil
		}),
		Recorder: push.RecorderFunc(func(_ context.Context, o push.Outcome) {
			outcomes = append(outcomes, o)
		}),
	}, cfg, logger.Nop())

	ctx := context.Background()
	require.NoError(t, svcs.Registry.Register(ctx, "did:x:1", "ctxA", "tok1"))
	require.NoError(t, svcs.Relay.Ping(ctx, "did:x:1", "ctxA"))

	assert.Equal(t, []string{"tok1"}, sent)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 1, outcomes[0].Delivered)
}
