package fcm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/push"
	apperrors "github.com/verida/notification-server/pkg/errors"
	"github.com/verida/notification-server/pkg/logger"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []*messaging.Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	if f.err != nil {
		return "", f.err
	}
	return "projects/test/messages/1", nil
}

func TestBuildMessage(t *testing.T) {
	m := buildMessage("dev1", push.WakeUp{DID: "did:x:1", Context: "ctxA"})

	assert.Equal(t, "dev1", m.Token)
	assert.Equal(t, map[string]string{"did": "did:x:1", "context": "ctxA"}, m.Data)
	assert.Nil(t, m.Notification, "wake-ups carry no visible content")
	assert.Equal(t, "high", m.Android.Priority)
	assert.True(t, m.APNS.Payload.Aps.ContentAvailable)
	assert.Equal(t, "background", m.APNS.Headers["apns-push-type"])
}

func TestSend_InitializesOnce(t *testing.T) {
	fake := &fakeMessenger{}
	inits := 0
	s := newSender(logger.Nop(), func(context.Context) (messenger, error) {
		inits++
		return fake, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Send(context.Background(), "dev1", push.WakeUp{DID: "d", Context: "c"}))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inits)
	assert.Len(t, fake.sent, 8)
}

func TestSend_InitFailureIsRetried(t *testing.T) {
	fake := &fakeMessenger{}
	calls := 0
	s := newSender(logger.Nop(), func(context.Context) (messenger, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("credentials unreadable")
		}
		return fake, nil
	})

	require.Error(t, s.Send(context.Background(), "dev1", push.WakeUp{}))
	require.NoError(t, s.Send(context.Background(), "dev1", push.WakeUp{}))
	assert.Equal(t, 2, calls)
}

func TestSend_GenericErrorIsTransient(t *testing.T) {
	fake := &fakeMessenger{err: errors.New("unavailable")}
	s := newSender(logger.Nop(), func(context.Context) (messenger, error) { return fake, nil })

	err := s.Send(context.Background(), "dev1", push.WakeUp{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestNewSender_BadCredentials(t *testing.T) {
	s := NewSender(&config.PushConfig{CredentialsPath: "/nonexistent/firebase.json"}, logger.Nop())

	err := s.Send(context.Background(), "dev1", push.WakeUp{DID: "d", Context: "c"})
	assert.Error(t, err)
}

func TestSend_InitOutlivesFirstCaller(t *testing.T) {
	fake := &fakeMessenger{}
	var initCtx context.Context
	s := newSender(logger.Nop(), func(ctx context.Context) (messenger, error) {
		initCtx = ctx
		return fake, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Send(ctx, "dev1", push.WakeUp{}))
	cancel()

	require.NotNil(t, initCtx)
	assert.NoError(t, initCtx.Err(), "the Firebase app must not be bound to the first request")
	assert.Nil(t, initCtx.Done())
}
