package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/push"
	apperrors "github.com/verida/notification-server/pkg/errors"
	"github.com/verida/notification-server/pkg/logger"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeBroker struct {
	mu    sync.Mutex
	msgs  []published
	token pahomqtt.Token
}

func (b *fakeBroker) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if b.token != nil {
		return b.token
	}
	return completedToken(nil)
}

func testSender(broker *fakeBroker, dials *int) *Sender {
	cfg := &config.MQTTConfig{TopicPrefix: "notification/wake/", QoS: 1}
	return newSender(cfg, logger.Nop(), func(context.Context) (publisher, error) {
		if dials != nil {
			*dials++
		}
		return broker, nil
	})
}

func TestSend_PublishesWakeUp(t *testing.T) {
	broker := &fakeBroker{}
	s := testSender(broker, nil)

	err := s.Send(context.Background(), "dev1", push.WakeUp{DID: "did:x:1", Context: "ctxA"})
	require.NoError(t, err)

	require.Len(t, broker.msgs, 1)
	assert.Equal(t, "notification/wake/dev1", broker.msgs[0].topic)
	assert.Equal(t, byte(1), broker.msgs[0].qos)

	var got push.WakeUp
	require.NoError(t, json.Unmarshal(broker.msgs[0].payload, &got))
	assert.Equal(t, push.WakeUp{DID: "did:x:1", Context: "ctxA"}, got)
}

func TestSend_ConnectsOnce(t *testing.T) {
	broker := &fakeBroker{}
	dials := 0
	s := testSender(broker, &dials)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Send(context.Background(), "dev1", push.WakeUp{DID: "d", Context: "c"}))
	}
	assert.Equal(t, 1, dials)
}

func TestSend_InvalidToken(t *testing.T) {
	s := testSender(&fakeBroker{}, nil)

	for _, tok := range []string{"", "a/b", "dev+", "#"} {
		err := s.Send(context.Background(), tok, push.WakeUp{DID: "d", Context: "c"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidToken, "token %q", tok)
	}
}

func TestSend_PublishError(t *testing.T) {
	broker := &fakeBroker{token: completedToken(errors.New("not connected"))}
	s := testSender(broker, nil)

	err := s.Send(context.Background(), "dev1", push.WakeUp{DID: "d", Context: "c"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestSend_ContextTimeout(t *testing.T) {
	broker := &fakeBroker{token: &fakeToken{done: make(chan struct{})}}
	s := testSender(broker, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, "dev1", push.WakeUp{DID: "d", Context: "c"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_NeverConnected(t *testing.T) {
	s := testSender(&fakeBroker{}, nil)
	assert.NoError(t, s.Close())
}
