package influxdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/push"
	"github.com/verida/notification-server/pkg/logger"
)

type capturingWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (w *capturingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func fieldMap(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tagMap(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestRecordOutcome(t *testing.T) {
	w := &capturingWriter{}
	r := &Recorder{writer: w, log: logger.Nop()}

	r.RecordOutcome(context.Background(), push.Outcome{
		Attempted:     3,
		Delivered:     1,
		InvalidTokens: 1,
		Failed:        1,
		Duration:      1500 * time.Millisecond,
	})

	require.Len(t, w.points, 1)
	p := w.points[0]
	assert.Equal(t, measurement, p.Name())
	assert.Equal(t, map[string]string{"lookup_failed": "false", "dropped": "false"}, tagMap(p))

	fields := fieldMap(p)
	assert.EqualValues(t, 3, fields["attempted"])
	assert.EqualValues(t, 1, fields["delivered"])
	assert.EqualValues(t, 1, fields["invalid_tokens"])
	assert.EqualValues(t, 1, fields["failed"])
	assert.EqualValues(t, 1500, fields["duration_ms"])
}

func TestRecordOutcome_LookupFailed(t *testing.T) {
	w := &capturingWriter{}
	r := &Recorder{writer: w, log: logger.Nop()}

	r.RecordOutcome(context.Background(), push.Outcome{LookupFailed: true})

	require.Len(t, w.points, 1)
	assert.Equal(t, "true", tagMap(w.points[0])["lookup_failed"])
}

func TestRecordOutcome_Dropped(t *testing.T) {
	w := &capturingWriter{}
	r := &Recorder{writer: w, log: logger.Nop()}

	r.RecordOutcome(context.Background(), push.Outcome{Dropped: true})

	require.Len(t, w.points, 1)
	assert.Equal(t, "true", tagMap(w.points[0])["dropped"])
	assert.EqualValues(t, 0, fieldMap(w.points[0])["attempted"])
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), &config.MetricsConfig{Enabled: false}, logger.Nop())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestClose_WithoutClient(t *testing.T) {
	r := &Recorder{writer: &capturingWriter{}, log: logger.Nop()}
	assert.NoError(t, r.Close())
}
