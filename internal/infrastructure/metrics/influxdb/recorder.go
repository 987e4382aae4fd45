// Package influxdb records relay outcomes as InfluxDB points. Points carry
// counts and timings only; no DID, context or token is ever written.
package influxdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/push"
	"github.com/verida/notification-server/pkg/logger"
)

const (
	measurement           = "relay_ping"
	defaultConnectTimeout = 10 * time.Second
	millisecondsPerSecond = 1000
)

// ErrDisabled is returned by Connect when metrics are switched off.
var ErrDisabled = errors.New("influxdb: disabled in configuration")

type pointWriter interface {
	WritePoint(point *write.Point)
}

// Recorder implements push.Recorder with the non-blocking write API.
type Recorder struct {
	client influxdb2.Client
	writer pointWriter
	flush  func()
	log    logger.Logger
}

var _ push.Recorder = (*Recorder)(nil)

// Connect creates the client, verifies the server with a ping and starts
// draining async write errors into the log.
func Connect(ctx context.Context, cfg *config.MetricsConfig, log logger.Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influxdb server not healthy")
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	r := &Recorder{
		client: client,
		writer: writeAPI,
		flush:  writeAPI.Flush,
		log:    log.With(logger.Component("metrics")),
	}

	go func() {
		for err := range writeAPI.Errors() {
			r.log.Warn("Metrics write failed", logger.Error(err))
		}
	}()

	return r, nil
}

// RecordOutcome writes one point per fan-out.
func (r *Recorder) RecordOutcome(_ context.Context, o push.Outcome) {
	r.writer.WritePoint(newPoint(o, time.Now()))
}

// Close flushes pending points and closes the client.
func (r *Recorder) Close() error {
	if r.flush != nil {
		r.flush()
	}
	if r.client != nil {
		r.client.Close()
	}
	return nil
}

func newPoint(o push.Outcome, ts time.Time) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{
			"lookup_failed": strconv.FormatBool(o.LookupFailed),
			"dropped":       strconv.FormatBool(o.Dropped),
		},
		map[string]interface{}{
			"attempted":      o.Attempted,
			"delivered":      o.Delivered,
			"invalid_tokens": o.InvalidTokens,
			"failed":         o.Failed,
			"duration_ms":    o.Duration.Milliseconds(),
		},
		ts,
	)
}
