package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/push"
	"github.com/verida/notification-server/internal/domain/registry"
	"github.com/verida/notification-server/pkg/errors"
	"github.com/verida/notification-server/pkg/logger"
)

// TokenLookup resolves the device tokens registered for a pair.
type TokenLookup interface {
	Lookup(ctx context.Context, did, appContext string) (LookupResult, error)
}

// RelayService fans a wake-up notification out to every device registered
// for a pair. Ping never tells the caller whether any device was found.
type RelayService struct {
	lookup          TokenLookup
	sender          push.Sender
	recorder        push.Recorder
	sendTimeout     time.Duration
	dispatchTimeout time.Duration
	maxConcurrency  int
	async           bool
	log             logger.Logger

	inflight sync.WaitGroup
	slots    *semaphore.Weighted
}

// NewRelayService creates a new relay service. recorder may be nil.
func NewRelayService(
	lookup TokenLookup,
	sender push.Sender,
	recorder push.Recorder,
	cfg *config.Config,
	log logger.Logger,
) *RelayService {
	if recorder == nil {
		recorder = push.RecorderFunc(func(context.Context, push.Outcome) {})
	}
	maxConcurrency := cfg.Push.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	maxInflight := cfg.Push.MaxInflight
	if maxInflight < 1 {
		maxInflight = 1
	}
	return &RelayService{
		lookup:          lookup,
		sender:          sender,
		recorder:        recorder,
		sendTimeout:     cfg.Push.SendTimeout,
		dispatchTimeout: cfg.Push.DispatchTimeout,
		maxConcurrency:  maxConcurrency,
		async:           cfg.Push.Async,
		log:             log,
		slots:           semaphore.NewWeighted(int64(maxInflight)),
	}
}

// Ping wakes every device registered for (did, appContext). The only error
// it returns is a validation error for an empty argument; lookup and
// delivery failures are logged and recorded but never reported.
//
// In async mode Ping returns before the lookup runs, so the caller sees the
// same latency whether or not the pair has devices. Once MaxInflight
// dispatches are running, further pings are dropped and still accepted.
func (s *RelayService) Ping(ctx context.Context, did, appContext string) error {
	if err := validatePair(did, appContext); err != nil {
		return err
	}

	if !s.async {
		s.Dispatch(ctx, did, appContext)
		return nil
	}

	if !s.slots.TryAcquire(1) {
		s.logFor(ctx).Warn("Relay saturated, dropping ping",
			logger.RegistryKey(registry.DeriveKey(did, appContext).String()),
			logger.AppContext(appContext),
		)
		s.recorder.RecordOutcome(ctx, push.Outcome{Dropped: true})
		return nil
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.slots.Release(1)

		dctx := context.WithoutCancel(ctx)
		if s.dispatchTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(dctx, s.dispatchTimeout)
			defer cancel()
		}
		s.Dispatch(dctx, did, appContext)
	}()
	return nil
}

// Dispatch looks up the pair and sends to every token, waiting until each
// send has succeeded or failed. A failed send never stops its siblings.
func (s *RelayService) Dispatch(ctx context.Context, did, appContext string) (outcome push.Outcome) {
	start := time.Now()
	key := registry.DeriveKey(did, appContext)
	log := s.logFor(ctx).With(logger.RegistryKey(key.String()), logger.AppContext(appContext))

	defer func() {
		outcome.Duration = time.Since(start)
		s.recorder.RecordOutcome(ctx, outcome)
		log.Info("Ping dispatched",
			logger.Int("attempted", outcome.Attempted),
			logger.Int("delivered", outcome.Delivered),
			logger.Int("invalid_tokens", outcome.InvalidTokens),
			logger.Int("failed", outcome.Failed),
			logger.Duration("duration", outcome.Duration),
		)
	}()

	result, err := s.lookup.Lookup(ctx, did, appContext)
	if err != nil {
		log.Error("Device lookup failed", logger.Error(err))
		outcome.LookupFailed = true
		return outcome
	}
	if len(result.Tokens) == 0 {
		log.Debug("No devices registered", logger.Bool("found", result.Found))
		return outcome
	}

	msg := push.WakeUp{DID: did, Context: appContext}
	var delivered, invalid, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for _, token := range result.Tokens {
		token := token
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
			defer cancel()

			err := s.sender.Send(sendCtx, token, msg)
			switch {
			case err == nil:
				delivered.Inc()
			case errors.Is(err, errors.ErrInvalidToken):
				invalid.Inc()
				log.Info("Device token rejected by provider",
					logger.DeviceToken(token),
					logger.Error(err),
				)
			default:
				failed.Inc()
				log.Error("Failed to send notification",
					logger.DeviceToken(token),
					logger.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	outcome.Attempted = len(result.Tokens)
	outcome.Delivered = int(delivered.Load())
	outcome.InvalidTokens = int(invalid.Load())
	outcome.Failed = int(failed.Load())
	return outcome
}

// logFor prefers the request-scoped logger carried by ctx.
func (s *RelayService) logFor(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, s.log).With(logger.Component("relay"))
}

// Wait blocks until every asynchronous dispatch has finished or ctx is done.
func (s *RelayService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
