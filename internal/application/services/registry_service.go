package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/registry"
	"github.com/verida/notification-server/pkg/errors"
	"github.com/verida/notification-server/pkg/logger"
)

// LookupResult is the token set registered for a (did, context) pair.
// Found is diagnostic: callers must treat an absent record exactly like
// an empty one.
type LookupResult struct {
	Tokens []string
	Found  bool
}

// RegistryService owns read-modify-write access to device records.
type RegistryService struct {
	store       registry.Store
	maxAttempts int
	baseBackoff time.Duration
	timeout     time.Duration
	log         logger.Logger
}

// NewRegistryService creates a new registry service.
func NewRegistryService(store registry.Store, cfg *config.Config, log logger.Logger) *RegistryService {
	return &RegistryService{
		store:       store,
		maxAttempts: cfg.Registry.MaxAttempts,
		baseBackoff: cfg.Registry.BaseBackoff,
		timeout:     cfg.Store.Timeout,
		log:         log,
	}
}

// Register adds token to the pair's device set. Registering a token that is
// already present succeeds and leaves the set unchanged.
func (s *RegistryService) Register(ctx context.Context, did, appContext, token string) error {
	if err := validateDevice(did, appContext, token); err != nil {
		return err
	}

	key := registry.DeriveKey(did, appContext)
	var added bool

	// The record is written even when unchanged so the write is checked
	// against the revision read in the same attempt.
	err := s.mutate(ctx, key, appContext, func(rec *registry.Record) bool {
		added = rec.AddToken(token)
		return true
	})
	if err != nil {
		return err
	}

	s.logFor(ctx).Info("Device registered",
		logger.RegistryKey(key.String()),
		logger.AppContext(appContext),
		logger.DeviceToken(token),
		logger.Bool("token_added", added),
	)
	return nil
}

// Unregister removes token from the pair's device set. It returns false,
// without writing, when the record or the token does not exist. Removing
// the last token leaves an empty record in place.
func (s *RegistryService) Unregister(ctx context.Context, did, appContext, token string) (bool, error) {
	if err := validateDevice(did, appContext, token); err != nil {
		return false, err
	}

	key := registry.DeriveKey(did, appContext)
	var removed bool

	err := s.mutate(ctx, key, appContext, func(rec *registry.Record) bool {
		removed = rec.RemoveToken(token)
		return removed
	})
	if err != nil {
		return false, err
	}

	s.logFor(ctx).Info("Device unregistered",
		logger.RegistryKey(key.String()),
		logger.AppContext(appContext),
		logger.DeviceToken(token),
		logger.Bool("removed", removed),
	)
	return removed, nil
}

// Lookup returns the tokens registered for a pair. An absent record yields
// an empty result with Found false.
func (s *RegistryService) Lookup(ctx context.Context, did, appContext string) (LookupResult, error) {
	if err := validatePair(did, appContext); err != nil {
		return LookupResult{}, err
	}

	key := registry.DeriveKey(did, appContext)
	rec, err := s.get(ctx, key)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return LookupResult{Tokens: []string{}}, nil
		}
		return LookupResult{}, errors.Mark(errors.Wrap(err, "failed to read device record"), errors.ErrStore)
	}

	return LookupResult{Tokens: rec.Tokens(), Found: true}, nil
}

// mutate runs the read-modify-write cycle for key. apply edits the record
// in place and reports whether it must be written. A write rejected for a
// stale revision restarts the whole cycle, up to maxAttempts times.
func (s *RegistryService) mutate(ctx context.Context, key registry.Key, appContext string, apply func(*registry.Record) bool) error {
	log := s.logFor(ctx)
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		rec, err := s.get(ctx, key)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			rec = registry.NewRecord(key, appContext)
		case err != nil:
			log.Error("Failed to read device record",
				logger.RegistryKey(key.String()),
				logger.Error(err),
			)
			return errors.Mark(errors.Wrap(err, "failed to read device record"), errors.ErrStore)
		}

		if !apply(rec) {
			return nil
		}

		_, err = s.put(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errors.ErrRevisionConflict) {
			log.Error("Failed to save device record",
				logger.RegistryKey(key.String()),
				logger.Error(err),
			)
			return errors.Mark(errors.Wrap(err, "failed to save device record"), errors.ErrStore)
		}

		log.Debug("Revision conflict, retrying",
			logger.RegistryKey(key.String()),
			logger.Int("attempt", attempt),
		)
		if attempt < s.maxAttempts {
			if err := s.backoff(ctx, attempt); err != nil {
				return errors.Mark(err, errors.ErrStore)
			}
		}
	}

	log.Warn("Giving up after repeated revision conflicts",
		logger.RegistryKey(key.String()),
		logger.Int("attempts", s.maxAttempts),
	)
	return errors.ErrConcurrencyConflict
}

// logFor prefers the request-scoped logger carried by ctx.
func (s *RegistryService) logFor(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, s.log).With(logger.Component("registry"))
}

func (s *RegistryService) get(ctx context.Context, key registry.Key) (*registry.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Get(ctx, key)
}

func (s *RegistryService) put(ctx context.Context, rec *registry.Record) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Put(ctx, rec)
}

func (s *RegistryService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// backoff sleeps for an exponentially growing, jittered delay.
func (s *RegistryService) backoff(ctx context.Context, attempt int) error {
	if s.baseBackoff <= 0 {
		return ctx.Err()
	}
	delay := s.baseBackoff << (attempt - 1)
	delay += time.Duration(rand.Int63n(int64(s.baseBackoff)))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func validatePair(did, appContext string) error {
	if did == "" {
		return &errors.ValidationError{Field: "did", Message: "No DID specified"}
	}
	if appContext == "" {
		return &errors.ValidationError{Field: "context", Message: "No context specified"}
	}
	return nil
}

func validateDevice(did, appContext, token string) error {
	if err := validatePair(did, appContext); err != nil {
		return err
	}
	if token == "" {
		return &errors.ValidationError{Field: "deviceId", Message: "No deviceId specified"}
	}
	return nil
}
