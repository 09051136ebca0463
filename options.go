package ghtree

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Syncer.
type Option func(*Syncer) error

// WithTTL sets the cache freshness window. Snapshots younger than the
// TTL are returned without any network call. Defaults to DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Syncer) error {
		if ttl <= 0 {
			return newInvalidInputError("ttl", "must be positive")
		}
		s.ttl = ttl
		return nil
	}
}

// WithLogger sets the logger used for warnings and debug output.
// Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Syncer) error {
		if logger == nil {
			return newInvalidInputError("logger", "cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithClock overrides the time source used for freshness decisions.
// This is primarily useful for testing TTL behavior.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) error {
		if now == nil {
			return newInvalidInputError("clock", "cannot be nil")
		}
		s.now = now
		return nil
	}
}

// ResolveOption configures a single Resolve or Repositories call.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	forceRefresh bool
}

// WithForceRefresh fetches unconditionally, ignoring both the TTL
// window and the stored validator, so the caller sees true current
// state. A forced refresh starts its own fetch rather than joining an
// in-flight conditional one.
func WithForceRefresh() ResolveOption {
	return func(opts *resolveOptions) {
		opts.forceRefresh = true
	}
}
