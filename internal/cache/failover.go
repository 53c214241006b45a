package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// FailoverStore serves from a primary Store and falls back to a secondary
// one when the primary is unreachable. Writes that fail over land only in
// the fallback; the fallback therefore also absorbs reads after a primary
// outage, which keeps the location view available at reduced freshness.
type FailoverStore struct {
	primary  Store
	fallback Store
	log      zerolog.Logger
}

// NewFailoverStore wraps primary with fallback. A nil primary (e.g. Redis
// unreachable at startup) degrades to fallback-only operation.
func NewFailoverStore(primary, fallback Store, log zerolog.Logger) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback, log: log}
}

var _ Store = (*FailoverStore)(nil)

// Set writes to the primary, falling back on infrastructure errors.
func (s *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.primary != nil {
		err := s.primary.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		s.logFailover("set", key, err)
	}
	return s.fallback.Set(ctx, key, value, ttl)
}

// Get reads from the primary, falling back on infrastructure errors.
// A primary ErrMiss is authoritative and does not consult the fallback.
func (s *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.primary != nil {
		data, err := s.primary.Get(ctx, key)
		if err == nil || errors.Is(err, ErrMiss) {
			return data, err
		}
		s.logFailover("get", key, err)
	}
	return s.fallback.Get(ctx, key)
}

// Delete removes key from both stores so a later failover cannot resurrect it.
func (s *FailoverStore) Delete(ctx context.Context, key string) error {
	var primaryErr error
	if s.primary != nil {
		if err := s.primary.Delete(ctx, key); err != nil {
			s.logFailover("delete", key, err)
			primaryErr = err
		}
	}
	if err := s.fallback.Delete(ctx, key); err != nil {
		return err
	}
	if s.primary == nil {
		return nil
	}
	return primaryErr
}

// KeysWithPrefix lists keys from the primary, falling back on error.
func (s *FailoverStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	if s.primary != nil {
		keys, err := s.primary.KeysWithPrefix(ctx, prefix)
		if err == nil {
			return keys, nil
		}
		s.logFailover("keys", prefix, err)
	}
	return s.fallback.KeysWithPrefix(ctx, prefix)
}

func (s *FailoverStore) logFailover(op, key string, err error) {
	s.log.Warn().Str("op", op).Str("key", key).Err(err).Msg("cache primary unavailable, using fallback")
}
