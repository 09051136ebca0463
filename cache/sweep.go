package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jmgilman/go/errors"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/jmgilman/go/ghtree"
)

// Sweep removes records whose last activity (fetch or read) is older
// than maxAge, along with any record that can no longer be decoded.
// Returns the number of records removed.
//
// Sweep runs out of band; it is never part of the read path.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, errors.New(errors.CodeInvalidInput, "max age must be positive")
	}

	now := time.Now()
	var treeKeys, repoKeys []string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTrees).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			key := string(k)
			if s.treeExpired(key, v, now, maxAge) {
				if err := c.Delete(); err != nil {
					return err
				}
				treeKeys = append(treeKeys, key)
			}
		}

		c = tx.Bucket(bucketRepos).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			owner := string(k)
			if s.repoListExpired(owner, v, now, maxAge) {
				if err := c.Delete(); err != nil {
					return err
				}
				repoKeys = append(repoKeys, owner)
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeDatabase, "cache sweep failed")
	}

	s.mu.Lock()
	for _, key := range treeKeys {
		delete(s.trees, key)
	}
	for _, owner := range repoKeys {
		delete(s.repoLists, owner)
	}
	s.mu.Unlock()

	return len(treeKeys) + len(repoKeys), nil
}

// treeExpired reports whether a persisted tree record is past maxAge.
// The in-memory copy, when loaded, carries the freshest access time;
// records are replaced on access, never mutated, so the captured
// pointer is safe to read outside the lock. Corrupt records always
// expire.
func (s *Store) treeExpired(key string, raw []byte, now time.Time, maxAge time.Duration) bool {
	s.mu.RLock()
	rec, ok := s.trees[key]
	s.mu.RUnlock()
	if ok {
		return expired(rec.FetchedAt, rec.LastAccess, now, maxAge)
	}

	var decoded ghtree.Record
	if err := s.codec.decode(raw, &decoded); err != nil {
		s.logger.Warn("sweeping corrupt cache record",
			zap.String("key", key), zap.Error(err))
		return true
	}
	return expired(decoded.FetchedAt, decoded.LastAccess, now, maxAge)
}

// repoListExpired is the listing-bucket analog of treeExpired.
func (s *Store) repoListExpired(owner string, raw []byte, now time.Time, maxAge time.Duration) bool {
	s.mu.RLock()
	rec, ok := s.repoLists[owner]
	s.mu.RUnlock()
	if ok {
		return expired(rec.FetchedAt, rec.LastAccess, now, maxAge)
	}

	var decoded ghtree.RepoListRecord
	if err := s.codec.decode(raw, &decoded); err != nil {
		s.logger.Warn("sweeping corrupt repository listing",
			zap.String("owner", owner), zap.Error(err))
		return true
	}
	return expired(decoded.FetchedAt, decoded.LastAccess, now, maxAge)
}

func expired(fetchedAt, lastAccess time.Time, now time.Time, maxAge time.Duration) bool {
	activity := fetchedAt
	if lastAccess.After(activity) {
		activity = lastAccess
	}
	return now.Sub(activity) > maxAge
}

// StartGC starts a background collector that sweeps the store at the
// given interval. Returns a function that stops the collector; it is
// safe to call multiple times and blocks until the goroutine exits.
//
// Example:
//
//	stop := store.StartGC(10*time.Minute, 30*24*time.Hour)
//	defer stop()
func (s *Store) StartGC(interval, maxAge time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Sweep(maxAge)
				switch {
				case err != nil:
					s.logger.Warn("cache sweep failed", zap.Error(err))
				case removed > 0:
					s.logger.Debug("cache sweep removed records",
						zap.Int("removed", removed))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
