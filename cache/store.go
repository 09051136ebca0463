package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmgilman/go/errors"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/jmgilman/go/ghtree"
)

var (
	bucketTrees = []byte("trees")
	bucketRepos = []byte("repos")
)

// Store is a durable, self-healing cache of tree snapshots and
// repository listings. It implements ghtree.Store.
type Store struct {
	db     *bbolt.DB
	codec  *codec
	logger *zap.Logger

	mu        sync.RWMutex
	trees     map[string]*ghtree.Record
	repoLists map[string]*ghtree.RepoListRecord
}

// Open opens (or creates) the store at the given database file path.
// Parent directories are created as needed.
//
// Example:
//
//	store, err := cache.Open(filepath.Join(dir, "ghtree.db"),
//	    cache.WithLogger(logger))
func Open(path string, opts ...StoreOption) (*Store, error) {
	options := storeOptions{
		logger: zap.NewNop(),
		level:  defaultCompressionLevel,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to create cache directory")
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to open cache database")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketTrees, bucketRepos} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to initialize cache buckets")
	}

	c, err := newCodec(options.level)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:        db,
		codec:     c,
		logger:    options.logger,
		trees:     make(map[string]*ghtree.Record),
		repoLists: make(map[string]*ghtree.RepoListRecord),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.codec.close()
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "failed to close cache database")
	}
	return nil
}

// GetTree returns the cached record for a key, or nil if absent. A
// persisted record that cannot be decoded is dropped and reported as
// absent. Repeat hits share the identical decoded snapshot.
//
// Records are never mutated after they are handed out: an access bump
// replaces the map entry with a copy of the record, so a read never
// writes through a pointer another caller may hold.
func (s *Store) GetTree(key string) *ghtree.Record {
	now := time.Now()

	s.mu.Lock()
	if rec, ok := s.trees[key]; ok {
		touched := *rec
		touched.LastAccess = now
		s.trees[key] = &touched
		s.mu.Unlock()
		return &touched
	}
	s.mu.Unlock()

	raw := s.getRaw(bucketTrees, key)
	if raw == nil {
		return nil
	}

	var rec ghtree.Record
	if err := s.codec.decode(raw, &rec); err != nil {
		s.logger.Warn("discarding corrupt cache record",
			zap.String("key", key), zap.Error(err))
		s.deleteRaw(bucketTrees, key)
		return nil
	}
	rec.LastAccess = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.trees[key]; ok {
		// Lost a load race; keep the first decoded copy so snapshot
		// identity holds across callers.
		return existing
	}
	s.trees[key] = &rec
	return &rec
}

// PutTree atomically replaces the record for rec.Key. The value is
// persisted before the in-memory copy is swapped.
func (s *Store) PutTree(rec *ghtree.Record) error {
	if rec == nil || rec.Key == "" {
		return errors.New(errors.CodeInvalidInput, "record key cannot be empty")
	}

	data, err := s.codec.encode(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTrees).Put([]byte(rec.Key), data)
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "failed to write cache record")
	}

	s.mu.Lock()
	s.trees[rec.Key] = rec
	s.mu.Unlock()
	return nil
}

// DeleteTree removes the record for a key. Deleting an absent key is
// not an error.
func (s *Store) DeleteTree(key string) error {
	s.mu.Lock()
	delete(s.trees, key)
	s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTrees).Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "failed to delete cache record")
	}
	return nil
}

// GetRepoList returns the cached repository listing for an owner, or
// nil. Like GetTree, an access bump replaces the map entry with a copy
// rather than writing through the shared record.
func (s *Store) GetRepoList(owner string) *ghtree.RepoListRecord {
	now := time.Now()

	s.mu.Lock()
	if rec, ok := s.repoLists[owner]; ok {
		touched := *rec
		touched.LastAccess = now
		s.repoLists[owner] = &touched
		s.mu.Unlock()
		return &touched
	}
	s.mu.Unlock()

	raw := s.getRaw(bucketRepos, owner)
	if raw == nil {
		return nil
	}

	var rec ghtree.RepoListRecord
	if err := s.codec.decode(raw, &rec); err != nil {
		s.logger.Warn("discarding corrupt repository listing",
			zap.String("owner", owner), zap.Error(err))
		s.deleteRaw(bucketRepos, owner)
		return nil
	}
	rec.LastAccess = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.repoLists[owner]; ok {
		return existing
	}
	s.repoLists[owner] = &rec
	return &rec
}

// PutRepoList atomically replaces the listing for rec.Owner.
func (s *Store) PutRepoList(rec *ghtree.RepoListRecord) error {
	if rec == nil || rec.Owner == "" {
		return errors.New(errors.CodeInvalidInput, "record owner cannot be empty")
	}

	data, err := s.codec.encode(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRepos).Put([]byte(rec.Owner), data)
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabase, "failed to write repository listing")
	}

	s.mu.Lock()
	s.repoLists[rec.Owner] = rec
	s.mu.Unlock()
	return nil
}

// Refs returns the refs of all cached tree records for an owner,
// ordered lexicographically by key.
func (s *Store) Refs(owner string) ([]ghtree.RepositoryRef, error) {
	prefix := []byte(owner + "/")
	var refs []ghtree.RepositoryRef

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTrees).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if ref, ok := parseKey(string(k)); ok {
				refs = append(refs, ref)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to scan cache records")
	}
	return refs, nil
}

// Stats reports the number of persisted records and the database size.
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.TreeRecords = int(tx.Bucket(bucketTrees).Stats().KeyN)
		stats.RepoListRecords = int(tx.Bucket(bucketRepos).Stats().KeyN)
		stats.SizeBytes = tx.Size()
		return nil
	})
	if err != nil {
		return Stats{}, errors.Wrap(err, errors.CodeDatabase, "failed to read cache stats")
	}
	return stats, nil
}

// Stats describes the persisted contents of a store.
type Stats struct {
	TreeRecords     int
	RepoListRecords int
	SizeBytes       int64
}

// getRaw reads a raw value, returning nil on absence or read failure.
func (s *Store) getRaw(bucket []byte, key string) []byte {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("cache read failed",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	return raw
}

// deleteRaw drops a raw value, logging on failure.
func (s *Store) deleteRaw(bucket []byte, key string) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
	if err != nil {
		s.logger.Warn("failed to drop cache record",
			zap.String("key", key), zap.Error(err))
	}
}

// parseKey splits a "owner/name@ref" cache key back into a ref.
func parseKey(key string) (ghtree.RepositoryRef, bool) {
	ref, err := ghtree.ParseRepositoryRef(key)
	if err != nil || ref.IsZero() {
		return ghtree.RepositoryRef{}, false
	}
	return ref, true
}
