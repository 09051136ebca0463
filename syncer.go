package ghtree

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the cache freshness window used when no TTL is
// configured on the Syncer.
const DefaultTTL = 5 * time.Minute

// Syncer orchestrates tree synchronization between the host API and the
// local cache. It decides on every request whether a cached snapshot is
// still valid, revalidates conditionally when it is not, and rebuilds
// the snapshot only when the host reports a change.
//
// Concurrent Resolve calls for the same ref coalesce onto a single
// in-flight fetch; fetches for distinct refs proceed fully in parallel.
// Transient and rate-limit failures are absorbed by serving the
// last-known-good snapshot whenever one exists.
//
// Example:
//
//	provider, err := sdk.NewSDKProvider(sdk.WithToken("ghp_..."))
//	store, err := cache.Open("~/.cache/ghtree/cache.db")
//	syncer, err := ghtree.NewSyncer(provider, store,
//	    ghtree.WithTTL(10*time.Minute))
//
//	result, err := syncer.Resolve(ctx, ghtree.RepositoryRef{
//	    Owner: "myorg", Name: "myrepo", Ref: "main",
//	})
type Syncer struct {
	provider Provider
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
	group    singleflight.Group
}

// NewSyncer creates a syncer using the given provider and store.
// Rate-limit and account state is scoped to the provider instance, so
// multiple accounts or hosts can be synchronized concurrently by
// constructing one syncer per provider.
func NewSyncer(provider Provider, store Store, opts ...Option) (*Syncer, error) {
	if provider == nil {
		return nil, newInvalidInputError("provider", "cannot be nil")
	}
	if store == nil {
		return nil, newInvalidInputError("store", "cannot be nil")
	}

	s := &Syncer{
		provider: provider,
		store:    store,
		ttl:      DefaultTTL,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Resolve returns the tree snapshot for a ref.
//
// Within the TTL window the cached snapshot is returned without any
// network call. Past it, the stored validator is sent with a
// conditional fetch: an unchanged tree only refreshes the record's
// fetch time and returns the existing snapshot, a changed tree is
// re-normalized and replaces the record wholesale. A forced refresh
// always performs an unconditional fetch and never joins an in-flight
// conditional one.
//
// Rate-limit and transient transport failures degrade to the previous
// snapshot (even an expired one) with Result.ServedStale set; a missing
// repository or ref always fails with a not-found error and is never
// served from stale cache.
func (s *Syncer) Resolve(ctx context.Context, ref RepositoryRef, opts ...ResolveOption) (*Result, error) {
	if ref.IsZero() {
		return nil, newInvalidInputError("ref", "owner, name, and ref are all required")
	}

	var options resolveOptions
	for _, opt := range opts {
		opt(&options)
	}

	key := ref.Key()
	prior := s.store.GetTree(key)

	if prior != nil && !options.forceRefresh && s.now().Sub(prior.FetchedAt) < s.ttl {
		return &Result{Tree: prior.Snapshot}, nil
	}

	if options.forceRefresh {
		return s.fetchTree(ctx, ref, prior, "")
	}

	validator := ""
	if prior != nil {
		validator = prior.Validator
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		// Detached from the caller so that abandoning a coalesced
		// resolve does not abort the fetch for other waiters.
		return s.fetchTree(context.WithoutCancel(ctx), ref, prior, validator)
	})

	select {
	case <-ctx.Done():
		return nil, wrapContextErr(ctx.Err(), "resolve")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

// fetchTree performs one fetch-normalize-store cycle for a ref.
func (s *Syncer) fetchTree(ctx context.Context, ref RepositoryRef, prior *Record, validator string) (*Result, error) {
	key := ref.Key()

	data, err := s.provider.GetTree(ctx, ref.Owner, ref.Name, ref.Ref, validator)
	if err != nil {
		return s.degradeTree(key, prior, err)
	}

	now := s.now()

	if data.NotModified && prior != nil {
		// Snapshot unchanged: refresh the TTL window only. The record
		// is still replaced wholesale, sharing the prior snapshot.
		refreshed := *prior
		refreshed.FetchedAt = now
		refreshed.LastAccess = now
		if err := s.store.PutTree(&refreshed); err != nil {
			s.logger.Warn("failed to persist revalidated record",
				zap.String("key", key), zap.Error(err))
		}
		return &Result{Tree: prior.Snapshot, NotModified: true}, nil
	}

	if data.Truncated {
		s.logger.Warn("host truncated tree listing",
			zap.String("key", key))
	}

	root, err := Build(data.Entries)
	if err != nil {
		// Structurally invalid responses propagate; the cache never
		// masks them.
		return nil, err
	}

	newValidator := data.Validator
	if newValidator == "" {
		newValidator = data.SHA
	}
	if prior != nil && prior.Validator != "" && prior.Validator == newValidator {
		s.logger.Debug("full fetch returned unchanged tree",
			zap.String("key", key))
	}

	rec := &Record{
		Key:        key,
		Ref:        ref,
		Snapshot:   root,
		Validator:  newValidator,
		FetchedAt:  now,
		LastAccess: now,
		TTL:        s.ttl,
	}
	if err := s.store.PutTree(rec); err != nil {
		// Persistence failure degrades durability, not availability.
		s.logger.Warn("failed to persist snapshot",
			zap.String("key", key), zap.Error(err))
	}

	s.logger.Debug("tree refreshed",
		zap.String("key", key),
		zap.Int("nodes", root.Count()),
		zap.Int("rate_remaining", data.RateRemaining))

	return &Result{Tree: root}, nil
}

// degradeTree applies the stale-serve policy to a failed tree fetch.
func (s *Syncer) degradeTree(key string, prior *Record, err error) (*Result, error) {
	switch {
	case IsNotFound(err):
		// A vanished repository must not pretend to exist.
		if derr := s.store.DeleteTree(key); derr != nil {
			s.logger.Warn("failed to drop record for missing repository",
				zap.String("key", key), zap.Error(derr))
		}
		return nil, err

	case IsRateLimited(err):
		if prior == nil {
			return nil, err
		}
		retryAt, _ := RetryAt(err)
		s.logger.Warn("serving stale snapshot: rate limited",
			zap.String("key", key), zap.Time("retry_at", retryAt))
		return &Result{
			Tree:        prior.Snapshot,
			ServedStale: true,
			StaleReason: err,
			RetryAt:     retryAt,
		}, nil

	case isTransient(err):
		if prior == nil {
			return nil, err
		}
		s.logger.Warn("serving stale snapshot: transport failure",
			zap.String("key", key), zap.Error(err))
		return &Result{
			Tree:        prior.Snapshot,
			ServedStale: true,
			StaleReason: err,
		}, nil

	default:
		return nil, err
	}
}

// Repositories returns the repositories of an account, served from the
// cache within the TTL window. On a rate-limit or transient failure the
// last cached listing is returned instead, if one exists.
func (s *Syncer) Repositories(ctx context.Context, owner string, opts ...ResolveOption) ([]*RepositoryData, error) {
	if owner == "" {
		return nil, newInvalidInputError("owner", "cannot be empty")
	}

	var options resolveOptions
	for _, opt := range opts {
		opt(&options)
	}

	prior := s.store.GetRepoList(owner)
	if prior != nil && !options.forceRefresh && s.now().Sub(prior.FetchedAt) < s.ttl {
		return prior.Repositories, nil
	}

	if options.forceRefresh {
		return s.fetchRepoList(ctx, owner, prior)
	}

	ch := s.group.DoChan("repos:"+owner, func() (interface{}, error) {
		return s.fetchRepoList(context.WithoutCancel(ctx), owner, prior)
	})

	select {
	case <-ctx.Done():
		return nil, wrapContextErr(ctx.Err(), "listing")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*RepositoryData), nil
	}
}

// fetchRepoList performs one list-and-store cycle for an account.
func (s *Syncer) fetchRepoList(ctx context.Context, owner string, prior *RepoListRecord) ([]*RepositoryData, error) {
	repos, err := s.provider.ListRepositories(ctx, owner)
	if err != nil {
		if prior != nil && (IsRateLimited(err) || isTransient(err)) {
			s.logger.Warn("serving stale repository listing",
				zap.String("owner", owner), zap.Error(err))
			return prior.Repositories, nil
		}
		return nil, err
	}

	now := s.now()
	rec := &RepoListRecord{
		Owner:        owner,
		Repositories: repos,
		FetchedAt:    now,
		LastAccess:   now,
	}
	if err := s.store.PutRepoList(rec); err != nil {
		s.logger.Warn("failed to persist repository listing",
			zap.String("owner", owner), zap.Error(err))
	}

	return repos, nil
}

// ResolveDefault resolves a repository at its default branch. The
// default branch is looked up from the host (or the cached repository
// listing) when the ref is not known to the caller.
func (s *Syncer) ResolveDefault(ctx context.Context, owner, name string, opts ...ResolveOption) (*Result, error) {
	if owner == "" || name == "" {
		return nil, newInvalidInputError("repository", "owner and name are required")
	}

	branch := ""
	if prior := s.store.GetRepoList(owner); prior != nil {
		for _, repo := range prior.Repositories {
			if repo.Name == name {
				branch = repo.DefaultBranch
				break
			}
		}
	}
	if branch == "" {
		repo, err := s.provider.GetRepository(ctx, owner, name)
		if err != nil {
			return nil, err
		}
		branch = repo.DefaultBranch
	}
	if branch == "" {
		return nil, newNotFoundError("default branch", owner+"/"+name)
	}

	return s.Resolve(ctx, RepositoryRef{Owner: owner, Name: name, Ref: branch}, opts...)
}

// CachedRefs returns the refs of all locally cached tree snapshots for
// an owner. It never touches the network.
func (s *Syncer) CachedRefs(owner string) ([]RepositoryRef, error) {
	if owner == "" {
		return nil, newInvalidInputError("owner", "cannot be empty")
	}
	return s.store.Refs(owner)
}

// Invalidate drops the cached snapshot for a ref. The next Resolve for
// the ref fetches unconditionally.
func (s *Syncer) Invalidate(ref RepositoryRef) error {
	if ref.IsZero() {
		return newInvalidInputError("ref", "owner, name, and ref are all required")
	}
	return s.store.DeleteTree(ref.Key())
}
