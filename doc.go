// Package ghtree synchronizes GitHub repository metadata and recursive
// file trees into a local durable cache.
//
// The package answers "which files exist in repository R at ref B"
// while minimizing API calls: snapshots are served from the cache
// within a freshness window, revalidated with conditional requests
// (ETag / 304) once stale, and rebuilt only when the host reports a
// change. Rate-limit and transient transport failures degrade to the
// last-known-good snapshot instead of failing the caller.
//
// # Architecture
//
// The package is organized around four pieces:
//
//   - Provider: the transport interface to the host API. The concrete
//     implementation in providers/sdk wraps google/go-github and
//     surfaces conditional-request support and rate-limit state.
//   - Build: a pure normalizer converting the host's flat recursive
//     listing into a deterministic hierarchical TreeNode snapshot.
//   - Store: the persistence contract, implemented by the cache
//     package on top of bbolt with compressed, versioned records.
//   - Syncer: the orchestrator deciding fresh / revalidate / rebuild /
//     serve-stale on every request, with per-ref request coalescing.
//
// # Basic usage
//
//	provider, err := sdk.NewSDKProvider(sdk.WithToken(token))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := cache.Open(filepath.Join(cacheDir, "ghtree.db"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	syncer, err := ghtree.NewSyncer(provider, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := syncer.Resolve(ctx, ghtree.RepositoryRef{
//	    Owner: "golang", Name: "go", Ref: "master",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result.Tree.Walk(func(path string, node *ghtree.TreeNode) error {
//	    fmt.Println(path)
//	    return nil
//	})
//
// # Staleness and degradation
//
// Resolve reports degraded results through the Result type rather than
// through errors: ServedStale marks a snapshot returned past its
// freshness window because a fresh fetch was rate limited or failed
// transiently, with StaleReason and RetryAt carrying the details. A
// missing repository or ref is never masked this way; it always fails
// with a not-found error so callers can distinguish "deleted" from
// "temporarily unreachable".
//
// # Errors
//
// All errors are coded errors from github.com/jmgilman/go/errors.
// Convenience predicates (IsNotFound, IsRateLimited) and extractors
// (RetryAt, ConflictPath) cover the common cases.
package ghtree
