package ghtree

import "context"

// Provider defines the transport interface for the host API.
// Implementations issue HTTP requests and surface conditional-request
// support and rate-limit state to callers; they hold no caching logic
// and never retry internally. The Syncer owns retry and staleness
// policy.
//
// All methods return coded errors from the errors library:
// ErrCodeNotFound for a missing repository or ref (never retried),
// ErrCodeRateLimited with a retry_at context field for rate-limit
// exhaustion, and ErrCodeNetwork/ErrCodeTimeout/ErrCodeUnavailable for
// transport failures.
type Provider interface {
	// ListRepositories lists all repositories for the given owner,
	// following pagination to exhaustion. The owner may be an
	// organization or a user.
	ListRepositories(ctx context.Context, owner string) ([]*RepositoryData, error)

	// GetRepository retrieves repository metadata, including the
	// default branch used when a ref is omitted.
	GetRepository(ctx context.Context, owner, repo string) (*RepositoryData, error)

	// GetTree retrieves the full recursive tree listing for a ref.
	// When validator is non-empty it is attached as a conditional
	// request header; an unchanged tree is reported via
	// TreeData.NotModified with no entries transferred.
	GetTree(ctx context.Context, owner, repo, ref, validator string) (*TreeData, error)
}

// Store defines the persistence contract used by the Syncer. Lookups
// return nil for absent records; a corrupt or undecodable persisted
// record is treated as absence, never as an error. Writes replace the
// whole record atomically.
type Store interface {
	// GetTree returns the cached record for a key, or nil.
	GetTree(key string) *Record

	// PutTree atomically replaces the record for rec.Key.
	PutTree(rec *Record) error

	// DeleteTree removes the record for a key. Deleting an absent key
	// is not an error.
	DeleteTree(key string) error

	// GetRepoList returns the cached repository listing for an owner, or nil.
	GetRepoList(owner string) *RepoListRecord

	// PutRepoList atomically replaces the listing for rec.Owner.
	PutRepoList(rec *RepoListRecord) error

	// Refs returns the refs of all cached tree records for an owner,
	// ordered lexicographically by key.
	Refs(owner string) ([]RepositoryRef, error)
}
