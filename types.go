package ghtree

import (
	"fmt"
	"strings"
	"time"
)

// EntryKind identifies the kind of a tree entry or node.
type EntryKind string

const (
	// KindFile is a regular file (a blob on the host side).
	KindFile EntryKind = "file"

	// KindDirectory is a directory (a tree on the host side).
	KindDirectory EntryKind = "dir"
)

// RepositoryRef identifies a single repository at a specific ref.
// The ref may be a branch, tag, or commit SHA. RepositoryRef is a value
// type and is never mutated after construction.
type RepositoryRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	Ref   string `json:"ref"`
}

// Key derives the cache key for this ref in the form "owner/name@ref".
func (r RepositoryRef) Key() string {
	return r.Owner + "/" + r.Name + "@" + r.Ref
}

// String returns the same representation as Key.
func (r RepositoryRef) String() string {
	return r.Key()
}

// IsZero reports whether any component of the ref is missing.
func (r RepositoryRef) IsZero() bool {
	return r.Owner == "" || r.Name == "" || r.Ref == ""
}

// ParseRepositoryRef parses a string of the form "owner/name@ref" or
// "owner/name" (empty ref) into a RepositoryRef.
func ParseRepositoryRef(s string) (RepositoryRef, error) {
	rest := s
	ref := ""
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		ref = rest[at+1:]
		rest = rest[:at]
	}

	owner, name, ok := strings.Cut(rest, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepositoryRef{}, newInvalidInputError("repository", fmt.Sprintf("expected owner/name[@ref], got %q", s))
	}

	return RepositoryRef{Owner: owner, Name: name, Ref: ref}, nil
}

// TreeEntry is one filesystem-like unit from a recursive tree listing.
// Path is slash-separated as reported by the host. ContentID is the
// host's content-addressable identifier for the exact blob or tree
// revision; it changes if and only if the content changes.
type TreeEntry struct {
	Path      string    `json:"path"`
	Kind      EntryKind `json:"kind"`
	Size      int64     `json:"size,omitempty"`
	ContentID string    `json:"content_id"`
}

// TreeData is the result of a recursive tree fetch from a provider.
type TreeData struct {
	// NotModified is true when the host reported the tree unchanged
	// relative to the supplied validator (HTTP 304). Entries is empty
	// in that case.
	NotModified bool

	// Entries holds the flat recursive listing.
	Entries []TreeEntry

	// Validator is the opaque token (ETag or root tree SHA) to use for
	// subsequent conditional fetches.
	Validator string

	// SHA is the root tree SHA reported by the host.
	SHA string

	// Truncated is true when the host truncated the listing because the
	// tree exceeded its size limits.
	Truncated bool

	// RateRemaining and RateReset report the host's rate-limit state as
	// observed on this response.
	RateRemaining int
	RateReset     time.Time
}

// RepositoryData contains repository metadata from the provider.
type RepositoryData struct {
	// Identification
	ID       int64  `json:"id"`
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`

	// Metadata
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Fork          bool   `json:"fork"`
	Archived      bool   `json:"archived"`

	// URLs
	CloneURL string `json:"clone_url"`
	HTMLURL  string `json:"html_url"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is one cached tree snapshot plus its freshness metadata.
// Records are owned by the store and replaced wholesale on refresh;
// they are never partially updated.
type Record struct {
	Key        string        `json:"key"`
	Ref        RepositoryRef `json:"ref"`
	Snapshot   *TreeNode     `json:"snapshot"`
	Validator  string        `json:"validator"`
	FetchedAt  time.Time     `json:"fetched_at"`
	LastAccess time.Time     `json:"last_access"`
	TTL        time.Duration `json:"ttl"`
}

// RepoListRecord is one cached account repository listing.
type RepoListRecord struct {
	Owner        string            `json:"owner"`
	Repositories []*RepositoryData `json:"repositories"`
	FetchedAt    time.Time         `json:"fetched_at"`
	LastAccess   time.Time         `json:"last_access"`
}

// Result is the outcome of a successful Resolve call.
type Result struct {
	// Tree is the root of the resolved snapshot.
	Tree *TreeNode

	// NotModified is true when the host confirmed the cached snapshot
	// unchanged (conditional revalidation hit).
	NotModified bool

	// ServedStale is true when a fresh fetch failed transiently and the
	// previous snapshot was returned instead. StaleReason carries the
	// underlying failure and RetryAt the earliest useful retry time, if
	// the host reported one.
	ServedStale bool
	StaleReason error
	RetryAt     time.Time
}
