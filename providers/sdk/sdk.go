// Package sdk provides a host API provider implementation using the
// go-github SDK.
//
// This package implements the ghtree.Provider interface by wrapping
// github.com/google/go-github/v67, surfacing conditional-request
// support (If-None-Match / 304) and rate-limit state to the syncer.
package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v67/github"
	"github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/ghtree"
)

// SDKProvider implements ghtree.Provider using the go-github SDK.
type SDKProvider struct {
	client *github.Client
}

// NewSDKProvider creates a provider using the GitHub SDK. Without a
// token the provider works anonymously at the host's unauthenticated
// rate limit.
//
// Example with token authentication:
//
//	provider, err := sdk.NewSDKProvider(sdk.WithToken("ghp_..."))
//
// Example against a self-hosted instance:
//
//	provider, err := sdk.NewSDKProvider(
//	    sdk.WithToken(token),
//	    sdk.WithBaseURL("https://github.example.com/"))
func NewSDKProvider(opts ...Option) (*SDKProvider, error) {
	cfg := &config{}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.client == nil {
		cfg.client = github.NewClient(nil)
		if cfg.token != "" {
			cfg.client = cfg.client.WithAuthToken(cfg.token)
		}
	}

	if cfg.baseURL != "" {
		client, err := cfg.client.WithEnterpriseURLs(cfg.baseURL, cfg.baseURL)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid base URL")
		}
		cfg.client = client
	}

	return &SDKProvider{
		client: cfg.client,
	}, nil
}

// config holds configuration for SDKProvider.
type config struct {
	client  *github.Client
	token   string
	baseURL string
}

// Option configures the SDK provider.
type Option func(*config) error

// WithToken sets the bearer credential used for authenticated requests
// and the higher authenticated rate limit.
func WithToken(token string) Option {
	return func(cfg *config) error {
		if token == "" {
			err := errors.New(errors.CodeInvalidInput, "token cannot be empty")
			return errors.WithContext(err, "field", "token")
		}
		cfg.token = token
		return nil
	}
}

// WithBaseURL overrides the API base URL for self-hosted instances.
func WithBaseURL(baseURL string) Option {
	return func(cfg *config) error {
		if baseURL == "" {
			err := errors.New(errors.CodeInvalidInput, "base URL cannot be empty")
			return errors.WithContext(err, "field", "baseURL")
		}
		cfg.baseURL = baseURL
		return nil
	}
}

// WithClient sets a custom GitHub client. This allows full control over
// the HTTP client configuration, authentication, per-call timeouts, and
// other advanced settings.
func WithClient(client *github.Client) Option {
	return func(cfg *config) error {
		if client == nil {
			err := errors.New(errors.CodeInvalidInput, "client cannot be nil")
			return errors.WithContext(err, "field", "client")
		}
		cfg.client = client
		return nil
	}
}

// ListRepositories lists all repositories for the given owner,
// following pagination to exhaustion. Organizations are tried first
// with a fallback to user listings.
func (s *SDKProvider) ListRepositories(ctx context.Context, owner string) ([]*ghtree.RepositoryData, error) {
	var all []*ghtree.RepositoryData
	listOpts := github.ListOptions{PerPage: 100}
	asUser := false

	for {
		var (
			repos []*github.Repository
			resp  *github.Response
			err   error
		)
		if asUser {
			repos, resp, err = s.client.Repositories.ListByUser(ctx, owner, &github.RepositoryListByUserOptions{
				ListOptions: listOpts,
			})
		} else {
			repos, resp, err = s.client.Repositories.ListByOrg(ctx, owner, &github.RepositoryListByOrgOptions{
				ListOptions: listOpts,
			})
		}
		if err != nil {
			// If the owner is not an organization, retry as a user.
			var ghErr *github.ErrorResponse
			if !asUser && len(all) == 0 && errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
				asUser = true
				continue
			}
			return nil, s.wrapError(err, resp, "failed to list repositories")
		}

		for _, repo := range repos {
			all = append(all, convertRepository(repo))
		}

		if resp.NextPage == 0 {
			break
		}
		listOpts.Page = resp.NextPage
	}

	return all, nil
}

// GetRepository retrieves repository metadata.
func (s *SDKProvider) GetRepository(ctx context.Context, owner, repo string) (*ghtree.RepositoryData, error) {
	ghRepo, resp, err := s.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, s.wrapError(err, resp, "failed to get repository")
	}

	return convertRepository(ghRepo), nil
}

// treeResponse mirrors the host's recursive tree listing. The shape is
// validated by the normalizer and never leaks past the provider.
type treeResponse struct {
	SHA       string          `json:"sha"`
	Truncated bool            `json:"truncated"`
	Tree      []treeRespEntry `json:"tree"`
}

type treeRespEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	SHA  string `json:"sha"`
}

// GetTree retrieves the full recursive tree listing for a ref. A
// non-empty validator is attached as If-None-Match; an unchanged tree
// is reported via TreeData.NotModified without transferring the body.
func (s *SDKProvider) GetTree(ctx context.Context, owner, repo, ref, validator string) (*ghtree.TreeData, error) {
	if owner == "" || repo == "" || ref == "" {
		err := errors.New(errors.CodeInvalidInput, "owner, repo, and ref are all required")
		return nil, errors.WithContext(err, "field", "ref")
	}

	u := fmt.Sprintf("repos/%s/%s/git/trees/%s?recursive=1", owner, repo, url.PathEscape(ref))
	req, err := s.client.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build tree request")
	}
	if validator != "" {
		req.Header.Set("If-None-Match", validator)
	}

	var raw treeResponse
	resp, err := s.client.Do(ctx, req, &raw)
	if err != nil {
		// Depending on the transport stack a 304 may surface as an
		// ErrorResponse rather than a bare response.
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotModified {
			return notModified(validator, resp), nil
		}
		return nil, s.wrapError(err, resp, "failed to get tree")
	}
	if resp.StatusCode == http.StatusNotModified {
		return notModified(validator, resp), nil
	}

	data := &ghtree.TreeData{
		Entries:       make([]ghtree.TreeEntry, 0, len(raw.Tree)),
		Validator:     responseValidator(resp, raw.SHA),
		SHA:           raw.SHA,
		Truncated:     raw.Truncated,
		RateRemaining: resp.Rate.Remaining,
		RateReset:     resp.Rate.Reset.Time,
	}
	for _, entry := range raw.Tree {
		kind := ghtree.KindFile
		if entry.Type == "tree" {
			kind = ghtree.KindDirectory
		}
		data.Entries = append(data.Entries, ghtree.TreeEntry{
			Path:      entry.Path,
			Kind:      kind,
			Size:      entry.Size,
			ContentID: entry.SHA,
		})
	}

	return data, nil
}

// notModified builds the 304 result, carrying rate-limit state when the
// response is available.
func notModified(validator string, resp *github.Response) *ghtree.TreeData {
	data := &ghtree.TreeData{
		NotModified: true,
		Validator:   validator,
	}
	if resp != nil {
		data.RateRemaining = resp.Rate.Remaining
		data.RateReset = resp.Rate.Reset.Time
	}
	return data
}

// responseValidator prefers the response ETag over the root tree SHA.
func responseValidator(resp *github.Response, sha string) string {
	if etag := resp.Header.Get("ETag"); etag != "" {
		return etag
	}
	return sha
}

// convertRepository converts a go-github Repository to RepositoryData.
func convertRepository(repo *github.Repository) *ghtree.RepositoryData {
	if repo == nil {
		return nil
	}

	data := &ghtree.RepositoryData{
		ID:            repo.GetID(),
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		Fork:          repo.GetFork(),
		Archived:      repo.GetArchived(),
		CloneURL:      repo.GetCloneURL(),
		HTMLURL:       repo.GetHTMLURL(),
	}

	if owner := repo.GetOwner(); owner != nil {
		data.Owner = owner.GetLogin()
	}

	if createdAt := repo.GetCreatedAt(); !createdAt.IsZero() {
		data.CreatedAt = createdAt.Time
	}
	if updatedAt := repo.GetUpdatedAt(); !updatedAt.IsZero() {
		data.UpdatedAt = updatedAt.Time
	}

	return data
}

// wrapError wraps go-github errors with appropriate error codes.
// Rate-limit responses carry the host's reset time for RetryAt.
func (s *SDKProvider) wrapError(err error, resp *github.Response, message string) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return ghtree.NewRateLimitError(err, rateErr.Rate.Reset.Time)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		resetAt := time.Now()
		if abuseErr.RetryAfter != nil {
			resetAt = resetAt.Add(*abuseErr.RetryAfter)
		}
		return ghtree.NewRateLimitError(err, resetAt)
	}

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		statusCode = ghErr.Response.StatusCode
	}
	if statusCode != 0 {
		return ghtree.WrapHTTPError(err, statusCode, message)
	}

	// Timeouts behave like any other network failure.
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.CodeTimeout, message)
	}
	return errors.Wrap(err, errors.CodeNetwork, message)
}
