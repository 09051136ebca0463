package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v67/github"
	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/ghtree"
)

// newTestProvider starts an API stub and returns a provider pointed at
// it.
func newTestProvider(t *testing.T, handler http.Handler) *SDKProvider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = baseURL

	provider, err := NewSDKProvider(WithClient(client))
	require.NoError(t, err)
	return provider
}

func TestNewSDKProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     []Option
		wantErr  bool
		wantCode errors.ErrorCode
	}{
		{
			name: "defaults to anonymous client",
		},
		{
			name: "with token",
			opts: []Option{WithToken("ghp_test")},
		},
		{
			name:     "empty token",
			opts:     []Option{WithToken("")},
			wantErr:  true,
			wantCode: errors.CodeInvalidInput,
		},
		{
			name:     "empty base URL",
			opts:     []Option{WithBaseURL("")},
			wantErr:  true,
			wantCode: errors.CodeInvalidInput,
		},
		{
			name:     "nil client",
			opts:     []Option{WithClient(nil)},
			wantErr:  true,
			wantCode: errors.CodeInvalidInput,
		},
		{
			name:     "unparseable base URL",
			opts:     []Option{WithBaseURL("://bad")},
			wantErr:  true,
			wantCode: errors.CodeInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider, err := NewSDKProvider(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, provider)
		})
	}
}

func TestSDKProvider_GetRepository(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/repos/myorg/myrepo", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{
				"id": 42,
				"name": "myrepo",
				"full_name": "myorg/myrepo",
				"default_branch": "trunk",
				"owner": {"login": "myorg"},
				"private": true
			}`)
		})

		provider := newTestProvider(t, mux)
		repo, err := provider.GetRepository(context.Background(), "myorg", "myrepo")
		require.NoError(t, err)

		assert.Equal(t, int64(42), repo.ID)
		assert.Equal(t, "myrepo", repo.Name)
		assert.Equal(t, "myorg/myrepo", repo.FullName)
		assert.Equal(t, "myorg", repo.Owner)
		assert.Equal(t, "trunk", repo.DefaultBranch)
		assert.True(t, repo.Private)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/repos/myorg/missing", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		})

		provider := newTestProvider(t, mux)
		_, err := provider.GetRepository(context.Background(), "myorg", "missing")
		require.Error(t, err)
		assert.True(t, ghtree.IsNotFound(err))
	})
}

func TestSDKProvider_GetTree(t *testing.T) {
	t.Parallel()

	t.Run("full listing with etag validator", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/repos/myorg/myrepo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("recursive"))
			assert.Empty(t, r.Header.Get("If-None-Match"))

			w.Header().Set("ETag", `W/"etag-1"`)
			w.Header().Set("X-Ratelimit-Remaining", "4990")
			fmt.Fprint(w, `{
				"sha": "roottree",
				"truncated": false,
				"tree": [
					{"path": "README.md", "type": "blob", "size": 120, "sha": "b1"},
					{"path": "src", "type": "tree", "sha": "t1"},
					{"path": "src/main.go", "type": "blob", "size": 2048, "sha": "b2"}
				]
			}`)
		})

		provider := newTestProvider(t, mux)
		data, err := provider.GetTree(context.Background(), "myorg", "myrepo", "main", "")
		require.NoError(t, err)

		assert.False(t, data.NotModified)
		assert.Equal(t, `W/"etag-1"`, data.Validator)
		assert.Equal(t, "roottree", data.SHA)
		assert.False(t, data.Truncated)
		assert.Equal(t, 4990, data.RateRemaining)

		require.Len(t, data.Entries, 3)
		assert.Equal(t, ghtree.TreeEntry{Path: "README.md", Kind: ghtree.KindFile, Size: 120, ContentID: "b1"}, data.Entries[0])
		assert.Equal(t, ghtree.KindDirectory, data.Entries[1].Kind)
		assert.Equal(t, ghtree.KindFile, data.Entries[2].Kind)
	})

	t.Run("validator falls back to root sha", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/repos/myorg/myrepo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"sha": "roottree", "tree": []}`)
		})

		provider := newTestProvider(t, mux)
		data, err := provider.GetTree(context.Background(), "myorg", "myrepo", "main", "")
		require.NoError(t, err)
		assert.Equal(t, "roottree", data.Validator)
	})

	t.Run("unchanged tree reports not modified", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/repos/myorg/myrepo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, `W/"etag-1"`, r.Header.Get("If-None-Match"))
			w.WriteHeader(http.StatusNotModified)
		})

		provider := newTestProvider(t, mux)
		data, err := provider.GetTree(context.Background(), "myorg", "myrepo", "main", `W/"etag-1"`)
		require.NoError(t, err)

		assert.True(t, data.NotModified)
		assert.Equal(t, `W/"etag-1"`, data.Validator)
		assert.Empty(t, data.Entries)
	})

	t.Run("truncated listings are flagged", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/repos/myorg/huge/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"sha": "roottree", "truncated": true, "tree": []}`)
		})

		provider := newTestProvider(t, mux)
		data, err := provider.GetTree(context.Background(), "myorg", "huge", "main", "")
		require.NoError(t, err)
		assert.True(t, data.Truncated)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/repos/myorg/missing/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		})

		provider := newTestProvider(t, mux)
		_, err := provider.GetTree(context.Background(), "myorg", "missing", "main", "")
		require.Error(t, err)
		assert.True(t, ghtree.IsNotFound(err))
	})

	t.Run("rate limit carries reset time", func(t *testing.T) {
		t.Parallel()

		reset := time.Now().Add(time.Hour).Truncate(time.Second)
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/myorg/myrepo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Ratelimit-Limit", "60")
			w.Header().Set("X-Ratelimit-Remaining", "0")
			w.Header().Set("X-Ratelimit-Reset", fmt.Sprint(reset.Unix()))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
		})

		provider := newTestProvider(t, mux)
		_, err := provider.GetTree(context.Background(), "myorg", "myrepo", "main", "")
		require.Error(t, err)
		assert.True(t, ghtree.IsRateLimited(err))

		retryAt, ok := ghtree.RetryAt(err)
		require.True(t, ok)
		assert.True(t, reset.Equal(retryAt), "retryAt = %v, want %v", retryAt, reset)
	})

	t.Run("rejects empty coordinates", func(t *testing.T) {
		t.Parallel()

		provider, err := NewSDKProvider()
		require.NoError(t, err)

		_, err = provider.GetTree(context.Background(), "", "repo", "main", "")
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	})
}

func TestSDKProvider_ListRepositories(t *testing.T) {
	t.Parallel()

	t.Run("paginates organization listings", func(t *testing.T) {
		t.Parallel()

		var server *httptest.Server
		mux := http.NewServeMux()
		mux.HandleFunc("/orgs/myorg/repos", func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("page") {
			case "", "1":
				w.Header().Set("Link", fmt.Sprintf(`<%s/orgs/myorg/repos?page=2>; rel="next"`, server.URL))
				fmt.Fprint(w, `[{"id": 1, "name": "alpha", "full_name": "myorg/alpha", "owner": {"login": "myorg"}}]`)
			case "2":
				fmt.Fprint(w, `[{"id": 2, "name": "beta", "full_name": "myorg/beta", "owner": {"login": "myorg"}}]`)
			default:
				t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
			}
		})
		server = httptest.NewServer(mux)
		t.Cleanup(server.Close)

		client := github.NewClient(server.Client())
		baseURL, err := url.Parse(server.URL + "/")
		require.NoError(t, err)
		client.BaseURL = baseURL

		provider, err := NewSDKProvider(WithClient(client))
		require.NoError(t, err)

		repos, err := provider.ListRepositories(context.Background(), "myorg")
		require.NoError(t, err)

		require.Len(t, repos, 2)
		assert.Equal(t, "alpha", repos[0].Name)
		assert.Equal(t, "beta", repos[1].Name)
	})

	t.Run("falls back to user listings", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/orgs/someuser/repos", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		})
		mux.HandleFunc("/users/someuser/repos", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"id": 3, "name": "dotfiles", "full_name": "someuser/dotfiles", "owner": {"login": "someuser"}}]`)
		})

		provider := newTestProvider(t, mux)
		repos, err := provider.ListRepositories(context.Background(), "someuser")
		require.NoError(t, err)

		require.Len(t, repos, 1)
		assert.Equal(t, "dotfiles", repos[0].Name)
	})

	t.Run("missing owner", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		})

		provider := newTestProvider(t, mux)
		_, err := provider.ListRepositories(context.Background(), "nobody")
		require.Error(t, err)
		assert.True(t, ghtree.IsNotFound(err))
	})
}
