package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(apiBase, rawBase string) *Client {
	return NewClient(apiBase, rawBase, "", http.DefaultClient, nil, zap.NewNop())
}

func TestRepoStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/lodash/lodash", r.URL.Path)
		assert.Equal(t, "npmtok", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"stargazers_count": 55000, "forks_count": 7000}`))
	}))
	defer srv.Close()

	stars, forks := testClient(srv.URL, srv.URL).RepoStats(context.Background(), "lodash", "lodash")
	assert.Equal(t, 55000, stars)
	assert.Equal(t, 7000, forks)
}

func TestRepoStatsSendsServerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer server-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"stargazers_count": 1, "forks_count": 1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "server-token", http.DefaultClient, nil, zap.NewNop())
	stars, _ := c.RepoStats(context.Background(), "o", "r")
	assert.Equal(t, 1, stars)
}

func TestRepoStatsDegradesToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	stars, forks := testClient(srv.URL, srv.URL).RepoStats(context.Background(), "ghost", "repo")
	assert.Equal(t, 0, stars)
	assert.Equal(t, 0, forks)
}

func TestIsStarred(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{"starred", http.StatusNoContent, true, false},
		{"not starred", http.StatusNotFound, false, false},
		{"upstream failure", http.StatusForbidden, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/user/starred/owner/repo", r.URL.Path)
				assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			starred, err := testClient(srv.URL, srv.URL).IsStarred(context.Background(), "user-token", "owner", "repo")
			if tt.wantErr {
				require.Error(t, err)
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.status, se.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, starred)
		})
	}
}

func TestStarUsesPut(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := testClient(srv.URL, srv.URL).Star(context.Background(), "user-token", "owner", "repo")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestStarPropagatesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := testClient(srv.URL, srv.URL).Star(context.Background(), "user-token", "owner", "repo")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestUnstar(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := testClient(srv.URL, srv.URL).Unstar(context.Background(), "user-token", "owner", "repo")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestReadmeMaster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/owner/repo/master/README.md", r.URL.Path)
		w.Write([]byte("# Hello"))
	}))
	defer srv.Close()

	content, err := testClient(srv.URL, srv.URL).Readme(context.Background(), "owner", "repo")
	require.NoError(t, err)
	assert.Equal(t, "# Hello", content)
}

func TestReadmeFallsBackToMain(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/owner/repo/main/README.md" {
			w.Write([]byte("# From main"))
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	content, err := testClient(srv.URL, srv.URL).Readme(context.Background(), "owner", "repo")
	require.NoError(t, err)
	assert.Equal(t, "# From main", content)
	assert.Equal(t, []string{"/owner/repo/master/README.md", "/owner/repo/main/README.md"}, paths)
}

func TestReadmeBothBranchesMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, srv.URL).Readme(context.Background(), "owner", "repo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master and main")
}
