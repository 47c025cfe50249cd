package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/npmtok/npmtok/internal/ai"
	"github.com/npmtok/npmtok/internal/config"
	"github.com/npmtok/npmtok/internal/feed"
	"github.com/npmtok/npmtok/internal/github"
	"github.com/npmtok/npmtok/internal/model"
	"github.com/npmtok/npmtok/internal/source"
	"github.com/npmtok/npmtok/internal/store"
	"github.com/npmtok/npmtok/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEnv wires the API against httptest upstreams and a temp SQLite
// store.
type testEnv struct {
	router chi.Router
	store  *store.SQLiteStore
}

// newTestEnv builds the full handler stack. upstream serves the npms
// and GitHub fakes; pass nil for a stack whose outbound calls all fail.
func newTestEnv(t *testing.T, upstream http.Handler) *testEnv {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	st, err := store.NewSQLiteStore(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{}
	cfg.RateLimit.RPS = 1000
	cfg.RateLimit.Burst = 1000

	npms := source.NewNpmsClient(srv.URL, srv.Client(), logger)
	registry := source.NewRegistryClient(srv.URL+"/registry", srv.URL+"/downloads", srv.Client(), logger)
	gh := github.NewClient(srv.URL+"/gh", srv.URL+"/raw", "", srv.Client(), nil, logger)
	aiClient := ai.NewClient(srv.URL+"/ai", "gemini-1.5-flash", "", srv.Client(), logger)

	engine := &feed.Engine{
		Primary:     npms,
		Secondary:   registry,
		Transformer: &transform.Transformer{Enricher: gh},
		Logger:      logger,
	}

	api := NewAPI(cfg, logger, st, engine, gh, aiClient)
	t.Cleanup(func() { api.Close() })

	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return &testEnv{router: r, store: st}
}

func (e *testEnv) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedSession(t *testing.T, token, userID, ghToken string) {
	t.Helper()
	require.NoError(t, e.store.PutSession(&model.DBSession{
		Token:       token,
		UserID:      userID,
		GitHubToken: ghToken,
	}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// npmsUpstream serves a two-package catalog through the npms-shaped
// endpoints.
func npmsUpstream() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total": 2, "results": [{"package": {"name": "lodash"}}, {"package": {"name": "express"}}]}`))
	})
	mux.HandleFunc("/v2/package/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/v2/package/")
		w.Write([]byte(`{
			"collected": {
				"metadata": {
					"name": "` + name + `",
					"description": "desc",
					"version": "1.0.0",
					"date": "2025-06-10T00:00:00.000Z",
					"links": {"repository": "https://github.com/owner/` + name + `", "npm": "https://www.npmjs.com/package/` + name + `"}
				},
				"github": {"starsCount": 10, "forksCount": 2},
				"npm": {"downloads": [{"from": "2025-06-01", "to": "2025-06-08", "count": 1000}]}
			}
		}`))
	})
	return mux
}

func TestGetPackagesSearchMode(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())

	rec := env.do(t, http.MethodGet, "/api/packages?q=lodash&size=2&from=0", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res feed.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Packages, 2)
	assert.Equal(t, "lodash", res.Packages[0].Name)
	assert.Equal(t, "express", res.Packages[1].Name)
	assert.Equal(t, 2, res.Total)
	assert.False(t, res.HasMore)
	assert.Equal(t, 2, res.NextFrom)
}

func TestGetPackagesFeedMode(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())

	rec := env.do(t, http.MethodGet, "/api/packages?size=2&searchFrom=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res feed.FeedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Packages, 2)
	assert.Equal(t, 7, res.NextSearchFrom)
}

func TestGetPackagesFeedUpstreamDown(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))

	rec := env.do(t, http.MethodGet, "/api/packages?size=2", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["error"])
}

func TestGetPackagesMarksBookmarks(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())
	env.seedSession(t, "tok", "user-1", "")
	_, err := env.store.AddBookmark("user-1", &model.Package{Name: "lodash"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/packages?q=lodash&size=2&from=0", "tok", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res feed.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Packages, 2)
	assert.True(t, res.Packages[0].IsBookmarked)
	assert.False(t, res.Packages[1].IsBookmarked)
}

func TestBookmarksRequireAuth(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/api/bookmarks?packageName=lodash", ""},
		{http.MethodPost, "/api/bookmarks", `{"name": "lodash"}`},
		{http.MethodDelete, "/api/bookmarks", `{"packageName": "lodash"}`},
	} {
		rec := env.do(t, tc.method, tc.target, "", tc.body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.target)
		assert.Equal(t, "Unauthorized", decodeBody(t, rec)["error"])
	}
}

func TestBookmarkFlow(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())
	env.seedSession(t, "tok", "user-1", "")

	// Not bookmarked yet.
	rec := env.do(t, http.MethodGet, "/api/bookmarks?packageName=lodash", "tok", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["isBookmarked"])

	// Save.
	rec = env.do(t, http.MethodPost, "/api/bookmarks", "tok", `{"name": "lodash", "version": "v1.0.0"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	bookmarkID := body["bookmarkId"].(string)
	assert.NotEmpty(t, bookmarkID)

	// Check again.
	rec = env.do(t, http.MethodGet, "/api/bookmarks?packageName=lodash", "tok", "")
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["isBookmarked"])
	assert.Equal(t, bookmarkID, body["bookmarkId"])

	// List saved packages.
	rec = env.do(t, http.MethodGet, "/api/bookmarks", "tok", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Packages []model.Package `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Packages, 1)
	assert.Equal(t, "lodash", list.Packages[0].Name)

	// Delete.
	rec = env.do(t, http.MethodDelete, "/api/bookmarks", "tok", `{"packageName": "lodash"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	rec = env.do(t, http.MethodGet, "/api/bookmarks?packageName=lodash", "tok", "")
	assert.Equal(t, false, decodeBody(t, rec)["isBookmarked"])
}

func TestAddBookmarkRejectsMissingName(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())
	env.seedSession(t, "tok", "user-1", "")

	rec := env.do(t, http.MethodPost, "/api/bookmarks", "tok", `{"description": "no name"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStarAuthGates(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())
	env.seedSession(t, "no-gh", "user-1", "")

	// No session at all.
	rec := env.do(t, http.MethodGet, "/api/star?owner=o&repo=r", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeBody(t, rec)["error"])

	// Session without a delegated GitHub token.
	rec = env.do(t, http.MethodGet, "/api/star?owner=o&repo=r", "no-gh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "GitHub token not found", decodeBody(t, rec)["error"])
}

func TestStarFlow(t *testing.T) {
	mux := http.NewServeMux()
	starred := false
	mux.HandleFunc("/gh/user/starred/owner/repo", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			starred = true
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			starred = false
			w.WriteHeader(http.StatusNoContent)
		default:
			if starred {
				w.WriteHeader(http.StatusNoContent)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		}
	})
	env := newTestEnv(t, mux)
	env.seedSession(t, "tok", "user-1", "gh-token")

	rec := env.do(t, http.MethodGet, "/api/star?owner=owner&repo=repo", "tok", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["isStarred"])

	rec = env.do(t, http.MethodPost, "/api/star", "tok", `{"owner": "owner", "repo": "repo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	rec = env.do(t, http.MethodGet, "/api/star?owner=owner&repo=repo", "tok", "")
	assert.Equal(t, true, decodeBody(t, rec)["isStarred"])

	rec = env.do(t, http.MethodDelete, "/api/star", "tok", `{"owner": "owner", "repo": "repo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStarMapsUpstreamErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gh/user/starred/ghost/repo", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	env := newTestEnv(t, mux)
	env.seedSession(t, "tok", "user-1", "gh-token")

	rec := env.do(t, http.MethodPost, "/api/star", "tok", `{"owner": "ghost", "repo": "repo"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "not found on GitHub")
}

func TestReadme(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/owner/repo/master/README.md", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# Title"))
	})
	env := newTestEnv(t, mux)

	rec := env.do(t, http.MethodGet, "/api/readme?owner=owner&repo=repo", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Title", decodeBody(t, rec)["content"])

	rec = env.do(t, http.MethodGet, "/api/readme?owner=owner", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAIValidation(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())

	rec := env.do(t, http.MethodPost, "/api/ai", "", `{"packageName": "lodash"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/ai", "", `{"action": "explain"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/ai", "", `{"action": "summon", "packageName": "lodash"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "Invalid action")
}

func TestAIDemoResponse(t *testing.T) {
	env := newTestEnv(t, npmsUpstream())

	rec := env.do(t, http.MethodPost, "/api/ai", "", `{"action": "explain", "packageName": "lodash"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["isDemo"])
	assert.Contains(t, body["response"], "lodash")
}
