package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/npmtok/npmtok/internal/ai"
	"github.com/npmtok/npmtok/internal/config"
	"github.com/npmtok/npmtok/internal/feed"
	"github.com/npmtok/npmtok/internal/github"
	"github.com/npmtok/npmtok/internal/model"
	"github.com/npmtok/npmtok/internal/store"
	"go.uber.org/zap"
)

const (
	defaultFeedSize   = 10
	defaultSearchSize = 24
)

// API handles HTTP requests
type API struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       *store.SQLiteStore
	engine      *feed.Engine
	github      *github.Client
	ai          *ai.Client
	rateLimiter *RateLimiter
}

// NewAPI creates a new API instance
func NewAPI(cfg *config.Config, logger *zap.Logger, st *store.SQLiteStore, engine *feed.Engine, gh *github.Client, aiClient *ai.Client) *API {
	return &API{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		engine:      engine,
		github:      gh,
		ai:          aiClient,
		rateLimiter: NewRateLimiter(float64(cfg.RateLimit.RPS), cfg.RateLimit.Burst),
	}
}

// Close closes the API and its resources
func (a *API) Close() error {
	a.rateLimiter.Close()
	return nil
}

// RegisterRoutes registers the API routes
func (a *API) RegisterRoutes(r chi.Router) {
	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// API routes with rate limiting
	r.Route("/api", func(r chi.Router) {
		r.Use(a.rateLimiter.RateLimit)
		r.Get("/packages", a.getPackages)
		r.Get("/bookmarks", a.getBookmarks)
		r.Post("/bookmarks", a.addBookmark)
		r.Delete("/bookmarks", a.deleteBookmark)
		r.Get("/star", a.checkStar)
		r.Post("/star", a.starRepo)
		r.Delete("/star", a.unstarRepo)
		r.Get("/readme", a.getReadme)
		r.Post("/ai", a.aiAction)
	})

	// Admin routes (localhost only)
	r.Route("/admin", func(r chi.Router) {
		r.Use(LocalOnly)
		r.Post("/sessions", a.createSession)
	})
}

// currentUser resolves the Authorization bearer token to a user.
// Returns nil for anonymous or unknown sessions.
func (a *API) currentUser(r *http.Request) *model.User {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" || token == auth {
		return nil
	}

	user, err := a.store.UserByToken(token)
	if err != nil {
		a.logger.Error("failed to resolve session", zap.Error(err))
		return nil
	}
	return user
}

// bookmarkedNames returns the user's bookmark set, or an empty set for
// anonymous visitors. Store failures degrade to an empty set so the
// feed still renders.
func (a *API) bookmarkedNames(user *model.User) map[string]bool {
	if user == nil {
		return map[string]bool{}
	}
	names, err := a.store.BookmarkedNames(user.ID)
	if err != nil {
		a.logger.Error("failed to load bookmark set",
			zap.String("user", user.ID),
			zap.Error(err),
		)
		return map[string]bool{}
	}
	return names
}

// getPackages serves both aggregation modes: search when q is present,
// the randomized feed otherwise.
func (a *API) getPackages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	user := a.currentUser(r)
	bookmarked := a.bookmarkedNames(user)

	if query != "" {
		size := queryInt(r, "size", defaultSearchSize)
		from := queryInt(r, "from", 0)
		result := a.engine.Search(r.Context(), query, size, from, bookmarked)
		a.writeJSON(w, http.StatusOK, result)
		return
	}

	size := queryInt(r, "size", defaultFeedSize)
	searchFrom := queryInt(r, "searchFrom", 0)
	result, err := a.engine.Feed(r.Context(), size, searchFrom, bookmarked)
	if err != nil {
		a.logger.Error("feed request failed", zap.Error(err))
		a.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":          err.Error(),
			"packages":       []model.Package{},
			"nextSearchFrom": searchFrom,
		})
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

// getBookmarks answers a membership check when packageName is given,
// and lists the caller's saved packages otherwise.
func (a *API) getBookmarks(w http.ResponseWriter, r *http.Request) {
	user := a.currentUser(r)
	if user == nil {
		a.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	packageName := r.URL.Query().Get("packageName")
	if packageName == "" {
		packages, err := a.store.ListBookmarks(user.ID)
		if err != nil {
			a.logger.Error("failed to list bookmarks", zap.Error(err))
			a.writeError(w, http.StatusInternalServerError, "Failed to list bookmarks")
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"packages": packages})
		return
	}

	bm, err := a.store.GetBookmark(user.ID, packageName)
	if err != nil {
		a.logger.Error("failed to check bookmark", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "Failed to check bookmark")
		return
	}
	if bm == nil {
		a.writeJSON(w, http.StatusOK, map[string]any{"isBookmarked": false})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"isBookmarked": true, "bookmarkId": bm.ID})
}

// addBookmark saves the posted package snapshot for the caller.
func (a *API) addBookmark(w http.ResponseWriter, r *http.Request) {
	user := a.currentUser(r)
	if user == nil {
		a.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var pkg model.Package
	if err := json.NewDecoder(r.Body).Decode(&pkg); err != nil || pkg.Name == "" {
		a.writeError(w, http.StatusBadRequest, "Package name is required")
		return
	}

	id, err := a.store.AddBookmark(user.ID, &pkg)
	if err != nil {
		a.logger.Error("failed to add bookmark",
			zap.String("package", pkg.Name),
			zap.Error(err),
		)
		a.writeError(w, http.StatusInternalServerError, "Failed to add bookmark")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"success": true, "bookmarkId": id})
}

// deleteBookmark removes the caller's bookmark for one package.
func (a *API) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	user := a.currentUser(r)
	if user == nil {
		a.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body struct {
		PackageName string `json:"packageName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PackageName == "" {
		a.writeError(w, http.StatusBadRequest, "Package name is required")
		return
	}

	if err := a.store.DeleteBookmark(user.ID, body.PackageName); err != nil {
		a.logger.Error("failed to delete bookmark",
			zap.String("package", body.PackageName),
			zap.Error(err),
		)
		a.writeError(w, http.StatusInternalServerError, "Failed to delete bookmark")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// githubUser ensures the caller has a session carrying a delegated
// GitHub token. The two 401 cases are distinguished on purpose: "no
// session" versus "session without an upstream token".
func (a *API) githubUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user := a.currentUser(r)
	if user == nil {
		a.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	if user.GitHubToken == "" {
		a.writeError(w, http.StatusUnauthorized, "GitHub token not found")
		return nil, false
	}
	return user, true
}

func (a *API) checkStar(w http.ResponseWriter, r *http.Request) {
	user, ok := a.githubUser(w, r)
	if !ok {
		return
	}

	owner := r.URL.Query().Get("owner")
	repo := r.URL.Query().Get("repo")
	if owner == "" || repo == "" {
		a.writeError(w, http.StatusBadRequest, "Owner and repo are required")
		return
	}

	starred, err := a.github.IsStarred(r.Context(), user.GitHubToken, owner, repo)
	if err != nil {
		status := http.StatusInternalServerError
		var se *github.StatusError
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		a.writeError(w, status, "Failed to check star status")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"isStarred": starred})
}

func (a *API) starRepo(w http.ResponseWriter, r *http.Request) {
	a.mutateStar(w, r, a.github.Star, "Failed to star repository.")
}

func (a *API) unstarRepo(w http.ResponseWriter, r *http.Request) {
	a.mutateStar(w, r, a.github.Unstar, "Failed to unstar repository")
}

func (a *API) mutateStar(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, token, owner, repo string) error, failMsg string) {
	user, ok := a.githubUser(w, r)
	if !ok {
		return
	}

	var body struct {
		Owner string `json:"owner"`
		Repo  string `json:"repo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Owner == "" || body.Repo == "" {
		a.writeError(w, http.StatusBadRequest, "Owner and repo are required")
		return
	}

	err := action(r.Context(), user.GitHubToken, body.Owner, body.Repo)
	if err == nil {
		a.writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	var se *github.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusNotFound:
			a.writeError(w, http.StatusNotFound, "Repository not found on GitHub or you lack access.")
			return
		case http.StatusUnauthorized, http.StatusForbidden:
			a.writeError(w, se.StatusCode, "Authentication failed. Please try logging out and back in.")
			return
		}
	}
	a.writeError(w, http.StatusInternalServerError, failMsg)
}

func (a *API) getReadme(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	repo := r.URL.Query().Get("repo")
	if owner == "" || repo == "" {
		a.writeError(w, http.StatusBadRequest, "Missing owner or repo")
		return
	}

	content, err := a.github.Readme(r.Context(), owner, repo)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "Failed to fetch README: "+err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"content": content})
}

// aiAction forwards an explain/generate request to the AI client. AI
// provider failures never surface here; only a malformed request gets
// a non-200.
func (a *API) aiAction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action             string `json:"action"`
		PackageName        string `json:"packageName"`
		PackageDescription string `json:"packageDescription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Action == "" || body.PackageName == "" {
		a.writeError(w, http.StatusBadRequest, "Action and package name are required")
		return
	}

	action := ai.Action(body.Action)
	if !action.Valid() {
		a.writeError(w, http.StatusBadRequest, "Invalid action. Use 'explain' or 'generate'")
		return
	}

	response, isDemo := a.ai.Respond(r.Context(), action, body.PackageName, body.PackageDescription)
	a.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": response,
		"isDemo":   isDemo,
	})
}

// createSession mints a session token for a user. Localhost only; this
// is the seam where a hosted identity provider would plug in.
func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID      string `json:"userId"`
		Email       string `json:"email"`
		GitHubToken string `json:"githubToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		a.writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	token := uuid.NewString()
	err := a.store.PutSession(&model.DBSession{
		Token:       token,
		UserID:      body.UserID,
		Email:       body.Email,
		GitHubToken: body.GitHubToken,
	})
	if err != nil {
		a.logger.Error("failed to create session", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
