package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestActionValid(t *testing.T) {
	assert.True(t, ActionExplain.Valid())
	assert.True(t, ActionGenerate.Valid())
	assert.False(t, Action("summarize").Valid())
	assert.False(t, Action("").Valid())
}

func TestPrompt(t *testing.T) {
	explain := Prompt(ActionExplain, "lodash", "Lodash modular utilities.")
	assert.Contains(t, explain, `"lodash"`)
	assert.Contains(t, explain, "Lodash modular utilities.")
	assert.Contains(t, explain, "Explain in simple terms")

	generate := Prompt(ActionGenerate, "express", "")
	assert.Contains(t, generate, `"express"`)
	assert.Contains(t, generate, "No description provided")
	assert.Contains(t, generate, "project ideas")
}

func TestRespondDemoWithoutCredential(t *testing.T) {
	c := NewClient("http://unused", "gemini-1.5-flash", "", nil, zap.NewNop())

	response, isDemo := c.Respond(context.Background(), ActionExplain, "lodash", "")
	assert.True(t, isDemo)
	assert.Contains(t, response, "lodash")
	assert.Contains(t, response, "demo response")
}

func TestRespondLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "lodash is a utility library."}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gemini-1.5-flash", "secret", srv.Client(), zap.NewNop())
	response, isDemo := c.Respond(context.Background(), ActionExplain, "lodash", "utils")
	assert.False(t, isDemo)
	assert.Equal(t, "lodash is a utility library.", response)
}

func TestRespondLiveFailureFallsBackToDemo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gemini-1.5-flash", "secret", srv.Client(), zap.NewNop())
	response, isDemo := c.Respond(context.Background(), ActionGenerate, "express", "")
	// The canned text is served, but the client is not in demo mode.
	assert.False(t, isDemo)
	assert.Contains(t, response, "Project Ideas with express")
}

func TestRespondLiveEmptyCandidatesFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gemini-1.5-flash", "secret", srv.Client(), zap.NewNop())
	response, _ := c.Respond(context.Background(), ActionExplain, "lodash", "")
	assert.Contains(t, response, "Understanding lodash")
}

func TestDemoResponsePerAction(t *testing.T) {
	assert.Contains(t, DemoResponse(ActionExplain, "lodash"), "Understanding lodash")
	assert.Contains(t, DemoResponse(ActionGenerate, "lodash"), "Project Ideas with lodash")
}
