// Package ai builds the two fixed prompt templates and forwards them
// to a generative text API, substituting canned demo responses when no
// credential is configured or the live call fails.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Action selects which prompt template a request uses.
type Action string

const (
	// ActionExplain asks for a plain-language explanation of a package.
	ActionExplain Action = "explain"
	// ActionGenerate asks for a list of project ideas using a package.
	ActionGenerate Action = "generate"
)

// Valid reports whether the action is one of the recognized values.
func (a Action) Valid() bool {
	return a == ActionExplain || a == ActionGenerate
}

// Client calls a Gemini-style generateContent endpoint. An empty
// APIKey puts the client in demo mode.
type Client struct {
	BaseURL string
	Model   string
	APIKey  string
	HTTP    *http.Client
	Logger  *zap.Logger
}

// NewClient creates an AI client.
func NewClient(baseURL, model, apiKey string, client *http.Client, logger *zap.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, Model: model, APIKey: apiKey, HTTP: client, Logger: logger}
}

// Demo reports whether the client has no live credential.
func (c *Client) Demo() bool { return c.APIKey == "" }

// Respond produces the response text for an action. Live failures fall
// back to the demo text; the caller never sees an error.
func (c *Client) Respond(ctx context.Context, action Action, packageName, packageDescription string) (response string, isDemo bool) {
	prompt := Prompt(action, packageName, packageDescription)
	if c.Demo() {
		return DemoResponse(action, packageName), true
	}

	text, err := c.generate(ctx, prompt)
	if err != nil {
		c.Logger.Warn("AI generation failed, falling back to demo",
			zap.String("package", packageName),
			zap.Error(err),
		)
		return DemoResponse(action, packageName), false
	}
	return text, false
}

// Prompt renders the template for an action.
func Prompt(action Action, packageName, packageDescription string) string {
	desc := packageDescription
	if desc == "" {
		desc = "No description provided"
	}

	if action == ActionExplain {
		return fmt.Sprintf(`Explain in simple terms what the npm package %q does.
Package description: %s

Please explain:
1. What this package does
2. Why developers need it
3. Simple usage examples

Write clearly and accessibly, as if explaining to a beginner developer.`, packageName, desc)
	}

	return fmt.Sprintf(`Suggest 3-4 interesting project ideas using the npm package %q.
Package description: %s

For each idea, please include:
1. Project name
2. Brief description
3. Main functionality
4. Target audience

Ideas should be practical and implementable.`, packageName, desc)
}

type promptPart struct {
	Text string `json:"text"`
}

type promptContent struct {
	Parts []promptPart `json:"parts"`
}

type generateRequest struct {
	Contents []promptContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content promptContent `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body := generateRequest{
		Contents: []promptContent{{Parts: []promptPart{{Text: prompt}}}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.BaseURL, c.Model, url.QueryEscape(c.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI provider returned HTTP %d", resp.StatusCode)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("parsing AI response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("AI response contained no candidates")
	}

	var parts []string
	for _, p := range gr.Candidates[0].Content.Parts {
		parts = append(parts, p.Text)
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", fmt.Errorf("AI response was empty")
	}
	return text, nil
}

// DemoResponse returns the canned text shown when no live AI backend
// is available.
func DemoResponse(action Action, packageName string) string {
	if action == ActionExplain {
		return fmt.Sprintf(`**Understanding %s**

This npm package is an important tool for JavaScript developers.

**What it does:** %s provides a set of functions and components to simplify development.

**Why developers need it:** Developers use this package to accelerate application development and avoid writing repetitive code.

**Usage examples:**
- Integration with React/Vue/Angular applications
- Automation of routine tasks
- Improving application performance

*Note: This is a demo response. For full functionality, connect a real AI API.*`, packageName, packageName)
	}

	return fmt.Sprintf(`**Project Ideas with %s**

**1. Smart Dashboard**
- Description: Interactive data management panel
- Features: Data visualization, filters, export
- Audience: Managers and analysts

**2. Mobile-First App**
- Description: Mobile application with modern interface
- Features: Responsive design, push notifications
- Audience: End users

**3. Developer Tool**
- Description: Workflow automation tool
- Features: CLI, IDE integration, reports
- Audience: Developers

**4. E-commerce Solution**
- Description: Online trading platform
- Features: Product catalog, shopping cart, payments
- Audience: Small and medium businesses

*Note: These are demo ideas. For personalized suggestions, connect a real AI API.*`, packageName)
}
