// Package grok is the secondary analysis provider, backed by the xAI chat
// completions API. It renders the same strict-JSON character verdict as the
// primary provider so the merge layer can compare them directly.
package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aozora-lab/poster-cli/internal/enrich"
	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.x.ai/v1"
	defaultModel   = "grok-2-latest"
)

// Analyzer runs character identification through the xAI API.
type Analyzer struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// Option configures the analyzer.
type Option func(*Analyzer)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(a *Analyzer) {
		if u != "" {
			a.baseURL = u
		}
	}
}

// WithModel overrides the default model.
func WithModel(m string) Option {
	return func(a *Analyzer) {
		if m != "" {
			a.model = m
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Analyzer) {
		a.http = hc
	}
}

// NewAnalyzer creates an xAI-backed analyzer.
func NewAnalyzer(apiKey string, opts ...Option) *Analyzer {
	a := &Analyzer{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Name identifies the provider for rate limiting and logging.
func (a *Analyzer) Name() string { return "grok" }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze asks the model to identify the character for the item.
func (a *Analyzer) Analyze(ctx context.Context, item *model.CatalogItem) (*model.AnalysisResult, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: enrich.SystemPrompt},
			{Role: "user", Content: enrich.BuildPrompt(item)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "grok: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "grok: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "grok: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "grok: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("grok: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, resilience.NewPermanentError(err)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "grok: unmarshal response")
	}
	if len(result.Choices) == 0 {
		return nil, eris.New("grok: empty response")
	}

	verdict, err := enrich.ParseVerdict(result.Choices[0].Message.Content)
	if err != nil {
		return nil, eris.Wrapf(err, "grok: parse verdict for %s", item.ContentID)
	}

	return &model.AnalysisResult{
		Source:        model.SourceSecondary,
		CharacterName: verdict.CharacterName,
		OriginName:    verdict.OriginName,
		Confidence:    verdict.Confidence,
	}, nil
}
