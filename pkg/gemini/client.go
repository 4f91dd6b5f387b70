// Package gemini is the primary analysis provider, backed by the Gemini API.
// It asks the model for a strict-JSON verdict on which character a catalog
// item depicts and how confident that identification is.
package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/aozora-lab/poster-cli/internal/enrich"
	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/resilience"
)

const defaultModel = "gemini-1.5-flash"

// Analyzer runs character identification through the Gemini API.
type Analyzer struct {
	client *genai.Client
	model  string
}

// Option configures the analyzer.
type Option func(*Analyzer)

// WithModel overrides the default model.
func WithModel(m string) Option {
	return func(a *Analyzer) {
		if m != "" {
			a.model = m
		}
	}
}

// NewAnalyzer creates a Gemini-backed analyzer. Close releases the
// underlying connection.
func NewAnalyzer(ctx context.Context, apiKey string, opts ...Option) (*Analyzer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	a := &Analyzer{client: client, model: defaultModel}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Name identifies the provider for rate limiting and logging.
func (a *Analyzer) Name() string { return "gemini" }

// Close releases the underlying API connection.
func (a *Analyzer) Close() error { return a.client.Close() }

// Analyze asks the model to identify the character for the item.
func (a *Analyzer) Analyze(ctx context.Context, item *model.CatalogItem) (*model.AnalysisResult, error) {
	gm := a.client.GenerativeModel(a.model)
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(enrich.SystemPrompt)}}
	gm.ResponseMIMEType = "application/json"

	resp, err := gm.GenerateContent(ctx, genai.Text(enrich.BuildPrompt(item)))
	if err != nil {
		return nil, classify(eris.Wrapf(err, "gemini: generate content for %s", item.ContentID), err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	verdict, err := enrich.ParseVerdict(text)
	if err != nil {
		return nil, eris.Wrapf(err, "gemini: parse verdict for %s", item.ContentID)
	}

	return &model.AnalysisResult{
		Source:        model.SourcePrimary,
		CharacterName: verdict.CharacterName,
		OriginName:    verdict.OriginName,
		Confidence:    verdict.Confidence,
	}, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", eris.New("gemini: empty response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", eris.New("gemini: no text parts in response")
	}
	return b.String(), nil
}

// classify wraps API failures so the retry layer can tell rate limits and
// upstream hiccups from hard errors.
func classify(wrapped, cause error) error {
	var apiErr *googleapi.Error
	if errors.As(cause, &apiErr) {
		if resilience.IsTransientHTTPStatus(apiErr.Code) {
			return resilience.NewTransientError(wrapped, apiErr.Code)
		}
		return resilience.NewPermanentError(wrapped)
	}
	return wrapped
}
