package enrich

import (
	"context"

	"github.com/aozora-lab/poster-cli/internal/model"
)

// Provider is an analysis backend that infers character and origin metadata
// for a catalog item. Implementations live in pkg/ (Gemini as primary, Grok
// as secondary); the merger only sees this interface.
type Provider interface {
	// Name identifies the provider for rate limiting and logging.
	Name() string

	// Analyze infers metadata for the item. Confidence is 0-100.
	Analyze(ctx context.Context, item *model.CatalogItem) (*model.AnalysisResult, error)
}
