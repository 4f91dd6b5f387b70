// Package enrich resolves item metadata through a two-provider analysis
// chain. The primary provider answers first; only when its confidence sits
// below the high bar does the secondary get consulted, and the two answers
// are merged into one result with an auditable source trail.
package enrich

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aozora-lab/poster-cli/internal/config"
	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/resilience"
)

// Merger coordinates the provider chain for one run.
type Merger struct {
	primary   Provider
	secondary Provider
	limiter   *resilience.Limiter
	cfg       config.EnrichConfig
	retry     resilience.RetryConfig
}

// NewMerger builds a Merger. secondary may be nil when no fallback provider
// is configured; the primary result then stands alone.
func NewMerger(primary, secondary Provider, limiter *resilience.Limiter, cfg config.EnrichConfig) *Merger {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	return &Merger{
		primary:   primary,
		secondary: secondary,
		limiter:   limiter,
		cfg:       cfg,
		retry:     retry,
	}
}

// Enrich runs the analysis chain for the item. The secondary provider is
// consulted only when the primary's confidence falls below the high
// threshold; a secondary failure degrades to the primary answer rather than
// failing the item. Only a primary failure (or both providers failing) is an
// error.
func (m *Merger) Enrich(ctx context.Context, item *model.CatalogItem) (*model.MergedResult, error) {
	primary, err := m.analyze(ctx, m.primary, item)
	if err != nil {
		if m.secondary == nil {
			return nil, eris.Wrapf(err, "enrich: primary analysis for %s", item.ContentID)
		}
		secondary, serr := m.analyze(ctx, m.secondary, item)
		if serr != nil {
			return nil, eris.Wrapf(err, "enrich: both providers failed for %s (secondary: %v)", item.ContentID, serr)
		}
		zap.L().Warn("primary analysis failed, using secondary alone",
			zap.String("content_id", item.ContentID),
			zap.Error(err),
		)
		return singleSource(secondary), nil
	}

	if primary.Confidence >= m.cfg.ThresholdHigh || m.secondary == nil {
		return singleSource(primary), nil
	}

	secondary, err := m.analyze(ctx, m.secondary, item)
	if err != nil {
		zap.L().Warn("secondary analysis failed, keeping primary",
			zap.String("content_id", item.ContentID),
			zap.Error(err),
		)
		return singleSource(primary), nil
	}

	return m.merge(primary, secondary), nil
}

func (m *Merger) analyze(ctx context.Context, p Provider, item *model.CatalogItem) (*model.AnalysisResult, error) {
	retry := m.retry
	retry.OnRetry = resilience.RetryLogger(p.Name(), "analyze")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.AnalysisResult, error) {
		if err := m.limiter.Wait(ctx, p.Name()); err != nil {
			return nil, err
		}
		res, err := p.Analyze(ctx, item)
		if err != nil {
			return nil, err
		}
		res.Confidence = clamp(res.Confidence)
		return res, nil
	})
}

// merge resolves two answers. Agreement on the character name raises
// confidence by the agreement bonus; disagreement keeps the stronger answer
// but caps its confidence below the high threshold so a contested name can
// never pass as a confident one.
func (m *Merger) merge(primary, secondary *model.AnalysisResult) *model.MergedResult {
	if namesAgree(primary.CharacterName, secondary.CharacterName) {
		conf := primary.Confidence
		if secondary.Confidence > conf {
			conf = secondary.Confidence
		}
		conf = clamp(conf + m.cfg.AgreementBonus)

		origin := primary.OriginName
		if origin == "" {
			origin = secondary.OriginName
		}
		return &model.MergedResult{
			CharacterName: primary.CharacterName,
			OriginName:    origin,
			Confidence:    conf,
			Sources:       []model.AnalysisSource{primary.Source, secondary.Source},
		}
	}

	winner := primary
	if secondary.Confidence > primary.Confidence {
		winner = secondary
	}
	conf := winner.Confidence
	if ceiling := m.cfg.ThresholdHigh - 1; conf > ceiling {
		conf = ceiling
	}
	zap.L().Debug("provider disagreement",
		zap.String("primary_name", primary.CharacterName),
		zap.String("secondary_name", secondary.CharacterName),
		zap.String("winner", string(winner.Source)),
	)
	return &model.MergedResult{
		CharacterName: winner.CharacterName,
		OriginName:    winner.OriginName,
		Confidence:    conf,
		Sources:       []model.AnalysisSource{primary.Source, secondary.Source},
	}
}

// ShouldPublish reports whether the merged confidence clears the publication
// bar. Items below it go to draft for manual review.
func (m *Merger) ShouldPublish(res *model.MergedResult) bool {
	return res.Confidence >= m.cfg.ThresholdPublish
}

// UsableName reports whether the character name is trustworthy enough to
// appear in generated content at all.
func (m *Merger) UsableName(res *model.MergedResult) bool {
	return res.CharacterName != "" && res.Confidence >= m.cfg.ThresholdName
}

func singleSource(res *model.AnalysisResult) *model.MergedResult {
	return &model.MergedResult{
		CharacterName: res.CharacterName,
		OriginName:    res.OriginName,
		Confidence:    res.Confidence,
		Sources:       []model.AnalysisSource{res.Source},
	}
}

func namesAgree(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return a != "" && a == b
}

func clamp(conf int) int {
	switch {
	case conf < 0:
		return 0
	case conf > 100:
		return 100
	default:
		return conf
	}
}
