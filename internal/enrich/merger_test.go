package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aozora-lab/poster-cli/internal/config"
	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/internal/resilience"
)

type stubProvider struct {
	name    string
	results []*model.AnalysisResult
	errs    []error
	calls   int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Analyze(_ context.Context, _ *model.CatalogItem) (*model.AnalysisResult, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	res := *p.results[i]
	return &res, nil
}

func testCfg() config.EnrichConfig {
	return config.EnrichConfig{
		ThresholdHigh:    80,
		ThresholdPublish: 50,
		ThresholdName:    30,
		AgreementBonus:   10,
		MaxAttempts:      2,
	}
}

func testLimiter() *resilience.Limiter {
	l := resilience.NewLimiter(time.UTC)
	l.Register("gemini", resilience.Budget{PerSecond: 1000, Burst: 1000})
	l.Register("grok", resilience.Budget{PerSecond: 1000, Burst: 1000})
	return l
}

func primaryResult(name string, conf int) *model.AnalysisResult {
	return &model.AnalysisResult{Source: model.SourcePrimary, CharacterName: name, Confidence: conf}
}

func secondaryResult(name string, conf int) *model.AnalysisResult {
	return &model.AnalysisResult{Source: model.SourceSecondary, CharacterName: name, Confidence: conf}
}

func item() *model.CatalogItem {
	return &model.CatalogItem{ContentID: "d_100", Title: "test item"}
}

func TestEnrich_HighConfidenceSkipsSecondary(t *testing.T) {
	primary := &stubProvider{name: "gemini", results: []*model.AnalysisResult{primaryResult("Alice", 90)}}
	secondary := &stubProvider{name: "grok", results: []*model.AnalysisResult{secondaryResult("Bob", 99)}}
	m := NewMerger(primary, secondary, testLimiter(), testCfg())

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.CharacterName)
	assert.Equal(t, 90, res.Confidence)
	assert.Equal(t, []model.AnalysisSource{model.SourcePrimary}, res.Sources)
	assert.Zero(t, secondary.calls, "secondary must not be consulted above the high threshold")
}

func TestEnrich_AgreementBoostsConfidence(t *testing.T) {
	primary := &stubProvider{name: "gemini", results: []*model.AnalysisResult{primaryResult("Alice", 40)}}
	secondary := &stubProvider{name: "grok", results: []*model.AnalysisResult{secondaryResult(" alice ", 85)}}
	m := NewMerger(primary, secondary, testLimiter(), testCfg())

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.CharacterName)
	assert.Equal(t, 95, res.Confidence, "agreement takes the max confidence plus the bonus")
	assert.True(t, res.HasSource(model.SourcePrimary))
	assert.True(t, res.HasSource(model.SourceSecondary))
}

func TestEnrich_AgreementBonusCappedAt100(t *testing.T) {
	primary := &stubProvider{name: "gemini", results: []*model.AnalysisResult{primaryResult("Alice", 75)}}
	secondary := &stubProvider{name: "grok", results: []*model.AnalysisResult{secondaryResult("Alice", 95)}}
	m := NewMerger(primary, secondary, testLimiter(), testCfg())

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, 100, res.Confidence)
}

func TestEnrich_DisagreementCapsBelowHigh(t *testing.T) {
	primary := &stubProvider{name: "gemini", results: []*model.AnalysisResult{primaryResult("Alice", 40)}}
	secondary := &stubProvider{name: "grok", results: []*model.AnalysisResult{secondaryResult("Bob", 95)}}
	m := NewMerger(primary, secondary, testLimiter(), testCfg())

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, "Bob", res.CharacterName, "the stronger answer wins a disagreement")
	assert.Equal(t, 79, res.Confidence, "a contested name cannot clear the high threshold")
}

func TestEnrich_SecondaryFailureKeepsPrimary(t *testing.T) {
	primary := &stubProvider{name: "gemini", results: []*model.AnalysisResult{primaryResult("Alice", 60)}}
	secondary := &stubProvider{name: "grok", errs: []error{
		resilience.NewPermanentError(eris.New("quota exceeded")),
	}}
	m := NewMerger(primary, secondary, testLimiter(), testCfg())

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.CharacterName)
	assert.Equal(t, 60, res.Confidence)
	assert.Equal(t, []model.AnalysisSource{model.SourcePrimary}, res.Sources)
}

func TestEnrich_PrimaryFailureFallsBackToSecondary(t *testing.T) {
	primary := &stubProvider{name: "gemini", errs: []error{
		resilience.NewPermanentError(eris.New("blocked")),
	}}
	secondary := &stubProvider{name: "grok", results: []*model.AnalysisResult{secondaryResult("Bob", 70)}}
	m := NewMerger(primary, secondary, testLimiter(), testCfg())

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, "Bob", res.CharacterName)
	assert.Equal(t, []model.AnalysisSource{model.SourceSecondary}, res.Sources)
}

func TestEnrich_BothFailIsError(t *testing.T) {
	primary := &stubProvider{name: "gemini", errs: []error{
		resilience.NewPermanentError(eris.New("blocked")),
	}}
	secondary := &stubProvider{name: "grok", errs: []error{
		resilience.NewPermanentError(eris.New("quota")),
	}}
	m := NewMerger(primary, secondary, testLimiter(), testCfg())

	_, err := m.Enrich(context.Background(), item())
	assert.Error(t, err)
}

func TestEnrich_RetriesTransientPrimaryErrors(t *testing.T) {
	primary := &stubProvider{
		name:    "gemini",
		errs:    []error{resilience.NewTransientError(eris.New("timeout"), 503)},
		results: []*model.AnalysisResult{nil, primaryResult("Alice", 85)},
	}
	m := NewMerger(primary, nil, testLimiter(), testCfg())
	m.retry.InitialBackoff = time.Millisecond

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.CharacterName)
	assert.Equal(t, 2, primary.calls)
}

func TestEnrich_NoSecondaryConfigured(t *testing.T) {
	primary := &stubProvider{name: "gemini", results: []*model.AnalysisResult{primaryResult("Alice", 40)}}
	m := NewMerger(primary, nil, testLimiter(), testCfg())

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, 40, res.Confidence)
	assert.Equal(t, []model.AnalysisSource{model.SourcePrimary}, res.Sources)
}

func TestEnrich_ClampsProviderConfidence(t *testing.T) {
	primary := &stubProvider{name: "gemini", results: []*model.AnalysisResult{primaryResult("Alice", 150)}}
	m := NewMerger(primary, nil, testLimiter(), testCfg())

	res, err := m.Enrich(context.Background(), item())
	require.NoError(t, err)
	assert.Equal(t, 100, res.Confidence)
}

func TestDecisionHelpers(t *testing.T) {
	m := NewMerger(nil, nil, testLimiter(), testCfg())

	assert.True(t, m.ShouldPublish(&model.MergedResult{Confidence: 50}))
	assert.False(t, m.ShouldPublish(&model.MergedResult{Confidence: 49}))
	assert.True(t, m.UsableName(&model.MergedResult{CharacterName: "Alice", Confidence: 30}))
	assert.False(t, m.UsableName(&model.MergedResult{CharacterName: "Alice", Confidence: 29}))
	assert.False(t, m.UsableName(&model.MergedResult{Confidence: 90}))
}
