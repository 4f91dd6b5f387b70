package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aozora-lab/poster-cli/internal/model"
)

func TestPostTitle(t *testing.T) {
	item := &model.CatalogItem{Title: "Cosplay Feature"}

	assert.Equal(t, "Cosplay Feature",
		PostTitle(item, &model.MergedResult{}))
	assert.Equal(t, "【Rem】Cosplay Feature",
		PostTitle(item, &model.MergedResult{CharacterName: "Rem"}))
	assert.Equal(t, "【Rem（Re:Zero）】Cosplay Feature",
		PostTitle(item, &model.MergedResult{CharacterName: "Rem", OriginName: "Re:Zero"}))
}

func TestPostBody(t *testing.T) {
	item := &model.CatalogItem{
		Title:       `Cosplay "Feature"`,
		URL:         "https://example.com/detail/d_001",
		ImageURL:    "https://img.example.com/cover.jpg",
		SampleURLs:  []string{"https://img.example.com/s1.jpg"},
		MakerName:   "Example Maker",
		Description: "A <b>description</b>.",
	}
	merged := &model.MergedResult{CharacterName: "Rem", OriginName: "Re:Zero", Confidence: 90}

	body := PostBody(item, merged)
	assert.Contains(t, body, `src="https://img.example.com/cover.jpg"`)
	assert.Contains(t, body, "キャラクター: Rem")
	assert.Contains(t, body, "作品: Re:Zero")
	assert.Contains(t, body, "メーカー: Example Maker")
	assert.Contains(t, body, "A &lt;b&gt;description&lt;/b&gt;.", "description must be escaped")
	assert.Contains(t, body, `src="https://img.example.com/s1.jpg"`)
	assert.Contains(t, body, `href="https://example.com/detail/d_001"`)
}

func TestPostBody_MinimalItem(t *testing.T) {
	body := PostBody(&model.CatalogItem{Title: "Bare"}, &model.MergedResult{})
	assert.NotContains(t, body, "<img")
	assert.NotContains(t, body, "<ul>")
	assert.NotContains(t, body, "<a")
}
