package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/aozora-lab/poster-cli/internal/model"
)

// SystemPrompt instructs a chat model to return the strict-JSON verdict both
// providers share, so their answers can be compared field by field.
const SystemPrompt = `You identify which fictional character a cosplay product depicts.
Respond with strict JSON only, no markdown, matching this schema:
{"character_name": string, "origin_name": string, "confidence": integer 0-100}
Use an empty string when a field cannot be determined, and confidence 0 when
no character can be identified.`

// Verdict is the JSON shape providers are instructed to return.
type Verdict struct {
	CharacterName string `json:"character_name"`
	OriginName    string `json:"origin_name"`
	Confidence    int    `json:"confidence"`
}

// BuildPrompt renders the item metadata into the analysis prompt.
func BuildPrompt(item *model.CatalogItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	if item.MakerName != "" {
		fmt.Fprintf(&b, "Maker: %s\n", item.MakerName)
	}
	if len(item.Genres) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", strings.Join(item.Genres, ", "))
	}
	if item.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", item.Description)
	}
	b.WriteString("Identify the depicted character.")
	return b.String()
}

// ParseVerdict decodes a model response, tolerating the markdown code fences
// models sometimes emit despite instructions. Confidence is clamped to 0-100.
func ParseVerdict(text string) (*Verdict, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var v Verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, eris.Wrapf(err, "decode verdict %q", text)
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 100 {
		v.Confidence = 100
	}
	return &v, nil
}
