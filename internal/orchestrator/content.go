package orchestrator

import (
	"fmt"
	"html"
	"strings"

	"github.com/aozora-lab/poster-cli/internal/model"
)

// PostTitle renders the post title. An identified character leads with the
// bracketed name; otherwise the catalog title stands alone.
func PostTitle(item *model.CatalogItem, merged *model.MergedResult) string {
	if merged.CharacterName == "" {
		return item.Title
	}
	if merged.OriginName != "" {
		return fmt.Sprintf("【%s（%s）】%s", merged.CharacterName, merged.OriginName, item.Title)
	}
	return fmt.Sprintf("【%s】%s", merged.CharacterName, item.Title)
}

// PostBody renders the post HTML: cover image, identification block,
// description, sample gallery, and the outbound catalog link.
func PostBody(item *model.CatalogItem, merged *model.MergedResult) string {
	var b strings.Builder

	if item.ImageURL != "" {
		fmt.Fprintf(&b, `<p><img src="%s" alt="%s"></p>`+"\n",
			html.EscapeString(item.ImageURL), html.EscapeString(item.Title))
	}

	if merged.CharacterName != "" {
		b.WriteString("<ul>\n")
		fmt.Fprintf(&b, "<li>キャラクター: %s</li>\n", html.EscapeString(merged.CharacterName))
		if merged.OriginName != "" {
			fmt.Fprintf(&b, "<li>作品: %s</li>\n", html.EscapeString(merged.OriginName))
		}
		if item.MakerName != "" {
			fmt.Fprintf(&b, "<li>メーカー: %s</li>\n", html.EscapeString(item.MakerName))
		}
		b.WriteString("</ul>\n")
	}

	if item.Description != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(item.Description))
	}

	for _, sample := range item.SampleURLs {
		fmt.Fprintf(&b, `<p><img src="%s" alt=""></p>`+"\n", html.EscapeString(sample))
	}

	if item.URL != "" {
		fmt.Fprintf(&b, `<p><a href="%s" rel="nofollow">続きはこちら</a></p>`+"\n", html.EscapeString(item.URL))
	}
	return b.String()
}
