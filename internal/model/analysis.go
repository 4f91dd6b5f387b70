package model

// AnalysisSource identifies which provider produced an analysis.
type AnalysisSource string

const (
	SourcePrimary   AnalysisSource = "primary"
	SourceSecondary AnalysisSource = "secondary"
)

// AnalysisResult is one provider's inference for an item. Ephemeral: it is
// consumed by the merger and not persisted beyond the merged outcome.
type AnalysisResult struct {
	Source        AnalysisSource `json:"source"`
	CharacterName string         `json:"character_name,omitempty"`
	OriginName    string         `json:"origin_name,omitempty"`
	Confidence    int            `json:"confidence"`
}

// MergedResult is the resolved outcome of primary and (optionally) secondary
// analysis. Confidence stays within [0,100].
type MergedResult struct {
	CharacterName string           `json:"character_name,omitempty"`
	OriginName    string           `json:"origin_name,omitempty"`
	Confidence    int              `json:"confidence"`
	Sources       []AnalysisSource `json:"sources"`
}

// HasSource reports whether the given provider contributed to the merge.
func (m *MergedResult) HasSource(s AnalysisSource) bool {
	for _, src := range m.Sources {
		if src == s {
			return true
		}
	}
	return false
}
