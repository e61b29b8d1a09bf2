package domain

type SourceType string

const (
	SourceExternal SourceType = "external"
	SourceInternal SourceType = "internal"
)

type MatchType string

const (
	MatchExactCopy     MatchType = "EXACT_COPY"
	MatchSemanticMatch MatchType = "SEMANTIC_MATCH"
	MatchLowMatch      MatchType = "LOW_MATCH"
)

// MatchRecord is one scored candidate hit between a chunk and either a web
// snippet or an internal-corpus neighbor. Derived only, never persisted.
type MatchRecord struct {
	ChunkID     uint   `json:"chunkId"`
	ChunkText   string `json:"chunkText"`
	MatchedText string `json:"matchedText"`

	Exact    float64 `json:"exactSim"`
	Semantic float64 `json:"semanticSim"`
	Ngram    float64 `json:"ngramSim"`
	Blended  float64 `json:"finalScore"`

	SourceType SourceType `json:"sourceType"`
	// SourceID is a URL for external matches and a material id for internal ones.
	SourceID  string    `json:"sourceId"`
	Namespace Namespace `json:"namespace,omitempty"`
	MatchType MatchType `json:"matchType"`
}

// Score is the value a match competes with when picking a chunk's best hit:
// external candidates may win on either the blended or the exact signal.
func (m *MatchRecord) Score() float64 {
	if m.Exact > m.Blended {
		return m.Exact
	}
	return m.Blended
}
