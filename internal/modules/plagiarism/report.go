package plagiarism

import (
	"sort"

	"github.com/veritext/veritext-backend/internal/domain"
)

// ChunkEvidence is everything collected for one chunk before aggregation:
// scored web snippets and scored internal-corpus neighbors.
type ChunkEvidence struct {
	Chunk    domain.Chunk
	Online   []domain.MatchRecord
	Internal []domain.MatchRecord
}

// ChunkReport is the per-chunk line of a material report.
type ChunkReport struct {
	ChunkID    uint                `json:"chunkId"`
	ChunkIndex int                 `json:"chunkIndex"`
	Score      float64             `json:"score"`
	Best       *domain.MatchRecord `json:"bestMatch,omitempty"`
	Online     *domain.MatchRecord `json:"bestOnlineMatch,omitempty"`
	Internal   *domain.MatchRecord `json:"bestInternalMatch,omitempty"`
}

// MatchedSource summarizes one plagiarism source across all chunks that
// picked it as their best match. MatchedText carries the passage behind the
// source's strongest hit.
type MatchedSource struct {
	MatchedText string            `json:"matchedText"`
	Score       float64           `json:"similarity"`
	SourceType  domain.SourceType `json:"sourceType"`
	SourceID    string            `json:"sourceId"`
	MatchType   domain.MatchType  `json:"matchType"`
	ChunkHits   int               `json:"chunkHits"`
}

type MaterialReport struct {
	MaterialID      uint            `json:"materialId"`
	FileName        string          `json:"fileName"`
	SimilarityScore float64         `json:"similarityScore"`
	MatchedSources  []MatchedSource `json:"matchedSources"`
	ReportDetails   []ChunkReport   `json:"reportDetails"`
}

type SubmissionReport struct {
	SubmissionID string           `json:"submissionId"`
	Files        []MaterialReport `json:"files"`
}

// AggregateMaterial reduces per-chunk evidence to a material report. Each
// chunk contributes its winning match's score, or 0.0 when nothing matched,
// and the material score is the mean over all chunks. A material with no
// chunks scores 0.0 with no sources.
func AggregateMaterial(m *domain.Material, evidence []ChunkEvidence) MaterialReport {
	report := MaterialReport{
		MaterialID:     m.ID,
		FileName:       m.Title,
		MatchedSources: []MatchedSource{},
		ReportDetails:  []ChunkReport{},
	}
	if len(evidence) == 0 {
		return report
	}

	type sourceKey struct {
		typ domain.SourceType
		id  string
	}
	sources := make(map[sourceKey]*MatchedSource)
	order := []sourceKey{}

	var total float64
	for _, ev := range evidence {
		online := bestOnline(ev.Online)
		internal := bestInternal(ev.Internal)
		winner, score := pickWinner(online, internal)
		total += score

		report.ReportDetails = append(report.ReportDetails, ChunkReport{
			ChunkID:    ev.Chunk.ID,
			ChunkIndex: ev.Chunk.Ordinal,
			Score:      score,
			Best:       winner,
			Online:     online,
			Internal:   internal,
		})
		if winner == nil {
			continue
		}

		key := sourceKey{typ: winner.SourceType, id: winner.SourceID}
		src, ok := sources[key]
		if !ok {
			src = &MatchedSource{
				MatchedText: winner.MatchedText,
				Score:       score,
				SourceType:  winner.SourceType,
				SourceID:    winner.SourceID,
				MatchType:   winner.MatchType,
			}
			sources[key] = src
			order = append(order, key)
		}
		src.ChunkHits++
		if score > src.Score {
			src.MatchedText = winner.MatchedText
			src.Score = score
			src.MatchType = winner.MatchType
		}
	}

	for _, key := range order {
		report.MatchedSources = append(report.MatchedSources, *sources[key])
	}
	sort.SliceStable(report.MatchedSources, func(i, j int) bool {
		return report.MatchedSources[i].Score > report.MatchedSources[j].Score
	})

	report.SimilarityScore = total / float64(len(evidence))
	return report
}

// bestOnline picks the web match with the highest competing score, where an
// external candidate may win on either its blended or its exact signal.
func bestOnline(records []domain.MatchRecord) *domain.MatchRecord {
	var best *domain.MatchRecord
	for i := range records {
		if best == nil || records[i].Score() > best.Score() {
			best = &records[i]
		}
	}
	return best
}

// bestInternal picks the corpus neighbor with the highest blended score.
func bestInternal(records []domain.MatchRecord) *domain.MatchRecord {
	var best *domain.MatchRecord
	for i := range records {
		if best == nil || records[i].Blended > best.Blended {
			best = &records[i]
		}
	}
	return best
}

// pickWinner compares the best online and internal candidates. Ties go to
// the internal match: a corpus hit is the more actionable finding.
func pickWinner(online, internal *domain.MatchRecord) (*domain.MatchRecord, float64) {
	onlineScore := 0.0
	if online != nil {
		onlineScore = online.Score()
	}
	internalScore := 0.0
	if internal != nil {
		internalScore = internal.Blended
	}
	switch {
	case online == nil && internal == nil:
		return nil, 0.0
	case online == nil:
		return internal, internalScore
	case internal == nil:
		return online, onlineScore
	case internalScore >= onlineScore:
		return internal, internalScore
	default:
		return online, onlineScore
	}
}
