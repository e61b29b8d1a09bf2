package plagiarism

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veritext/veritext-backend/internal/domain"
)

func onlineMatch(chunkID uint, url string, exact, blended float64) domain.MatchRecord {
	return domain.MatchRecord{
		ChunkID:     chunkID,
		MatchedText: "snippet from " + url,
		Exact:       exact,
		Blended:     blended,
		SourceType:  domain.SourceExternal,
		SourceID:    url,
		MatchType:   domain.MatchSemanticMatch,
	}
}

func internalMatch(chunkID uint, materialID string, blended float64) domain.MatchRecord {
	return domain.MatchRecord{
		ChunkID:    chunkID,
		Blended:    blended,
		SourceType: domain.SourceInternal,
		SourceID:   materialID,
		Namespace:  domain.NamespaceCourse,
		MatchType:  domain.MatchSemanticMatch,
	}
}

func TestAggregateMaterialZeroChunks(t *testing.T) {
	m := &domain.Material{ID: 1, Title: "empty.pdf"}
	report := AggregateMaterial(m, nil)
	assert.Equal(t, 0.0, report.SimilarityScore)
	assert.Empty(t, report.MatchedSources)
	assert.Empty(t, report.ReportDetails)
}

func TestAggregateMaterialMeanWithUnmatchedChunks(t *testing.T) {
	m := &domain.Material{ID: 2, Title: "essay.pdf"}
	evidence := []ChunkEvidence{
		{
			Chunk:  domain.Chunk{ID: 10, Ordinal: 0},
			Online: []domain.MatchRecord{onlineMatch(10, "https://a.example", 0.2, 0.9)},
		},
		{
			Chunk: domain.Chunk{ID: 11, Ordinal: 1},
			// no matches at all: contributes 0.0
		},
		{
			Chunk:    domain.Chunk{ID: 12, Ordinal: 2},
			Internal: []domain.MatchRecord{internalMatch(12, "7", 0.6)},
		},
	}
	report := AggregateMaterial(m, evidence)
	assert.InDelta(t, (0.9+0.0+0.6)/3.0, report.SimilarityScore, 1e-9)
	assert.Len(t, report.ReportDetails, 3)
	assert.Nil(t, report.ReportDetails[1].Best)
	assert.Equal(t, 0.0, report.ReportDetails[1].Score)
}

func TestAggregateMaterialTiePrefersInternal(t *testing.T) {
	m := &domain.Material{ID: 3, Title: "paper.docx"}
	evidence := []ChunkEvidence{{
		Chunk:    domain.Chunk{ID: 20, Ordinal: 0},
		Online:   []domain.MatchRecord{onlineMatch(20, "https://a.example", 0.0, 0.85)},
		Internal: []domain.MatchRecord{internalMatch(20, "9", 0.85)},
	}}
	report := AggregateMaterial(m, evidence)
	if assert.NotNil(t, report.ReportDetails[0].Best) {
		assert.Equal(t, domain.SourceInternal, report.ReportDetails[0].Best.SourceType)
	}
}

func TestAggregateMaterialOnlineWinsOnExactSignal(t *testing.T) {
	// An external candidate competes with max(exact, blended).
	m := &domain.Material{ID: 4, Title: "notes.txt"}
	evidence := []ChunkEvidence{{
		Chunk:    domain.Chunk{ID: 30, Ordinal: 0},
		Online:   []domain.MatchRecord{onlineMatch(30, "https://a.example", 0.95, 0.3)},
		Internal: []domain.MatchRecord{internalMatch(30, "9", 0.9)},
	}}
	report := AggregateMaterial(m, evidence)
	if assert.NotNil(t, report.ReportDetails[0].Best) {
		assert.Equal(t, domain.SourceExternal, report.ReportDetails[0].Best.SourceType)
	}
	assert.InDelta(t, 0.95, report.SimilarityScore, 1e-9)
}

func TestAggregateMaterialSourceRollup(t *testing.T) {
	m := &domain.Material{ID: 5, Title: "thesis.pdf"}
	evidence := []ChunkEvidence{
		{
			Chunk:  domain.Chunk{ID: 40, Ordinal: 0},
			Online: []domain.MatchRecord{onlineMatch(40, "https://a.example", 0.0, 0.7)},
		},
		{
			Chunk:  domain.Chunk{ID: 41, Ordinal: 1},
			Online: []domain.MatchRecord{onlineMatch(41, "https://a.example", 0.0, 0.9)},
		},
		{
			Chunk:  domain.Chunk{ID: 42, Ordinal: 2},
			Online: []domain.MatchRecord{onlineMatch(42, "https://b.example", 0.0, 0.8)},
		},
	}
	report := AggregateMaterial(m, evidence)
	if !assert.Len(t, report.MatchedSources, 2) {
		return
	}
	// Sorted by best score: a.example (0.9 across two chunks) before b.example.
	assert.Equal(t, "https://a.example", report.MatchedSources[0].SourceID)
	assert.InDelta(t, 0.9, report.MatchedSources[0].Score, 1e-9)
	assert.Equal(t, 2, report.MatchedSources[0].ChunkHits)
	assert.Equal(t, "snippet from https://a.example", report.MatchedSources[0].MatchedText)
	assert.Equal(t, "https://b.example", report.MatchedSources[1].SourceID)
}

func TestMatchedSourceSerialization(t *testing.T) {
	m := &domain.Material{ID: 9, Title: "paper.pdf"}
	rec := onlineMatch(70, "https://example.org/a", 0.95, 0.9)
	rec.MatchType = domain.MatchExactCopy
	report := AggregateMaterial(m, []ChunkEvidence{
		{Chunk: domain.Chunk{ID: 70, Ordinal: 0}, Online: []domain.MatchRecord{rec}},
	})

	raw, err := json.Marshal(report.MatchedSources)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("sources = %d, want 1", len(decoded))
	}
	src := decoded[0]
	for _, key := range []string{"matchedText", "similarity", "sourceType", "sourceId"} {
		if _, ok := src[key]; !ok {
			t.Fatalf("serialized source missing %q: %s", key, raw)
		}
	}
	if _, ok := src["score"]; ok {
		t.Fatalf("serialized source still carries a score key: %s", raw)
	}
	assert.Equal(t, "snippet from https://example.org/a", src["matchedText"])
	assert.InDelta(t, 0.95, src["similarity"].(float64), 1e-9)
}

func TestBestOnlinePicksMaxOfExactAndBlended(t *testing.T) {
	records := []domain.MatchRecord{
		onlineMatch(1, "https://low.example", 0.1, 0.5),
		onlineMatch(1, "https://exact.example", 0.97, 0.2),
		onlineMatch(1, "https://blend.example", 0.0, 0.8),
	}
	best := bestOnline(records)
	if best == nil || best.SourceID != "https://exact.example" {
		t.Fatalf("expected exact.example to win, got %+v", best)
	}
}
