package plagiarism

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veritext/veritext-backend/internal/domain"
)

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "The Quick BROWN Fox", "the quick brown fox"},
		{"strips punctuation", "hello, world! (really)", "hello world really"},
		{"collapses whitespace", "a\t b\n\n  c", "a b c"},
		{"keeps digits", "chapter 12, section 3", "chapter 12 section 3"},
		{"empty", "  \n ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeText(tc.in))
		})
	}
}

func TestExactRatioIdentity(t *testing.T) {
	s := NewScorer(DefaultScoreConfig())
	text := "The mitochondria is the powerhouse of the cell."
	if got := s.ExactRatio(text, text); got != 1.0 {
		t.Fatalf("identical texts scored %v, want 1.0", got)
	}
	// Formatting noise must not break identity.
	if got := s.ExactRatio(text, "the MITOCHONDRIA is the powerhouse   of the cell"); got != 1.0 {
		t.Fatalf("normalized-identical texts scored %v, want 1.0", got)
	}
}

func TestExactRatioSymmetry(t *testing.T) {
	s := NewScorer(DefaultScoreConfig())
	a := "energy flows through the ecosystem in one direction"
	b := "matter cycles through the ecosystem repeatedly"
	ab := s.ExactRatio(a, b)
	ba := s.ExactRatio(b, a)
	if ab != ba {
		t.Fatalf("ratio not symmetric: %v vs %v", ab, ba)
	}
	if ab <= 0 || ab >= 1 {
		t.Fatalf("partially overlapping texts scored %v, want strictly inside (0,1)", ab)
	}
}

func TestExactRatioDisjoint(t *testing.T) {
	s := NewScorer(DefaultScoreConfig())
	if got := s.ExactRatio("", ""); got != 1.0 {
		t.Fatalf("two empty texts scored %v, want 1.0", got)
	}
	if got := s.ExactRatio("something", ""); got != 0.0 {
		t.Fatalf("text vs empty scored %v, want 0.0", got)
	}
}

func TestNgramSim(t *testing.T) {
	s := NewScorer(DefaultScoreConfig())

	same := "the cat sat on the mat every single day"
	if got := s.NgramSim(same, same); got != 1.0 {
		t.Fatalf("identical texts ngram %v, want 1.0", got)
	}
	if got := s.NgramSim("too short here", same); got != 0.0 {
		t.Fatalf("short side ngram %v, want 0.0", got)
	}
	if got := s.NgramSim("alpha beta gamma delta epsilon zeta", "one two three four five six"); got != 0.0 {
		t.Fatalf("disjoint texts ngram %v, want 0.0", got)
	}

	partial := s.NgramSim(
		"the cat sat on the mat and looked outside",
		"the cat sat on the mat and slept deeply",
	)
	if partial <= 0 || partial >= 1 {
		t.Fatalf("overlapping texts ngram %v, want strictly inside (0,1)", partial)
	}
}

func TestBlendUsesConfiguredWeights(t *testing.T) {
	s := NewScorer(DefaultScoreConfig())
	assert.InDelta(t, 0.7*0.5+0.3*0.2, s.Blend(0.5, 0.2), 1e-9)

	custom := NewScorer(ScoreConfig{
		ExactThreshold:    0.9,
		SemanticThreshold: 0.8,
		NgramThreshold:    0.3,
		SemanticWeight:    0.5,
		NgramWeight:       0.5,
	})
	assert.InDelta(t, 0.35, custom.Blend(0.5, 0.2), 1e-9)
}

func TestClassify(t *testing.T) {
	s := NewScorer(DefaultScoreConfig())
	cases := []struct {
		name                  string
		exact, blended, ngram float64
		want                  domain.MatchType
	}{
		{"exact copy via exact ratio", 0.95, 0.1, 0.0, domain.MatchExactCopy},
		{"exact copy via shingles", 0.2, 0.1, 0.4, domain.MatchExactCopy},
		{"exact threshold boundary", 0.90, 0.0, 0.0, domain.MatchExactCopy},
		{"semantic match", 0.1, 0.85, 0.0, domain.MatchSemanticMatch},
		{"semantic threshold boundary", 0.0, 0.80, 0.0, domain.MatchSemanticMatch},
		{"low match", 0.1, 0.4, 0.1, domain.MatchLowMatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Classify(tc.exact, tc.blended, tc.ngram))
		})
	}
}

func TestClassifyInternalIgnoresExact(t *testing.T) {
	s := NewScorer(DefaultScoreConfig())
	assert.Equal(t, domain.MatchExactCopy, s.ClassifyInternal(0.1, 0.5))
	assert.Equal(t, domain.MatchSemanticMatch, s.ClassifyInternal(0.9, 0.0))
	assert.Equal(t, domain.MatchLowMatch, s.ClassifyInternal(0.5, 0.1))
}
