package plagiarism

import (
	"strings"
	"unicode"

	"github.com/veritext/veritext-backend/internal/domain"
)

const shingleSize = 5

// ScoreConfig carries the thresholds and blend weights for classifying a
// chunk/candidate pair. SemanticWeight and NgramWeight must sum to 1.
type ScoreConfig struct {
	ExactThreshold    float64 `yaml:"exactThreshold"`
	SemanticThreshold float64 `yaml:"semanticThreshold"`
	NgramThreshold    float64 `yaml:"ngramThreshold"`
	SemanticWeight    float64 `yaml:"semanticWeight"`
	NgramWeight       float64 `yaml:"ngramWeight"`
}

func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		ExactThreshold:    0.90,
		SemanticThreshold: 0.80,
		NgramThreshold:    0.3,
		SemanticWeight:    0.7,
		NgramWeight:       0.3,
	}
}

type Scorer struct {
	cfg ScoreConfig
}

func NewScorer(cfg ScoreConfig) *Scorer {
	def := DefaultScoreConfig()
	if cfg.ExactThreshold <= 0 {
		cfg.ExactThreshold = def.ExactThreshold
	}
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = def.SemanticThreshold
	}
	if cfg.NgramThreshold <= 0 {
		cfg.NgramThreshold = def.NgramThreshold
	}
	if cfg.SemanticWeight <= 0 && cfg.NgramWeight <= 0 {
		cfg.SemanticWeight = def.SemanticWeight
		cfg.NgramWeight = def.NgramWeight
	}
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() ScoreConfig { return s.cfg }

// NormalizeText lowercases, strips punctuation and collapses all whitespace
// runs to single spaces. Both sides of every lexical comparison go through
// this so formatting differences never dilute a copy signal.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ExactRatio is a symmetric similarity in [0,1] over normalized texts:
// 2*LCS(a,b) / (len(a)+len(b)) at rune granularity. Identical texts score
// 1.0 regardless of case, punctuation or spacing.
func (s *Scorer) ExactRatio(a, b string) float64 {
	na := []rune(NormalizeText(a))
	nb := []rune(NormalizeText(b))
	if len(na) == 0 && len(nb) == 0 {
		return 1.0
	}
	if len(na) == 0 || len(nb) == 0 {
		return 0.0
	}
	return 2.0 * float64(lcsLength(na, nb)) / float64(len(na)+len(nb))
}

// lcsLength is the classic two-row dynamic program. Inputs are chunk-sized
// (hundreds of runes), so the quadratic cost stays small.
func lcsLength(a, b []rune) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	cur := make([]int, len(a)+1)
	for j := 1; j <= len(b); j++ {
		for i := 1; i <= len(a); i++ {
			if a[i-1] == b[j-1] {
				cur[i] = prev[i-1] + 1
			} else if prev[i] >= cur[i-1] {
				cur[i] = prev[i]
			} else {
				cur[i] = cur[i-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(a)]
}

// NgramSim is the Jaccard overlap of 5-word shingles on normalized text.
// Texts with fewer than 5 words on either side score 0: too short for the
// shingle signal to mean anything.
func (s *Scorer) NgramSim(a, b string) float64 {
	sa := shingles(NormalizeText(a))
	sb := shingles(NormalizeText(b))
	if len(sa) == 0 || len(sb) == 0 {
		return 0.0
	}
	inter := 0
	for sh := range sa {
		if _, ok := sb[sh]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func shingles(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	if len(words) < shingleSize {
		return nil
	}
	out := make(map[string]struct{}, len(words)-shingleSize+1)
	for i := 0; i+shingleSize <= len(words); i++ {
		out[strings.Join(words[i:i+shingleSize], " ")] = struct{}{}
	}
	return out
}

func (s *Scorer) Blend(semantic, ngram float64) float64 {
	return s.cfg.SemanticWeight*semantic + s.cfg.NgramWeight*ngram
}

// Classify orders the web-evidence signals: a lexical copy signal (exact or
// shingle overlap) trumps the blended semantic score.
func (s *Scorer) Classify(exact, blended, ngram float64) domain.MatchType {
	if exact >= s.cfg.ExactThreshold || ngram >= s.cfg.NgramThreshold {
		return domain.MatchExactCopy
	}
	if blended >= s.cfg.SemanticThreshold {
		return domain.MatchSemanticMatch
	}
	return domain.MatchLowMatch
}

// ClassifyInternal classifies corpus-neighbor matches, which carry no exact
// signal: shingle overlap alone marks a copy.
func (s *Scorer) ClassifyInternal(blended, ngram float64) domain.MatchType {
	if ngram >= s.cfg.NgramThreshold {
		return domain.MatchExactCopy
	}
	if blended >= s.cfg.SemanticThreshold {
		return domain.MatchSemanticMatch
	}
	return domain.MatchLowMatch
}
