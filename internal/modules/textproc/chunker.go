package textproc

import "strings"

// DefaultSeparators is the split hierarchy: paragraph, line, sentence, word,
// and finally single characters when nothing else fits.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits extracted document text into overlapping bounded-length
// segments. It recurses down a separator hierarchy so chunk boundaries land
// on the largest structural break that still keeps every chunk within
// ChunkSize runes, and consecutive chunks share roughly Overlap runes of
// context so matches spanning a boundary are still visible to the scorer.
type Chunker struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Chunker{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Separators: DefaultSeparators,
	}
}

func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	seps := c.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	chunks := c.splitRecursive(text, seps)

	out := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		ch = strings.TrimSpace(ch)
		if ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Chunker) splitRecursive(text string, separators []string) []string {
	if runeLen(text) <= c.ChunkSize {
		return []string{text}
	}

	// Pick the first separator that actually occurs; the empty separator
	// always matches and splits into single runes.
	sep := separators[len(separators)-1]
	rest := separators
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	splits := splitKeepSeparator(text, sep)

	var (
		out  []string
		pend []string
	)
	flush := func() {
		out = append(out, c.merge(pend)...)
		pend = nil
	}
	for _, s := range splits {
		if runeLen(s) <= c.ChunkSize {
			pend = append(pend, s)
			continue
		}
		flush()
		if len(rest) == 0 {
			out = append(out, s)
			continue
		}
		out = append(out, c.splitRecursive(s, rest)...)
	}
	flush()
	return out
}

// merge greedily packs consecutive splits into chunks no longer than
// ChunkSize, carrying up to Overlap runes of trailing splits into the next
// chunk.
func (c *Chunker) merge(splits []string) []string {
	if len(splits) == 0 {
		return nil
	}

	var (
		out    []string
		window []string
		total  int
	)
	emit := func() {
		if len(window) == 0 {
			return
		}
		joined := strings.Join(window, "")
		if strings.TrimSpace(joined) != "" {
			out = append(out, joined)
		}
	}
	for _, s := range splits {
		n := runeLen(s)
		if total+n > c.ChunkSize && total > 0 {
			emit()
			// Retire leading splits until what remains fits in the overlap
			// budget and leaves room for the incoming split.
			for total > c.Overlap || (total+n > c.ChunkSize && total > 0) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, s)
		total += n
	}
	emit()
	return out
}

// splitKeepSeparator splits text by sep, keeping the separator attached to
// the preceding piece so concatenating chunks reproduces the source text.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		runes := []rune(text)
		out := make([]string, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }
