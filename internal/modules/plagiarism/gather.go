package plagiarism

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/modules/textproc"
	"github.com/veritext/veritext-backend/internal/pkg/httpx"
	"github.com/veritext/veritext-backend/internal/pkg/vecmath"
	"github.com/veritext/veritext-backend/internal/platform/embedder"
	"github.com/veritext/veritext-backend/internal/platform/keywords"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

type GatherConfig struct {
	NumResults         int           `yaml:"numResults"`
	Workers            int           `yaml:"workers"`
	SnippetChunkSize   int           `yaml:"snippetChunkSize"`
	SnippetOverlap     int           `yaml:"snippetOverlap"`
	MaxPageWords       int           `yaml:"maxPageWords"`
	FetchTimeout       time.Duration `yaml:"fetchTimeout"`
	FetchRetries       int           `yaml:"fetchRetries"`
	KeywordTopN        int           `yaml:"keywordTopN"`
	QueryFallbackChars int           `yaml:"queryFallbackChars"`
}

func DefaultGatherConfig() GatherConfig {
	return GatherConfig{
		NumResults:         3,
		Workers:            4,
		SnippetChunkSize:   500,
		SnippetOverlap:     30,
		MaxPageWords:       1200,
		FetchTimeout:       10 * time.Second,
		FetchRetries:       2,
		KeywordTopN:        10,
		QueryFallbackChars: 200,
	}
}

// Gatherer collects web evidence for a single chunk: derive a query, search,
// fetch the top results, snippet them and score every fresh snippet against
// the chunk. Everything network-facing degrades to "no evidence", never to a
// failed check.
type Gatherer struct {
	log      *logger.Logger
	cfg      GatherConfig
	search   Searcher
	fetch    *httpx.Fetcher
	keywords keywords.Extractor
	embed    embedder.Client
	scorer   *Scorer
	cache    Store
	chunker  *textproc.Chunker

	// seen dedupes snippets for the life of the process so boilerplate that
	// appears on every result page is scored once.
	seen     sync.Map
	embCache sync.Map
}

func NewGatherer(
	baseLog *logger.Logger,
	cfg GatherConfig,
	search Searcher,
	kw keywords.Extractor,
	embed embedder.Client,
	scorer *Scorer,
	cache Store,
) *Gatherer {
	def := DefaultGatherConfig()
	if cfg.NumResults <= 0 {
		cfg.NumResults = def.NumResults
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.SnippetChunkSize <= 0 {
		cfg.SnippetChunkSize = def.SnippetChunkSize
	}
	if cfg.SnippetOverlap < 0 {
		cfg.SnippetOverlap = def.SnippetOverlap
	}
	if cfg.MaxPageWords <= 0 {
		cfg.MaxPageWords = def.MaxPageWords
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = def.FetchRetries
	}
	if cfg.KeywordTopN <= 0 {
		cfg.KeywordTopN = def.KeywordTopN
	}
	if cfg.QueryFallbackChars <= 0 {
		cfg.QueryFallbackChars = def.QueryFallbackChars
	}
	if cache == nil {
		cache = NewMemoryStore()
	}
	return &Gatherer{
		log:      baseLog.With("service", "EvidenceGatherer"),
		cfg:      cfg,
		search:   search,
		fetch:    httpx.NewFetcher(cfg.FetchTimeout, cfg.FetchRetries),
		keywords: kw,
		embed:    embed,
		scorer:   scorer,
		cache:    cache,
		chunker:  textproc.NewChunker(cfg.SnippetChunkSize, cfg.SnippetOverlap),
	}
}

// Gather returns the scored web matches for one chunk. A cancelled context
// stops further fetches and returns what was collected so far together with
// the context error; every other failure is per-URL and only shrinks the
// result.
func (g *Gatherer) Gather(ctx context.Context, chunk *domain.Chunk) ([]domain.MatchRecord, error) {
	if chunk == nil || chunk.Text == "" {
		return nil, nil
	}

	chunkVec, err := g.embedOne(ctx, embedder.QueryInput(chunk.Text))
	if err != nil {
		g.log.Warn("Chunk query embedding failed, skipping web evidence", "chunkId", chunk.ID, "error", err)
		return nil, nil
	}

	query := g.deriveQuery(ctx, chunk.Text)
	urls, err := g.search.Search(ctx, query, g.cfg.NumResults)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.log.Warn("Web search failed, continuing without web evidence", "query", query, "error", err)
		return nil, nil
	}
	if len(urls) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		records []domain.MatchRecord
	)
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.Workers)
	for _, u := range urls {
		if gctx.Err() != nil {
			break
		}
		pageURL := u
		grp.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			recs := g.gatherURL(gctx, chunk, chunkVec, pageURL)
			if len(recs) > 0 {
				mu.Lock()
				records = append(records, recs...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return records, err
	}
	if ctx.Err() != nil {
		return records, ctx.Err()
	}
	return records, nil
}

func (g *Gatherer) gatherURL(ctx context.Context, chunk *domain.Chunk, chunkVec []float32, pageURL string) []domain.MatchRecord {
	snippets, err := g.snippetsFor(ctx, pageURL)
	if err != nil {
		g.log.Warn("Skipping source URL", "url", pageURL, "error", err)
		return nil
	}

	fresh := make([]string, 0, len(snippets))
	for _, sn := range snippets {
		key := NormalizeText(sn)
		if key == "" {
			continue
		}
		if _, dup := g.seen.LoadOrStore(key, struct{}{}); dup {
			continue
		}
		fresh = append(fresh, sn)
	}
	if len(fresh) == 0 {
		return nil
	}

	vecs, err := g.embedSnippets(ctx, fresh)
	if err != nil {
		g.log.Warn("Snippet embedding failed, skipping source URL", "url", pageURL, "error", err)
		return nil
	}

	records := make([]domain.MatchRecord, 0, len(fresh))
	for i, sn := range fresh {
		exact := g.scorer.ExactRatio(chunk.Text, sn)
		semantic := vecmath.Dot(chunkVec, vecs[i])
		ngram := g.scorer.NgramSim(chunk.Text, sn)
		blended := g.scorer.Blend(semantic, ngram)
		records = append(records, domain.MatchRecord{
			ChunkID:     chunk.ID,
			ChunkText:   chunk.Text,
			MatchedText: sn,
			Exact:       exact,
			Semantic:    semantic,
			Ngram:       ngram,
			Blended:     blended,
			SourceType:  domain.SourceExternal,
			SourceID:    pageURL,
			MatchType:   g.scorer.Classify(exact, blended, ngram),
		})
	}
	return records
}

// snippetsFor fetches a page and cuts it into chunk-sized snippets, cached
// by URL so concurrent chunk checks hit each page once.
func (g *Gatherer) snippetsFor(ctx context.Context, pageURL string) ([]string, error) {
	cacheKey := "url_snippets:" + pageURL
	if cached, ok := g.cache.GetStrings(ctx, cacheKey); ok {
		return cached, nil
	}

	body, err := g.fetch.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	text := capWords(PageText(body), g.cfg.MaxPageWords)
	snippets := g.chunker.Split(text)
	g.cache.SetStrings(ctx, cacheKey, snippets)
	return snippets, nil
}

// deriveQuery asks the keyword extractor for the chunk's key phrases; when
// that is unavailable the leading characters of the chunk serve as the query.
func (g *Gatherer) deriveQuery(ctx context.Context, text string) string {
	fallback := func() string {
		runes := []rune(text)
		if len(runes) > g.cfg.QueryFallbackChars {
			runes = runes[:g.cfg.QueryFallbackChars]
		}
		return string(runes)
	}
	if g.keywords == nil {
		return fallback()
	}

	cacheKey := "keywords:" + hashKey(text)
	if cached, ok := g.cache.GetStrings(ctx, cacheKey); ok && len(cached) > 0 {
		return joinPhrases(cached)
	}

	phrases, err := g.keywords.Extract(ctx, text, g.cfg.KeywordTopN)
	if err != nil || len(phrases) == 0 {
		if err != nil {
			g.log.Warn("Keyword extraction failed, using raw text query", "error", err)
		}
		return fallback()
	}
	g.cache.SetStrings(ctx, cacheKey, phrases)
	return joinPhrases(phrases)
}

func (g *Gatherer) embedOne(ctx context.Context, input string) ([]float32, error) {
	if v, ok := g.embCache.Load(input); ok {
		return v.([]float32), nil
	}
	vecs, err := g.embed.Embed(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	g.embCache.Store(input, vecs[0])
	return vecs[0], nil
}

// embedSnippets resolves embeddings with the in-process cache and one batch
// call for whatever is missing.
func (g *Gatherer) embedSnippets(ctx context.Context, snippets []string) ([][]float32, error) {
	out := make([][]float32, len(snippets))
	var missing []int
	for i, sn := range snippets {
		if v, ok := g.embCache.Load(embedder.PassageInput(sn)); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	inputs := make([]string, len(missing))
	for j, i := range missing {
		inputs[j] = embedder.PassageInput(snippets[i])
	}
	vecs, err := g.embed.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		out[i] = vecs[j]
		g.embCache.Store(inputs[j], vecs[j])
	}
	return out, nil
}

func joinPhrases(phrases []string) string {
	seen := make(map[string]struct{}, len(phrases))
	var parts []string
	for _, p := range phrases {
		p = NormalizeText(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

func hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
