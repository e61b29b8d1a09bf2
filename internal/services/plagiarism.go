package services

import (
	"context"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/veritext/veritext-backend/internal/data/repos"
	"github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/index"
	"github.com/veritext/veritext-backend/internal/modules/plagiarism"
	"github.com/veritext/veritext-backend/internal/platform/apierr"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

type PlagiarismConfig struct {
	// TopK is how many neighbors each namespace index returns per chunk.
	TopK int `yaml:"topK"`
	// ChunkWorkers bounds concurrent per-chunk evidence gathering.
	ChunkWorkers int `yaml:"chunkWorkers"`
}

func DefaultPlagiarismConfig() PlagiarismConfig {
	return PlagiarismConfig{TopK: 5, ChunkWorkers: 4}
}

// PlagiarismService runs the similarity check: for every chunk of a material
// it gathers web evidence and internal-corpus neighbors, scores both, and
// aggregates the winners into a report.
type PlagiarismService struct {
	log       *logger.Logger
	cfg       PlagiarismConfig
	materials repos.MaterialRepo
	chunks    repos.ChunkRepo
	indexes   map[domain.Namespace]*index.Manager
	gatherer  *plagiarism.Gatherer
	scorer    *plagiarism.Scorer
}

func NewPlagiarismService(
	baseLog *logger.Logger,
	cfg PlagiarismConfig,
	materials repos.MaterialRepo,
	chunks repos.ChunkRepo,
	indexes map[domain.Namespace]*index.Manager,
	gatherer *plagiarism.Gatherer,
	scorer *plagiarism.Scorer,
) *PlagiarismService {
	def := DefaultPlagiarismConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.ChunkWorkers <= 0 {
		cfg.ChunkWorkers = def.ChunkWorkers
	}
	return &PlagiarismService{
		log:       baseLog.With("service", "PlagiarismService"),
		cfg:       cfg,
		materials: materials,
		chunks:    chunks,
		indexes:   indexes,
		gatherer:  gatherer,
		scorer:    scorer,
	}
}

func (s *PlagiarismService) CheckMaterial(ctx context.Context, materialID uint) (*plagiarism.MaterialReport, error) {
	m, err := s.materials.GetByID(ctx, nil, materialID)
	if err != nil {
		return nil, apierr.Store(err)
	}
	if m == nil {
		return nil, apierr.NotFound("material %d not found", materialID)
	}
	return s.checkLoaded(ctx, m)
}

func (s *PlagiarismService) checkLoaded(ctx context.Context, m *domain.Material) (*plagiarism.MaterialReport, error) {
	rows, err := s.chunks.GetByMaterialID(ctx, nil, m.ID)
	if err != nil {
		return nil, apierr.Store(err)
	}
	report := plagiarism.AggregateMaterial(m, nil)
	if len(rows) == 0 {
		return &report, nil
	}

	evidence := make([]plagiarism.ChunkEvidence, len(rows))
	done := make([]bool, len(rows))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(s.cfg.ChunkWorkers)
	for i, chunk := range rows {
		i, chunk := i, chunk
		grp.Go(func() error {
			online, err := s.gatherer.Gather(gctx, chunk)
			if err != nil {
				// Only cancellation escapes the gatherer.
				return err
			}
			evidence[i] = plagiarism.ChunkEvidence{
				Chunk:    *chunk,
				Online:   online,
				Internal: s.internalMatches(gctx, m, chunk),
			}
			done[i] = true
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		// Cancellation: aggregate the chunks that finished so the caller
		// still gets a partial report alongside the error.
		finished := make([]plagiarism.ChunkEvidence, 0, len(rows))
		for i := range evidence {
			if done[i] {
				finished = append(finished, evidence[i])
			}
		}
		report = plagiarism.AggregateMaterial(m, finished)
		return &report, err
	}

	report = plagiarism.AggregateMaterial(m, evidence)
	s.log.Info("Material checked",
		"materialId", m.ID, "chunks", len(rows), "similarityScore", report.SimilarityScore)
	return &report, nil
}

// internalMatches searches both namespace indexes for a chunk's nearest
// neighbors. The chunk's own vector and its siblings from the same material
// are excluded: a document always matches itself.
func (s *PlagiarismService) internalMatches(ctx context.Context, m *domain.Material, chunk *domain.Chunk) []domain.MatchRecord {
	vec, err := domain.DecodeVector(chunk.Embedding)
	if err != nil {
		s.log.Warn("Chunk embedding unreadable, skipping internal scan", "chunkId", chunk.ID, "error", err)
		return nil
	}

	var records []domain.MatchRecord
	for ns, idx := range s.indexes {
		// Over-fetch so exclusions still leave topK candidates.
		hits, err := idx.Search(vec, s.cfg.TopK+chunkBudget(m))
		if err != nil {
			s.log.Warn("Index search failed", "namespace", ns, "chunkId", chunk.ID, "error", err)
			continue
		}
		if len(hits) == 0 {
			continue
		}

		ids := make([]int64, 0, len(hits))
		scoreByID := make(map[int64]float64, len(hits))
		for _, h := range hits {
			// Vector ids are namespace-scoped; the chunk's own id only
			// exists in its home namespace.
			if ns == m.Namespace() && h.ID == chunk.VectorID {
				continue
			}
			ids = append(ids, h.ID)
			scoreByID[h.ID] = h.Score
		}
		if len(ids) == 0 {
			continue
		}

		neighbors, err := s.chunks.GetByVectorIDs(ctx, nil, ids)
		if err != nil {
			s.log.Warn("Neighbor lookup failed", "namespace", ns, "chunkId", chunk.ID, "error", err)
			continue
		}
		// The IN query loses the similarity ordering.
		sort.SliceStable(neighbors, func(i, j int) bool {
			return scoreByID[neighbors[i].VectorID] > scoreByID[neighbors[j].VectorID]
		})

		kept := 0
		for _, n := range neighbors {
			if n.MaterialID == m.ID {
				continue
			}
			if kept >= s.cfg.TopK {
				break
			}
			kept++

			semantic := scoreByID[n.VectorID]
			ngram := s.scorer.NgramSim(chunk.Text, n.Text)
			blended := s.scorer.Blend(semantic, ngram)
			records = append(records, domain.MatchRecord{
				ChunkID:     chunk.ID,
				ChunkText:   chunk.Text,
				MatchedText: n.Text,
				Semantic:    semantic,
				Ngram:       ngram,
				Blended:     blended,
				SourceType:  domain.SourceInternal,
				SourceID:    strconv.FormatUint(uint64(n.MaterialID), 10),
				Namespace:   ns,
				MatchType:   s.scorer.ClassifyInternal(blended, ngram),
			})
		}
	}
	return records
}

// chunkBudget estimates how many of a search's hits could be the material's
// own chunks and must be over-fetched past.
func chunkBudget(m *domain.Material) int {
	if m.ChunkCount > 0 {
		return m.ChunkCount
	}
	return 8
}

// CheckSubmission builds the report for every material a submission owns. A
// material whose check fails is logged and left out rather than failing the
// whole report.
func (s *PlagiarismService) CheckSubmission(ctx context.Context, submissionID string) (*plagiarism.SubmissionReport, error) {
	mats, err := s.materials.ListBySubmissionID(ctx, nil, submissionID)
	if err != nil {
		return nil, apierr.Store(err)
	}
	if len(mats) == 0 {
		return nil, apierr.NotFound("submission %s has no materials", submissionID)
	}

	report := &plagiarism.SubmissionReport{
		SubmissionID: submissionID,
		Files:        []plagiarism.MaterialReport{},
	}
	for _, m := range mats {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		fileReport, err := s.checkLoaded(ctx, m)
		if err != nil {
			if ctx.Err() != nil {
				// Keep the partial file report of the interrupted check.
				if fileReport != nil {
					report.Files = append(report.Files, *fileReport)
				}
				return report, ctx.Err()
			}
			s.log.Error("Material check failed, skipping",
				"submissionId", submissionID, "materialId", m.ID, "error", err)
			continue
		}
		report.Files = append(report.Files, *fileReport)
	}
	return report, nil
}
