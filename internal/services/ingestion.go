package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/veritext/veritext-backend/internal/data/repos"
	"github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/index"
	"github.com/veritext/veritext-backend/internal/modules/textproc"
	"github.com/veritext/veritext-backend/internal/platform/apierr"
	"github.com/veritext/veritext-backend/internal/platform/embedder"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

type IngestionConfig struct {
	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`
	// SubmissionWorkers bounds how many of a submission's materials ingest
	// concurrently.
	SubmissionWorkers int `yaml:"submissionWorkers"`
}

func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		ChunkSize:         500,
		ChunkOverlap:      50,
		SubmissionWorkers: 4,
	}
}

// IngestionService turns a registered material into indexed chunks:
// download, extract, chunk, embed, index, persist. The vector index and the
// chunk rows move together; a failure on either side unwinds the other.
type IngestionService struct {
	log       *logger.Logger
	db        *gorm.DB
	materials repos.MaterialRepo
	chunks    repos.ChunkRepo
	indexes   map[domain.Namespace]*index.Manager
	fetcher   *SourceFetcher
	embed     embedder.Client
	chunker   *textproc.Chunker
	cfg       IngestionConfig

	// locks serializes status transitions per material id.
	locks sync.Map
}

func NewIngestionService(
	baseLog *logger.Logger,
	db *gorm.DB,
	materials repos.MaterialRepo,
	chunks repos.ChunkRepo,
	indexes map[domain.Namespace]*index.Manager,
	fetcher *SourceFetcher,
	embed embedder.Client,
	cfg IngestionConfig,
) *IngestionService {
	def := DefaultIngestionConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = def.ChunkOverlap
	}
	if cfg.SubmissionWorkers <= 0 {
		cfg.SubmissionWorkers = def.SubmissionWorkers
	}
	return &IngestionService{
		log:       baseLog.With("service", "IngestionService"),
		db:        db,
		materials: materials,
		chunks:    chunks,
		indexes:   indexes,
		fetcher:   fetcher,
		embed:     embed,
		chunker:   textproc.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		cfg:       cfg,
	}
}

type IngestResult struct {
	MaterialID     uint                    `json:"materialId"`
	Status         domain.ProcessingStatus `json:"status"`
	NumChunks      int                     `json:"numChunks"`
	EmbeddingShape [2]int                  `json:"embeddingShape"`
	TextLength     int                     `json:"textLength"`
}

func (s *IngestionService) materialLock(id uint) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Ingest processes one material end to end. Re-ingesting is idempotent: any
// previous chunks and their vector ids are cleared first, so repeated calls
// never leak vectors.
func (s *IngestionService) Ingest(ctx context.Context, materialID uint) (*IngestResult, error) {
	mu := s.materialLock(materialID)
	mu.Lock()
	defer mu.Unlock()

	m, err := s.materials.GetByID(ctx, nil, materialID)
	if err != nil {
		return nil, apierr.Store(err)
	}
	if m == nil {
		return nil, apierr.NotFound("material %d not found", materialID)
	}
	if m.SourceURL == "" {
		return nil, apierr.InvalidInput("material %d has no sourceUrl", materialID)
	}
	idx := s.indexes[m.Namespace()]
	if idx == nil {
		return nil, apierr.IndexConsistency("no index for namespace %s", m.Namespace())
	}

	if err := s.materials.UpdateStatus(ctx, nil, m.ID, domain.StatusProcessing); err != nil {
		return nil, apierr.Store(err)
	}

	res, err := s.ingest(ctx, m, idx)
	if err != nil {
		// The error status must land even when the request context is gone.
		bg := context.WithoutCancel(ctx)
		if serr := s.materials.UpdateStatus(bg, nil, m.ID, domain.StatusError); serr != nil {
			s.log.Error("Failed to record error status", "materialId", m.ID, "error", serr)
		}
		s.log.Error("Ingestion failed", "materialId", m.ID, "error", err)
		return nil, err
	}
	return res, nil
}

func (s *IngestionService) ingest(ctx context.Context, m *domain.Material, idx *index.Manager) (*IngestResult, error) {
	if err := s.clearPrevious(ctx, m, idx); err != nil {
		return nil, err
	}

	data, err := s.fetcher.Download(ctx, m.SourceURL)
	if err != nil {
		return nil, err
	}
	text, fileType, err := ExtractText(m.Title, m.FileType, data)
	if err != nil {
		return nil, apierr.Extraction(fmt.Errorf("extract material %d: %w", m.ID, err))
	}
	if err := s.materials.UpdateFileType(ctx, nil, m.ID, fileType); err != nil {
		return nil, apierr.Store(err)
	}

	pieces := s.chunker.Split(text)
	if len(pieces) == 0 {
		if err := s.materials.FinishProcessing(ctx, nil, m.ID, 0, len(text)); err != nil {
			return nil, apierr.Store(err)
		}
		s.log.Info("Material ingested with no chunks", "materialId", m.ID)
		return &IngestResult{
			MaterialID: m.ID,
			Status:     domain.StatusDone,
			TextLength: len(text),
		}, nil
	}

	inputs := make([]string, len(pieces))
	for i, p := range pieces {
		inputs[i] = embedder.PassageInput(p)
	}
	vecs, err := s.embed.Embed(ctx, inputs)
	if err != nil {
		return nil, apierr.Network(fmt.Errorf("embed %d chunks for material %d: %w", len(pieces), m.ID, err))
	}

	ids, err := idx.AllocateIDs(len(pieces))
	if err != nil {
		return nil, apierr.IndexConsistency("allocate %d vector ids: %v", len(pieces), err)
	}
	if err := idx.AddBatch(ids, vecs); err != nil {
		return nil, apierr.IndexConsistency("add %d vectors: %v", len(ids), err)
	}

	rows := make([]*domain.Chunk, len(pieces))
	for i, p := range pieces {
		emb, err := domain.EncodeVector(vecs[i])
		if err != nil {
			idx.RemoveIDs(ids)
			return nil, apierr.Store(fmt.Errorf("encode embedding %d: %w", i, err))
		}
		rows[i] = &domain.Chunk{
			MaterialID: m.ID,
			VectorID:   ids[i],
			Ordinal:    i,
			Text:       p,
			Embedding:  emb,
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.chunks.CreateBatch(ctx, tx, rows)
	})
	if err != nil {
		// Unwind the index so no vector id dangles without a chunk row.
		if _, rerr := idx.RemoveIDs(ids); rerr != nil {
			s.log.Error("Index unwind failed after store error", "materialId", m.ID, "error", rerr)
		}
		return nil, apierr.Store(fmt.Errorf("persist %d chunks for material %d: %w", len(rows), m.ID, err))
	}

	if err := idx.Persist(); err != nil {
		return nil, apierr.IndexConsistency("persist %s index: %v", m.Namespace(), err)
	}
	if err := s.materials.FinishProcessing(ctx, nil, m.ID, len(pieces), len(text)); err != nil {
		return nil, apierr.Store(err)
	}

	s.log.Info("Material ingested",
		"materialId", m.ID, "namespace", m.Namespace(), "chunks", len(pieces), "textLength", len(text))
	return &IngestResult{
		MaterialID:     m.ID,
		Status:         domain.StatusDone,
		NumChunks:      len(pieces),
		EmbeddingShape: [2]int{len(pieces), s.embed.Dim()},
		TextLength:     len(text),
	}, nil
}

// clearPrevious drops any chunks and vectors left by an earlier ingest run.
func (s *IngestionService) clearPrevious(ctx context.Context, m *domain.Material, idx *index.Manager) error {
	old, err := s.chunks.VectorIDsByMaterialID(ctx, nil, m.ID)
	if err != nil {
		return apierr.Store(err)
	}
	if len(old) == 0 {
		return nil
	}
	if _, err := idx.RemoveIDs(old); err != nil {
		return apierr.IndexConsistency("clear %d stale vectors for material %d: %v", len(old), m.ID, err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.chunks.DeleteByMaterialID(ctx, tx, m.ID)
		return err
	})
	if err != nil {
		return apierr.Store(fmt.Errorf("clear stale chunks for material %d: %w", m.ID, err))
	}
	s.log.Info("Cleared previous ingest", "materialId", m.ID, "vectors", len(old))
	return nil
}

type SubmissionProcessResult struct {
	SubmissionID string                  `json:"submissionId"`
	Results      []SubmissionItemResult  `json:"results"`
	Status       domain.ProcessingStatus `json:"status"`
}

type SubmissionItemResult struct {
	MaterialID uint   `json:"materialId"`
	Success    bool   `json:"success"`
	NumChunks  int    `json:"numChunks"`
	Error      string `json:"error,omitempty"`
}

// ProcessSubmission ingests every material registered under a submission.
// Materials fail independently; the batch reports per-item outcomes.
func (s *IngestionService) ProcessSubmission(ctx context.Context, submissionID string) (*SubmissionProcessResult, error) {
	mats, err := s.materials.ListBySubmissionID(ctx, nil, submissionID)
	if err != nil {
		return nil, apierr.Store(err)
	}
	if len(mats) == 0 {
		return nil, apierr.NotFound("submission %s has no materials", submissionID)
	}

	results := make([]SubmissionItemResult, len(mats))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(s.cfg.SubmissionWorkers)
	for i, m := range mats {
		i, m := i, m
		grp.Go(func() error {
			res, err := s.Ingest(gctx, m.ID)
			if err != nil {
				results[i] = SubmissionItemResult{MaterialID: m.ID, Error: err.Error()}
				return nil
			}
			results[i] = SubmissionItemResult{MaterialID: m.ID, Success: true, NumChunks: res.NumChunks}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	status := domain.StatusDone
	for _, r := range results {
		if !r.Success {
			status = domain.StatusError
			break
		}
	}
	return &SubmissionProcessResult{
		SubmissionID: submissionID,
		Results:      results,
		Status:       status,
	}, nil
}
