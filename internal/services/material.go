package services

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"gorm.io/gorm"

	"github.com/veritext/veritext-backend/internal/data/repos"
	"github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/index"
	"github.com/veritext/veritext-backend/internal/platform/apierr"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

// MaterialService owns the material lifecycle around ingestion: register,
// list, delete, and the bulk course/namespace removals. Every delete keeps
// the metadata store and the vector index consistent in both directions.
type MaterialService struct {
	log       *logger.Logger
	db        *gorm.DB
	materials repos.MaterialRepo
	chunks    repos.ChunkRepo
	indexes   map[domain.Namespace]*index.Manager
}

func NewMaterialService(
	baseLog *logger.Logger,
	db *gorm.DB,
	materials repos.MaterialRepo,
	chunks repos.ChunkRepo,
	indexes map[domain.Namespace]*index.Manager,
) *MaterialService {
	return &MaterialService{
		log:       baseLog.With("service", "MaterialService"),
		db:        db,
		materials: materials,
		chunks:    chunks,
		indexes:   indexes,
	}
}

type RegisterMaterialInput struct {
	CourseID     string `json:"courseId"`
	SubmissionID string `json:"submissionId"`
	Title        string `json:"title"`
	SourceURL    string `json:"sourceUrl"`
	SourceKey    string `json:"sourceKey"`
}

// Register records a new material in pending state. Submission materials are
// keyed by submissionId; everything else needs a courseId.
func (s *MaterialService) Register(ctx context.Context, in RegisterMaterialInput) (*domain.Material, error) {
	if strings.TrimSpace(in.SourceURL) == "" {
		return nil, apierr.InvalidInput("sourceUrl is required")
	}
	owner := domain.OwnerCourseMaterial
	if strings.TrimSpace(in.SubmissionID) != "" {
		owner = domain.OwnerSubmissionMaterial
	} else if strings.TrimSpace(in.CourseID) == "" {
		return nil, apierr.InvalidInput("courseId is required")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = titleFromURL(in.SourceURL)
	}
	m := &domain.Material{
		CourseID:         strings.TrimSpace(in.CourseID),
		SubmissionID:     strings.TrimSpace(in.SubmissionID),
		OwnerType:        owner,
		Title:            title,
		SourceURL:        strings.TrimSpace(in.SourceURL),
		SourceKey:        strings.TrimSpace(in.SourceKey),
		ProcessingStatus: domain.StatusPending,
	}
	created, err := s.materials.Create(ctx, nil, m)
	if err != nil {
		return nil, apierr.Store(fmt.Errorf("create material: %w", err))
	}
	s.log.Info("Material registered", "materialId", created.ID, "owner", owner, "title", title)
	return created, nil
}

func (s *MaterialService) Get(ctx context.Context, id uint) (*domain.Material, error) {
	m, err := s.materials.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apierr.Store(err)
	}
	if m == nil {
		return nil, apierr.NotFound("material %d not found", id)
	}
	return m, nil
}

// List returns materials for exactly one of courseId or submissionId.
func (s *MaterialService) List(ctx context.Context, courseID, submissionID string) ([]*domain.Material, error) {
	switch {
	case courseID != "" && submissionID != "":
		return nil, apierr.InvalidInput("pass courseId or submissionId, not both")
	case courseID != "":
		out, err := s.materials.ListByCourseID(ctx, nil, courseID)
		if err != nil {
			return nil, apierr.Store(err)
		}
		return out, nil
	case submissionID != "":
		out, err := s.materials.ListBySubmissionID(ctx, nil, submissionID)
		if err != nil {
			return nil, apierr.Store(err)
		}
		return out, nil
	default:
		return nil, apierr.InvalidInput("courseId or submissionId is required")
	}
}

type DeleteResult struct {
	MaterialID        uint   `json:"materialId"`
	ChunksDeleted     int64  `json:"chunksDeleted"`
	EmbeddingsDeleted int    `json:"embeddingsDeleted"`
	Error             string `json:"error,omitempty"`
}

// DeleteMaterial removes one material: vector ids leave the index first,
// then the rows go in a single transaction. Deleting twice is a clean 404.
func (s *MaterialService) DeleteMaterial(ctx context.Context, id uint) (*DeleteResult, error) {
	m, err := s.materials.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apierr.Store(err)
	}
	if m == nil {
		return nil, apierr.NotFound("material %d not found", id)
	}
	return s.deleteLoaded(ctx, m)
}

func (s *MaterialService) deleteLoaded(ctx context.Context, m *domain.Material) (*DeleteResult, error) {
	vectorIDs, err := s.chunks.VectorIDsByMaterialID(ctx, nil, m.ID)
	if err != nil {
		return nil, apierr.Store(err)
	}

	idx := s.indexes[m.Namespace()]
	removed := 0
	if idx != nil && len(vectorIDs) > 0 {
		removed, err = idx.RemoveIDs(vectorIDs)
		if err != nil {
			return nil, apierr.IndexConsistency("remove %d vectors for material %d: %v", len(vectorIDs), m.ID, err)
		}
	}

	var chunksDeleted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.chunks.DeleteByMaterialID(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		chunksDeleted = n
		return s.materials.Delete(ctx, tx, m.ID)
	})
	if err != nil {
		return nil, apierr.Store(fmt.Errorf("delete material %d: %w", m.ID, err))
	}

	s.log.Info("Material deleted", "materialId", m.ID, "chunks", chunksDeleted, "embeddings", removed)
	return &DeleteResult{
		MaterialID:        m.ID,
		ChunksDeleted:     chunksDeleted,
		EmbeddingsDeleted: removed,
	}, nil
}

type CourseDeleteResult struct {
	CourseID          string         `json:"courseId"`
	MaterialsDeleted  int            `json:"materialsDeleted"`
	ChunksDeleted     int64          `json:"chunksDeleted"`
	EmbeddingsDeleted int            `json:"embeddingsDeleted"`
	Results           []DeleteResult `json:"results"`
}

// DeleteCourse removes every material of a course. A failing material is
// reported in its result entry and does not stop the rest.
func (s *MaterialService) DeleteCourse(ctx context.Context, courseID string) (*CourseDeleteResult, error) {
	mats, err := s.materials.ListByCourseID(ctx, nil, courseID)
	if err != nil {
		return nil, apierr.Store(err)
	}
	if len(mats) == 0 {
		return nil, apierr.NotFound("course %s has no materials", courseID)
	}

	out := &CourseDeleteResult{CourseID: courseID}
	for _, m := range mats {
		res, err := s.deleteLoaded(ctx, m)
		if err != nil {
			s.log.Error("Course delete: material failed", "courseId", courseID, "materialId", m.ID, "error", err)
			out.Results = append(out.Results, DeleteResult{MaterialID: m.ID, Error: err.Error()})
			continue
		}
		out.MaterialsDeleted++
		out.ChunksDeleted += res.ChunksDeleted
		out.EmbeddingsDeleted += res.EmbeddingsDeleted
		out.Results = append(out.Results, *res)
	}
	return out, nil
}

type NamespaceResetResult struct {
	Namespace        domain.Namespace `json:"namespace"`
	MaterialsDeleted int              `json:"materialsDeleted"`
	ChunksDeleted    int64            `json:"chunksDeleted"`
	VectorsDropped   int              `json:"vectorsDropped"`
}

// ResetNamespace wipes one side of the corpus entirely: all materials whose
// owner type maps to the namespace, their chunks, and the whole index file.
func (s *MaterialService) ResetNamespace(ctx context.Context, ns domain.Namespace) (*NamespaceResetResult, error) {
	idx := s.indexes[ns]
	if idx == nil {
		return nil, apierr.InvalidInput("unknown namespace %q", ns)
	}
	mats, err := s.materials.ListByNamespace(ctx, nil, ns)
	if err != nil {
		return nil, apierr.Store(err)
	}
	if len(mats) == 0 && idx.Size() == 0 {
		return nil, apierr.NotFound("namespace %s is already empty", ns)
	}

	out := &NamespaceResetResult{Namespace: ns, VectorsDropped: idx.Size()}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range mats {
			n, err := s.chunks.DeleteByMaterialID(ctx, tx, m.ID)
			if err != nil {
				return err
			}
			out.ChunksDeleted += n
			if err := s.materials.Delete(ctx, tx, m.ID); err != nil {
				return err
			}
			out.MaterialsDeleted++
		}
		return nil
	})
	if err != nil {
		return nil, apierr.Store(fmt.Errorf("reset namespace %s: %w", ns, err))
	}
	if err := idx.Reset(); err != nil {
		return nil, apierr.IndexConsistency("reset %s index: %v", ns, err)
	}

	s.log.Info("Namespace reset", "namespace", ns,
		"materials", out.MaterialsDeleted, "chunks", out.ChunksDeleted, "vectors", out.VectorsDropped)
	return out, nil
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "untitled"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "untitled"
	}
	return base
}
