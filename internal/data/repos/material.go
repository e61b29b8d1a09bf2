package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	types "github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

type MaterialRepo interface {
	Create(ctx context.Context, tx *gorm.DB, m *types.Material) (*types.Material, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.Material, error)
	ListByCourseID(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.Material, error)
	ListBySubmissionID(ctx context.Context, tx *gorm.DB, submissionID string) ([]*types.Material, error)
	ListByNamespace(ctx context.Context, tx *gorm.DB, ns types.Namespace) ([]*types.Material, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status types.ProcessingStatus) error
	UpdateFileType(ctx context.Context, tx *gorm.DB, id uint, fileType string) error
	FinishProcessing(ctx context.Context, tx *gorm.DB, id uint, chunkCount, textLen int) error
	AssignSubmission(ctx context.Context, tx *gorm.DB, id uint, submissionID string) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
}

type materialRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMaterialRepo(db *gorm.DB, baseLog *logger.Logger) MaterialRepo {
	return &materialRepo{db: db, log: baseLog.With("repo", "MaterialRepo")}
}

func (r *materialRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *materialRepo) Create(ctx context.Context, tx *gorm.DB, m *types.Material) (*types.Material, error) {
	if err := r.conn(tx).WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID returns (nil, nil) when the material does not exist; callers decide
// whether that is a NotFound condition.
func (r *materialRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*types.Material, error) {
	var m types.Material
	err := r.conn(tx).WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *materialRepo) ListByCourseID(ctx context.Context, tx *gorm.DB, courseID string) ([]*types.Material, error) {
	var results []*types.Material
	if err := r.conn(tx).WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *materialRepo) ListBySubmissionID(ctx context.Context, tx *gorm.DB, submissionID string) ([]*types.Material, error) {
	var results []*types.Material
	if err := r.conn(tx).WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *materialRepo) ListByNamespace(ctx context.Context, tx *gorm.DB, ns types.Namespace) ([]*types.Material, error) {
	owner := types.OwnerCourseMaterial
	if ns == types.NamespaceSubmission {
		owner = types.OwnerSubmissionMaterial
	}
	var results []*types.Material
	if err := r.conn(tx).WithContext(ctx).
		Where("owner_type = ?", owner).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *materialRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status types.ProcessingStatus) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Material{}).
		Where("id = ?", id).
		Update("processing_status", status).Error
}

func (r *materialRepo) UpdateFileType(ctx context.Context, tx *gorm.DB, id uint, fileType string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Material{}).
		Where("id = ?", id).
		Update("file_type", fileType).Error
}

func (r *materialRepo) FinishProcessing(ctx context.Context, tx *gorm.DB, id uint, chunkCount, textLen int) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Material{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processing_status":     types.StatusDone,
			"chunk_count":           chunkCount,
			"extracted_text_length": textLen,
		}).Error
}

func (r *materialRepo) AssignSubmission(ctx context.Context, tx *gorm.DB, id uint, submissionID string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Material{}).
		Where("id = ?", id).
		Update("submission_id", submissionID).Error
}

func (r *materialRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	return r.conn(tx).WithContext(ctx).Delete(&types.Material{}, id).Error
}
