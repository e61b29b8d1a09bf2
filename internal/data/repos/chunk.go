package repos

import (
	"context"

	"gorm.io/gorm"

	types "github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/platform/logger"
)

type ChunkRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) error
	GetByMaterialID(ctx context.Context, tx *gorm.DB, materialID uint) ([]*types.Chunk, error)
	GetByVectorIDs(ctx context.Context, tx *gorm.DB, vectorIDs []int64) ([]*types.Chunk, error)
	VectorIDsByMaterialID(ctx context.Context, tx *gorm.DB, materialID uint) ([]int64, error)
	DeleteByMaterialID(ctx context.Context, tx *gorm.DB, materialID uint) (int64, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *chunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	// Keep batches small because Text and Embedding are large.
	const batchSize = 100
	return r.conn(tx).WithContext(ctx).CreateInBatches(chunks, batchSize).Error
}

func (r *chunkRepo) GetByMaterialID(ctx context.Context, tx *gorm.DB, materialID uint) ([]*types.Chunk, error) {
	var results []*types.Chunk
	if err := r.conn(tx).WithContext(ctx).
		Where("material_id = ?", materialID).
		Order("ordinal ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) GetByVectorIDs(ctx context.Context, tx *gorm.DB, vectorIDs []int64) ([]*types.Chunk, error) {
	var results []*types.Chunk
	if len(vectorIDs) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("vector_id IN ?", vectorIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) VectorIDsByMaterialID(ctx context.Context, tx *gorm.DB, materialID uint) ([]int64, error) {
	var ids []int64
	if err := r.conn(tx).WithContext(ctx).
		Model(&types.Chunk{}).
		Where("material_id = ?", materialID).
		Pluck("vector_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *chunkRepo) DeleteByMaterialID(ctx context.Context, tx *gorm.DB, materialID uint) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Where("material_id = ?", materialID).
		Delete(&types.Chunk{})
	return res.RowsAffected, res.Error
}
