package testutil

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"

	types "github.com/veritext/veritext-backend/internal/domain"
)

func SeedCourseMaterial(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID string) *types.Material {
	tb.Helper()
	m := &types.Material{
		CourseID:         courseID,
		OwnerType:        types.OwnerCourseMaterial,
		Title:            "reading.pdf",
		SourceURL:        "https://files.example.com/reading.pdf",
		FileType:         "application/pdf",
		ProcessingStatus: types.StatusPending,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed course material: %v", err)
	}
	return m
}

func SeedSubmissionMaterial(tb testing.TB, ctx context.Context, tx *gorm.DB, submissionID string) *types.Material {
	tb.Helper()
	m := &types.Material{
		SubmissionID:     submissionID,
		OwnerType:        types.OwnerSubmissionMaterial,
		Title:            "essay.docx",
		SourceURL:        "https://files.example.com/essay.docx",
		ProcessingStatus: types.StatusPending,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed submission material: %v", err)
	}
	return m
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, materialID uint, ordinal int, vectorID int64) *types.Chunk {
	tb.Helper()
	emb, err := types.EncodeVector([]float32{1, 0, 0})
	if err != nil {
		tb.Fatalf("encode embedding: %v", err)
	}
	c := &types.Chunk{
		MaterialID: materialID,
		VectorID:   vectorID,
		Ordinal:    ordinal,
		Text:       fmt.Sprintf("chunk %d of material %d", ordinal, materialID),
		Embedding:  emb,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}
