package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Chunk is one contiguous text segment of a material together with its
// embedding. VectorID is the id under which the embedding lives inside the
// owning namespace's vector index; a chunk whose vector has been removed is
// orphaned and must not be matched against.
type Chunk struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	MaterialID uint           `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"materialId"`
	Material   *Material      `gorm:"constraint:OnDelete:CASCADE;foreignKey:MaterialID;references:ID" json:"-"`
	VectorID   int64          `gorm:"column:vector_id;not null;index" json:"vectorId"`
	Ordinal    int            `gorm:"not null" json:"ordinal"`
	Text       string         `gorm:"type:text;not null" json:"text"`
	Embedding  datatypes.JSON `gorm:"column:embedding" json:"embedding,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime" json:"createdAt"`
}

func (Chunk) TableName() string { return "chunks" }

// EncodeVector is the one canonical serialization for persisted embeddings:
// a plain JSON array of numbers.
func EncodeVector(v []float32) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func DecodeVector(raw datatypes.JSON) ([]float32, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	return v, nil
}
