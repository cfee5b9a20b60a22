package models

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FaceEmbedding is one reference embedding for a student, produced by enrollment.
// Rows are never updated: re-enrollment deletes every row of the student and inserts the new set.
// It corresponds to the 'face_embeddings' table.
type FaceEmbedding struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID      uint   `gorm:"index;not null" json:"student_id"`
	RollNumber     string `gorm:"index;not null" json:"roll_number"`
	EmbeddingData  []byte `gorm:"not null;column:embedding_data" json:"-"` // little-endian float32 BLOB
	EmbeddingModel string `gorm:"not null;column:embedding_model;default:'arcface'" json:"embedding_model"`
	Dimension      int    `gorm:"not null" json:"dimension"`
	CreatedAt      int64  `gorm:"not null" json:"created_at"` // Unix timestamp

	Student *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (FaceEmbedding) TableName() string {
	return "face_embeddings"
}

// Owner returns the identity this embedding belongs to.
func (fe *FaceEmbedding) Owner() StudentIdentity {
	return StudentIdentity{RollNumber: fe.RollNumber, StudentID: fe.StudentID}
}

// GetEmbedding decodes the BLOB into a vector.
func (fe *FaceEmbedding) GetEmbedding() ([]float32, error) {
	return DecodeVector(fe.EmbeddingData)
}

// SetEmbedding encodes the vector into the BLOB and records its dimension.
func (fe *FaceEmbedding) SetEmbedding(embedding []float32) {
	fe.EmbeddingData = EncodeVector(embedding)
	fe.Dimension = len(embedding)
}

// EncodeVector serialises a vector as consecutive little-endian float32 values.
// The round trip through DecodeVector is bit-exact.
func EncodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
