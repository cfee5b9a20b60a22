package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/camden-git/faceattendance/models"
	"gorm.io/gorm"
)

const (
	insertBatchSize = 100
	// sqlite caps bound parameters per statement
	loadChunkSize = 500
)

// FaceEmbeddingRepository is the GORM-backed EmbeddingStore (SQLite or MySQL).
type FaceEmbeddingRepository struct {
	DB *gorm.DB
	// Model is recorded on every row it writes.
	Model string

	locks ownerLocks
}

// Ensure FaceEmbeddingRepository implements EmbeddingStore
var _ EmbeddingStore = (*FaceEmbeddingRepository)(nil)

// NewFaceEmbeddingRepository creates a new instance of FaceEmbeddingRepository
func NewFaceEmbeddingRepository(db *gorm.DB, model string) *FaceEmbeddingRepository {
	return &FaceEmbeddingRepository{DB: db, Model: model}
}

// Save deletes every stored embedding of owner and inserts vectors in one
// transaction. Saves for the same owner are serialised.
func (r *FaceEmbeddingRepository) Save(ctx context.Context, owner models.StudentIdentity, vectors [][]float32) error {
	rows, err := r.buildRows(owner, vectors)
	if err != nil {
		return storageErr("save", err)
	}

	unlock := r.locks.lock(owner.RollNumber)
	defer unlock()

	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("roll_number = ?", owner.RollNumber).Delete(&models.FaceEmbedding{}).Error; err != nil {
			return fmt.Errorf("failed to delete embeddings for %s: %w", owner, err)
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert %d embeddings for %s: %w", len(rows), owner, err)
		}
		return nil
	})
	return storageErr("save", err)
}

func (r *FaceEmbeddingRepository) buildRows(owner models.StudentIdentity, vectors [][]float32) ([]models.FaceEmbedding, error) {
	if owner.RollNumber == "" {
		return nil, ErrEmptyOwner
	}
	if len(vectors) == 0 {
		return nil, ErrNoVectors
	}

	now := time.Now().Unix()
	rows := make([]models.FaceEmbedding, len(vectors))
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("vector %d: %w", i, ErrBadVector)
		}
		rows[i] = models.FaceEmbedding{
			StudentID:      owner.StudentID,
			RollNumber:     owner.RollNumber,
			EmbeddingModel: r.Model,
			CreatedAt:      now,
		}
		rows[i].SetEmbedding(vec)
	}
	return rows, nil
}

// Load fetches the embeddings of every owner in insertion order.
func (r *FaceEmbeddingRepository) Load(ctx context.Context, owners []models.StudentIdentity) (map[models.StudentIdentity][][]float32, error) {
	result := make(map[models.StudentIdentity][][]float32, len(owners))
	byRoll := make(map[string]models.StudentIdentity, len(owners))
	rolls := make([]string, 0, len(owners))
	for _, o := range owners {
		result[o] = [][]float32{}
		if _, seen := byRoll[o.RollNumber]; !seen {
			rolls = append(rolls, o.RollNumber)
		}
		byRoll[o.RollNumber] = o
	}

	for start := 0; start < len(rolls); start += loadChunkSize {
		end := min(start+loadChunkSize, len(rolls))

		var rows []models.FaceEmbedding
		err := r.DB.WithContext(ctx).
			Select("id", "roll_number", "embedding_data").
			Where("roll_number IN ?", rolls[start:end]).
			Order("id ASC").
			Find(&rows).Error
		if err != nil {
			return nil, storageErr("load", fmt.Errorf("failed to load embeddings: %w", err))
		}

		for _, row := range rows {
			vec, err := row.GetEmbedding()
			if err != nil {
				return nil, storageErr("load", fmt.Errorf("embedding %d of %s: %w", row.ID, row.RollNumber, err))
			}
			owner := byRoll[row.RollNumber]
			result[owner] = append(result[owner], vec)
		}
	}

	return result, nil
}

// Count returns how many embeddings are stored for owner.
func (r *FaceEmbeddingRepository) Count(ctx context.Context, owner models.StudentIdentity) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.FaceEmbedding{}).Where("roll_number = ?", owner.RollNumber).Count(&n).Error
	if err != nil {
		return 0, storageErr("count", fmt.Errorf("failed to count embeddings for %s: %w", owner, err))
	}
	return n, nil
}
