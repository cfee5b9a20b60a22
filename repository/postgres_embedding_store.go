package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/camden-git/faceattendance/models"
)

// PostgresEmbeddingStore is an EmbeddingStore on a pgx connection pool. It
// uses the same little-endian BYTEA encoding as the GORM store. Same-owner
// saves are serialised with a transaction-scoped advisory lock, so several
// processes may share the database.
type PostgresEmbeddingStore struct {
	pool  *pgxpool.Pool
	model string
}

var _ EmbeddingStore = (*PostgresEmbeddingStore)(nil)

// NewPostgresEmbeddingStore connects to connString and ensures the schema exists.
func NewPostgresEmbeddingStore(ctx context.Context, connString, model string) (*PostgresEmbeddingStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if err := initEmbeddingSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize embedding schema: %w", err)
	}
	return &PostgresEmbeddingStore{pool: pool, model: model}, nil
}

func initEmbeddingSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS face_embeddings (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL,
			roll_number TEXT NOT NULL,
			embedding_data BYTEA NOT NULL,
			embedding_model TEXT NOT NULL DEFAULT 'arcface',
			dimension INT NOT NULL,
			created_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_face_embeddings_roll_number ON face_embeddings (roll_number);
	`)
	return err
}

func (s *PostgresEmbeddingStore) Close() {
	s.pool.Close()
}

func (s *PostgresEmbeddingStore) Save(ctx context.Context, owner models.StudentIdentity, vectors [][]float32) error {
	if owner.RollNumber == "" {
		return storageErr("save", ErrEmptyOwner)
	}
	if len(vectors) == 0 {
		return storageErr("save", ErrNoVectors)
	}

	now := time.Now().Unix()
	rows := make([][]any, len(vectors))
	for i, vec := range vectors {
		if len(vec) == 0 {
			return storageErr("save", fmt.Errorf("vector %d: %w", i, ErrBadVector))
		}
		rows[i] = []any{int64(owner.StudentID), owner.RollNumber, models.EncodeVector(vec), s.model, len(vec), now}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", owner.RollNumber); err != nil {
			return fmt.Errorf("failed to lock %s: %w", owner, err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM face_embeddings WHERE roll_number = $1", owner.RollNumber); err != nil {
			return fmt.Errorf("failed to delete embeddings for %s: %w", owner, err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"face_embeddings"},
			[]string{"student_id", "roll_number", "embedding_data", "embedding_model", "dimension", "created_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert %d embeddings for %s: %w", len(rows), owner, err)
		}
		return nil
	})
	return storageErr("save", err)
}

func (s *PostgresEmbeddingStore) Load(ctx context.Context, owners []models.StudentIdentity) (map[models.StudentIdentity][][]float32, error) {
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
	if len(rolls) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx,
		"SELECT id, roll_number, embedding_data FROM face_embeddings WHERE roll_number = ANY($1) ORDER BY id",
		rolls)
	if err != nil {
		return nil, storageErr("load", fmt.Errorf("failed to query embeddings: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			roll string
			data []byte
		)
		if err := rows.Scan(&id, &roll, &data); err != nil {
			return nil, storageErr("load", fmt.Errorf("failed to scan embedding row: %w", err))
		}
		vec, err := models.DecodeVector(data)
		if err != nil {
			return nil, storageErr("load", fmt.Errorf("embedding %d of %s: %w", id, roll, err))
		}
		owner := byRoll[roll]
		result[owner] = append(result[owner], vec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load", fmt.Errorf("error iterating embedding rows: %w", err))
	}

	return result, nil
}

func (s *PostgresEmbeddingStore) Count(ctx context.Context, owner models.StudentIdentity) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_embeddings WHERE roll_number = $1", owner.RollNumber).Scan(&n)
	if err != nil {
		return 0, storageErr("count", fmt.Errorf("failed to count embeddings for %s: %w", owner, err))
	}
	return n, nil
}
