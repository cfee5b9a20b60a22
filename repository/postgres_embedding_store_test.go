package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/camden-git/faceattendance/models"
)

// TestPostgresEmbeddingStore runs against a real Postgres container.
// It requires Docker and is skipped in short mode or when Docker is missing.
func TestPostgresEmbeddingStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// testcontainers may panic when the docker socket is missing
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("attendance_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	store, err := NewPostgresEmbeddingStore(ctx, connStr, "arcface")
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer store.Close()

	alice := models.StudentIdentity{RollNumber: "CS-1", StudentID: 1}
	bob := models.StudentIdentity{RollNumber: "CS-2", StudentID: 2}

	if err := store.Save(ctx, alice, vectors(3, 1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, alice, vectors(5, 2)); err != nil {
		t.Fatalf("replacing Save: %v", err)
	}

	got, err := store.Load(ctx, []models.StudentIdentity{alice, bob})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got[alice]) != 5 {
		t.Fatalf("alice has %d embeddings, want 5", len(got[alice]))
	}
	want := vectors(5, 2)
	for i := range want {
		for j := range want[i] {
			if got[alice][i][j] != want[i][j] {
				t.Fatalf("vector %d not bit-exact: %v vs %v", i, got[alice][i], want[i])
			}
		}
	}
	if got[bob] == nil || len(got[bob]) != 0 {
		t.Fatalf("bob should map to an empty slice, got %v", got[bob])
	}

	n, err := store.Count(ctx, alice)
	if err != nil || n != 5 {
		t.Fatalf("Count = %d, %v; want 5", n, err)
	}

	if err := store.Save(ctx, alice, nil); !errors.Is(err, ErrNoVectors) {
		t.Fatalf("empty save: %v", err)
	}
}
