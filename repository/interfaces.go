package repository

import (
	"context"

	"github.com/camden-git/faceattendance/models"
)

// EmbeddingStore persists the reference embeddings of enrolled students.
type EmbeddingStore interface {
	// Save replaces every embedding of owner with vectors, atomically.
	Save(ctx context.Context, owner models.StudentIdentity, vectors [][]float32) error
	// Load fetches the embeddings of every owner. Owners with nothing stored
	// map to an empty slice.
	Load(ctx context.Context, owners []models.StudentIdentity) (map[models.StudentIdentity][][]float32, error)
	Count(ctx context.Context, owner models.StudentIdentity) (int64, error)
}

// RosterProvider resolves the students expected in a course session.
type RosterProvider interface {
	GetRoster(ctx context.Context, courseSessionID uint) (models.Roster, error)
}

// StudentRepositoryInterface defines the methods for student data operations
type StudentRepositoryInterface interface {
	Create(ctx context.Context, student *models.Student) error
	GetByRollNumber(ctx context.Context, rollNumber string) (*models.Student, error)
	ListAll(ctx context.Context) ([]models.Student, error)
	Delete(ctx context.Context, id uint) error
}

// CourseRepositoryInterface defines the methods for course session data operations
type CourseRepositoryInterface interface {
	CreateSession(ctx context.Context, session *models.CourseSession) error
	GetSession(ctx context.Context, id uint) (*models.CourseSession, error)
	ListSessions(ctx context.Context) ([]models.CourseSession, error)
	Enroll(ctx context.Context, courseSessionID, studentID uint) error
	Drop(ctx context.Context, courseSessionID, studentID uint) error
}

// AttendanceRepositoryInterface defines the methods for attendance data operations
type AttendanceRepositoryInterface interface {
	// Record inserts rec unless the student is already marked in the same
	// matching session. It reports whether a row was created.
	Record(ctx context.Context, rec *models.AttendanceRecord) (bool, error)
	ListByCourseSession(ctx context.Context, courseSessionID uint) ([]models.AttendanceRecord, error)
}
