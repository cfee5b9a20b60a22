package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/faceattendance/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CourseRepository handles course sessions and their enrollments
type CourseRepository struct {
	DB *gorm.DB
}

var _ CourseRepositoryInterface = (*CourseRepository)(nil)

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) CreateSession(ctx context.Context, session *models.CourseSession) error {
	if session.CreatedAt == 0 {
		session.CreatedAt = time.Now().Unix()
	}
	if err := r.DB.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create course session %s: %w", session.Code, err)
	}
	return nil
}

func (r *CourseRepository) GetSession(ctx context.Context, id uint) (*models.CourseSession, error) {
	var session models.CourseSession
	err := r.DB.WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get course session %d: %w", id, err)
	}
	return &session, nil
}

func (r *CourseRepository) ListSessions(ctx context.Context) ([]models.CourseSession, error) {
	var sessions []models.CourseSession
	if err := r.DB.WithContext(ctx).Order("code ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list course sessions: %w", err)
	}
	return sessions, nil
}

// Enroll adds a student to a course session, re-enrolling a dropped student.
func (r *CourseRepository) Enroll(ctx context.Context, courseSessionID, studentID uint) error {
	enrollment := models.CourseEnrollment{
		CourseSessionID: courseSessionID,
		StudentID:       studentID,
		Status:          models.EnrollmentStatusEnrolled,
	}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_session_id"}, {Name: "student_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"status": models.EnrollmentStatusEnrolled}),
	}).Create(&enrollment).Error
	if err != nil {
		return fmt.Errorf("failed to enroll student %d in course session %d: %w", studentID, courseSessionID, err)
	}
	return nil
}

// Drop marks an enrollment as dropped; the student leaves the roster.
func (r *CourseRepository) Drop(ctx context.Context, courseSessionID, studentID uint) error {
	result := r.DB.WithContext(ctx).Model(&models.CourseEnrollment{}).
		Where("course_session_id = ? AND student_id = ?", courseSessionID, studentID).
		Update("status", models.EnrollmentStatusDropped)
	if result.Error != nil {
		return fmt.Errorf("failed to drop student %d from course session %d: %w", studentID, courseSessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
