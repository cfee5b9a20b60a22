package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/faceattendance/models"
	"gorm.io/gorm"
)

// StudentRepository handles database operations for Student entities
type StudentRepository struct {
	DB *gorm.DB
}

var _ StudentRepositoryInterface = (*StudentRepository)(nil)

// NewStudentRepository creates a new instance of StudentRepository
func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{DB: db}
}

// Create creates a new student record in the database
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().Unix()
	if student.CreatedAt == 0 {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	if err := r.DB.WithContext(ctx).Create(student).Error; err != nil {
		return fmt.Errorf("failed to create student %s: %w", student.RollNumber, err)
	}
	return nil
}

// GetByRollNumber retrieves a student by roll number
func (r *StudentRepository) GetByRollNumber(ctx context.Context, rollNumber string) (*models.Student, error) {
	var student models.Student
	err := r.DB.WithContext(ctx).Where("roll_number = ?", rollNumber).First(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get student %s: %w", rollNumber, err)
	}
	return &student, nil
}

// ListAll retrieves all students ordered by roll number
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.DB.WithContext(ctx).Order("roll_number ASC").Find(&students).Error; err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

// Delete removes a student and, through the cascade, its embeddings and enrollments
func (r *StudentRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("student_id = ?", id).Delete(&models.FaceEmbedding{}).Error; err != nil {
			return fmt.Errorf("failed to delete embeddings of student %d: %w", id, err)
		}
		if err := tx.Where("student_id = ?", id).Delete(&models.CourseEnrollment{}).Error; err != nil {
			return fmt.Errorf("failed to delete enrollments of student %d: %w", id, err)
		}
		result := tx.Delete(&models.Student{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete student %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
