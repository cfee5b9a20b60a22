package repository

import (
	"context"
	"fmt"

	"github.com/camden-git/faceattendance/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttendanceRepository stores attendance marks.
type AttendanceRepository struct {
	DB *gorm.DB
}

var _ AttendanceRepositoryInterface = (*AttendanceRepository)(nil)

func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

func (r *AttendanceRepository) Record(ctx context.Context, rec *models.AttendanceRecord) (bool, error) {
	result := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record attendance for %s: %w", rec.RollNumber, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *AttendanceRepository) ListByCourseSession(ctx context.Context, courseSessionID uint) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := r.DB.WithContext(ctx).
		Where("course_session_id = ?", courseSessionID).
		Order("marked_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance for course session %d: %w", courseSessionID, err)
	}
	return records, nil
}
