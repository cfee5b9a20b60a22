package repository

import (
	"context"
	"fmt"

	"github.com/camden-git/faceattendance/database"
	"github.com/camden-git/faceattendance/models"
	"gorm.io/gorm"
)

// RosterRepository resolves rosters and attendance summaries with hand-built
// SQL on the connection underneath GORM.
type RosterRepository struct {
	DB *gorm.DB
}

var _ RosterProvider = (*RosterRepository)(nil)

func NewRosterRepository(db *gorm.DB) *RosterRepository {
	return &RosterRepository{DB: db}
}

func (r *RosterRepository) GetRoster(ctx context.Context, courseSessionID uint) (models.Roster, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return database.GetRoster(ctx, sqlDB, courseSessionID)
}

func (r *RosterRepository) AttendanceSummary(ctx context.Context, courseSessionID uint) ([]database.AttendanceSummary, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return database.GetAttendanceSummary(ctx, sqlDB, courseSessionID)
}
