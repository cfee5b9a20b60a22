package services

import (
	"context"

	"github.com/camden-git/faceattendance/models"
	"github.com/camden-git/faceattendance/repository"
)

// AttendanceRecorder turns matches into attendance records.
type AttendanceRecorder struct {
	repo repository.AttendanceRepositoryInterface
}

func NewAttendanceRecorder(repo repository.AttendanceRepositoryInterface) *AttendanceRecorder {
	return &AttendanceRecorder{repo: repo}
}

// Record marks the matched student present. Non-matches are ignored. A
// student is recorded at most once per matching session; the boolean reports
// whether this call created the record.
func (r *AttendanceRecorder) Record(ctx context.Context, matchSessionID string, courseSessionID uint, res MatchResult) (bool, error) {
	if !res.IsMatch || res.Candidate == nil {
		return false, nil
	}
	return r.repo.Record(ctx, &models.AttendanceRecord{
		CourseSessionID: courseSessionID,
		StudentID:       res.Candidate.StudentID,
		MatchSessionID:  matchSessionID,
		RollNumber:      res.Candidate.RollNumber,
		Distance:        res.Distance,
		MarkedAt:        res.At.Unix(),
	})
}
