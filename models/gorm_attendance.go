package models

// AttendanceRecord marks a student present in a course session. A matching
// session (one camera run) records a student at most once.
// It corresponds to the 'attendance_records' table.
type AttendanceRecord struct {
	ID              uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseSessionID uint    `gorm:"not null;uniqueIndex:idx_attendance_once" json:"course_session_id"`
	StudentID       uint    `gorm:"not null;uniqueIndex:idx_attendance_once" json:"student_id"`
	MatchSessionID  string  `gorm:"not null;uniqueIndex:idx_attendance_once" json:"match_session_id"`
	RollNumber      string  `gorm:"not null;index" json:"roll_number"`
	Distance        float64 `gorm:"not null" json:"distance"`
	MarkedAt        int64   `gorm:"not null" json:"marked_at"` // Unix timestamp
}

func (AttendanceRecord) TableName() string {
	return "attendance_records"
}
