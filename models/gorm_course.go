package models

const (
	EnrollmentStatusEnrolled = "enrolled"
	EnrollmentStatusDropped  = "dropped"
)

// CourseSession is one offering of a course that attendance is taken for.
// It corresponds to the 'course_sessions' table.
type CourseSession struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string `gorm:"uniqueIndex;not null" json:"code"`
	Title     string `gorm:"not null" json:"title"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`

	Enrollments []CourseEnrollment `gorm:"foreignKey:CourseSessionID;constraint:OnDelete:CASCADE" json:"enrollments,omitempty"`
}

func (CourseSession) TableName() string {
	return "course_sessions"
}

// CourseEnrollment links a student to a course session. Only rows with
// status 'enrolled' are part of the roster.
type CourseEnrollment struct {
	ID              uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseSessionID uint   `gorm:"not null;uniqueIndex:idx_session_student" json:"course_session_id"`
	StudentID       uint   `gorm:"not null;uniqueIndex:idx_session_student" json:"student_id"`
	Status          string `gorm:"not null;default:enrolled" json:"status"`

	Student *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`
}

func (CourseEnrollment) TableName() string {
	return "course_enrollments"
}
