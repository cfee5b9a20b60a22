package models

// Student represents an enrolled student using GORM.
// It corresponds to the 'students' table.
type Student struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	RollNumber string `gorm:"uniqueIndex;not null" json:"roll_number"`
	FullName   string `gorm:"not null" json:"full_name"`
	CreatedAt  int64  `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt  int64  `gorm:"not null" json:"updated_at"` // Stored as INTEGER in SQLite, Unix timestamp

	// omitempty hides these unless preloaded
	Embeddings  []FaceEmbedding    `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"embeddings,omitempty"`
	Enrollments []CourseEnrollment `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"enrollments,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Student) TableName() string {
	return "students"
}

// Identity returns the identity used to key stored embeddings.
func (s Student) Identity() StudentIdentity {
	return StudentIdentity{RollNumber: s.RollNumber, StudentID: s.ID}
}

// StudentIdentity is the opaque identifier embeddings are stored under.
// RollNumber is unique per student; StudentID points back at the students row.
type StudentIdentity struct {
	RollNumber string `json:"roll_number"`
	StudentID  uint   `json:"student_id"`
}

func (id StudentIdentity) String() string {
	return id.RollNumber
}

// Roster is the snapshot of students expected in one course session.
type Roster []StudentIdentity
