package database

import (
	"context"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/facette/natsort"

	"github.com/camden-git/faceattendance/models"
)

// GetRoster returns the students enrolled in a course session, ordered
// naturally by roll number ("CS-2" before "CS-10").
func GetRoster(ctx context.Context, db Querier, courseSessionID uint) (models.Roster, error) {
	queryBuilder := psql.Select("s.id", "s.roll_number").
		From("students s").
		Join("course_enrollments e ON e.student_id = s.id").
		Where(sq.Eq{"e.course_session_id": courseSessionID, "e.status": models.EnrollmentStatusEnrolled})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for GetRoster: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster for course session %d: %w", courseSessionID, err)
	}
	defer rows.Close()

	roster := models.Roster{}
	for rows.Next() {
		var id models.StudentIdentity
		if err := rows.Scan(&id.StudentID, &id.RollNumber); err != nil {
			return nil, fmt.Errorf("failed to scan roster row: %w", err)
		}
		roster = append(roster, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roster rows: %w", err)
	}

	sort.SliceStable(roster, func(i, j int) bool {
		return natsort.Compare(roster[i].RollNumber, roster[j].RollNumber)
	})
	return roster, nil
}

// AttendanceSummary is one present student of a course session.
type AttendanceSummary struct {
	RollNumber   string  `json:"roll_number"`
	FullName     string  `json:"full_name"`
	FirstSeenAt  int64   `json:"first_seen_at"`
	BestDistance float64 `json:"best_distance"`
	Sessions     int     `json:"matching_sessions"`
}

// GetAttendanceSummary aggregates attendance records across every matching
// session of a course session.
func GetAttendanceSummary(ctx context.Context, db Querier, courseSessionID uint) ([]AttendanceSummary, error) {
	queryBuilder := psql.Select(
		"s.roll_number",
		"s.full_name",
		"MIN(a.marked_at)",
		"MIN(a.distance)",
		"COUNT(DISTINCT a.match_session_id)",
	).
		From("attendance_records a").
		Join("students s ON s.id = a.student_id").
		Where(sq.Eq{"a.course_session_id": courseSessionID}).
		GroupBy("s.roll_number", "s.full_name")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for GetAttendanceSummary: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance for course session %d: %w", courseSessionID, err)
	}
	defer rows.Close()

	summaries := []AttendanceSummary{}
	for rows.Next() {
		var a AttendanceSummary
		if err := rows.Scan(&a.RollNumber, &a.FullName, &a.FirstSeenAt, &a.BestDistance, &a.Sessions); err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		summaries = append(summaries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance rows: %w", err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return natsort.Compare(summaries[i].RollNumber, summaries[j].RollNumber)
	})
	return summaries, nil
}
