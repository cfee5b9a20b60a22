package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camden-git/faceattendance/models"
	"github.com/camden-git/faceattendance/repository"
)

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Manage students and course rosters",
}

var (
	studentRoll   string
	studentName   string
	studentCourse uint
)

var studentAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a student, optionally enrolling them in a course session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		student := &models.Student{RollNumber: studentRoll, FullName: studentName}
		if err := repository.NewStudentRepository(a.db).Create(cmd.Context(), student); err != nil {
			return err
		}
		fmt.Printf("Added student %s (id %d)\n", student.RollNumber, student.ID)

		if studentCourse != 0 {
			if err := repository.NewCourseRepository(a.db).Enroll(cmd.Context(), studentCourse, student.ID); err != nil {
				return err
			}
			fmt.Printf("Enrolled %s in course session %d\n", student.RollNumber, studentCourse)
		}
		return nil
	},
}

var studentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students with their stored embedding counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		students, err := repository.NewStudentRepository(a.db).ListAll(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range students {
			n, err := a.store.Count(cmd.Context(), s.Identity())
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %-32s %d embeddings\n", s.RollNumber, s.FullName, n)
		}
		return nil
	},
}

var courseCmd = &cobra.Command{
	Use:   "course-session",
	Short: "Manage course sessions",
}

var (
	courseCode  string
	courseTitle string
)

var courseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a course session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		session := &models.CourseSession{Code: courseCode, Title: courseTitle}
		if err := repository.NewCourseRepository(a.db).CreateSession(cmd.Context(), session); err != nil {
			return err
		}
		fmt.Printf("Created course session %s (id %d)\n", session.Code, session.ID)
		return nil
	},
}

func init() {
	studentAddCmd.Flags().StringVar(&studentRoll, "roll-number", "", "Unique roll number")
	studentAddCmd.Flags().StringVar(&studentName, "name", "", "Full name")
	studentAddCmd.Flags().UintVar(&studentCourse, "course-session", 0, "Enroll the student in this course session")
	studentAddCmd.MarkFlagRequired("roll-number")
	studentAddCmd.MarkFlagRequired("name")

	courseAddCmd.Flags().StringVar(&courseCode, "code", "", "Course session code")
	courseAddCmd.Flags().StringVar(&courseTitle, "title", "", "Course title")
	courseAddCmd.MarkFlagRequired("code")
	courseAddCmd.MarkFlagRequired("title")

	studentCmd.AddCommand(studentAddCmd, studentListCmd)
	courseCmd.AddCommand(courseAddCmd)
	rootCmd.AddCommand(studentCmd, courseCmd)
}
