package cmd

import (
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/camden-git/faceattendance/repository"
	"github.com/camden-git/faceattendance/services"
)

var (
	matchCourse uint
	matchCamera string
	matchRecord bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match faces from a camera against a course session roster until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		roster, err := repository.NewRosterRepository(a.db).GetRoster(ctx, matchCourse)
		if err != nil {
			return err
		}
		models, err := a.loadModels()
		if err != nil {
			return err
		}

		var recorder *services.AttendanceRecorder
		if matchRecord {
			recorder = services.NewAttendanceRecorder(repository.NewAttendanceRepository(a.db))
		}
		sessionID := uuid.NewString()

		matcher := a.matcherFactory(models)()
		err = matcher.Run(ctx, roster, matchCamera, func(res services.MatchResult) {
			who := "unknown"
			if res.Candidate != nil {
				who = res.Candidate.RollNumber
			}
			dist := "-"
			if !math.IsInf(res.Distance, 0) {
				dist = fmt.Sprintf("%.4f", res.Distance)
			}
			fmt.Printf("frame=%d face=(%d,%d %dx%d) match=%v who=%s distance=%s\n",
				res.FrameIndex, res.Box.X, res.Box.Y, res.Box.W, res.Box.H, res.IsMatch, who, dist)

			if recorder == nil {
				return
			}
			created, err := recorder.Record(ctx, sessionID, matchCourse, res)
			if err != nil {
				log.Printf("match: failed to record attendance for %s: %v", who, err)
			} else if created {
				fmt.Printf("attendance recorded for %s\n", who)
			}
		})

		stats := matcher.Stats()
		fmt.Printf("frames=%d faces=%d matches=%d read_failures=%d\n", stats.FramesRead, stats.FacesSeen, stats.Matches, stats.ReadFailures)
		return err
	},
}

func init() {
	matchCmd.Flags().UintVar(&matchCourse, "course-session", 0, "Course session whose roster is matched")
	matchCmd.Flags().StringVar(&matchCamera, "camera", "0", "Camera device index, stream URL or video file")
	matchCmd.Flags().BoolVar(&matchRecord, "record", false, "Record attendance for matched students")
	matchCmd.MarkFlagRequired("course-session")
	rootCmd.AddCommand(matchCmd)
}
