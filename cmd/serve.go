package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/camden-git/faceattendance/handlers"
	"github.com/camden-git/faceattendance/realtime"
	"github.com/camden-git/faceattendance/repository"
	"github.com/camden-git/faceattendance/services"
	"github.com/camden-git/faceattendance/workers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the websocket event feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	models, err := a.loadModels()
	if err != nil {
		return err
	}

	hub := realtime.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	log.Printf("Initializing enrollment worker pool (Workers: %d, Queue Size: %d)...", a.cfg.NumEnrollmentWorkers, a.cfg.EnrollmentQueueSize)
	enrollment := workers.NewEnrollmentProcessor(a.enrollmentPipeline(models), hub, a.cfg.EnrollmentQueueSize, a.cfg.NumEnrollmentWorkers)
	defer enrollment.Stop()

	students := repository.NewStudentRepository(a.db)
	rosters := repository.NewRosterRepository(a.db)
	attendance := repository.NewAttendanceRepository(a.db)
	sessions := services.NewSessionManager(a.matcherFactory(models), rosters, services.NewAttendanceRecorder(attendance), hub)
	defer sessions.Shutdown()

	routes := &handlers.Routes{
		Students: &handlers.StudentHandler{
			Students:       students,
			Embeddings:     a.store,
			Queue:          enrollment,
			MaxUploadBytes: int64(a.cfg.MaxUploadSizeMB) << 20,
		},
		Courses: &handlers.CourseHandler{
			Courses:    repository.NewCourseRepository(a.db),
			Students:   students,
			Attendance: attendance,
			Summary:    rosters,
		},
		Matching: &handlers.MatchingHandler{Sessions: sessions},
		Events:   hub.ServeWS,
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r := chi.NewRouter()
	r.Use(corsHandler.Handler)
	routes.Mount(r)

	serverAddr := ":" + a.cfg.Port
	log.Printf("Matching threshold: %.3f, minimum enrollment faces: %d", a.cfg.MatchThreshold, a.cfg.MinEnrollmentFaces)
	fmt.Printf("Server starting on http://localhost:%s\n", a.cfg.Port)
	// no WriteTimeout: the websocket feed is long-lived
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Printf("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
