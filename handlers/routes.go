package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes bundles the handlers served under /api.
type Routes struct {
	Students *StudentHandler
	Courses  *CourseHandler
	Matching *MatchingHandler
	Events   http.HandlerFunc // websocket feed, optional
}

// Mount registers the middleware stack and every route on r.
func (rt *Routes) Mount(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/students", func(r chi.Router) {
			r.Post("/", rt.Students.CreateStudent)
			r.Get("/", rt.Students.ListStudents)
			r.Route("/{roll_number}", func(r chi.Router) {
				r.Post("/enrollment", rt.Students.UploadEnrollment)
				r.Get("/embeddings", rt.Students.GetEmbeddingCount)
			})
		})

		r.Get("/enrollment/jobs/{job_id}", rt.Students.GetEnrollmentJob)

		r.Route("/course-sessions", func(r chi.Router) {
			r.Post("/", rt.Courses.CreateCourseSession)
			r.Get("/", rt.Courses.ListCourseSessions)
			r.Route("/{course_session_id}", func(r chi.Router) {
				r.Post("/students", rt.Courses.EnrollStudent)
				r.Get("/attendance", rt.Courses.GetAttendance)
				r.Post("/matching", rt.Matching.StartMatching)
			})
		})

		r.Route("/matching", func(r chi.Router) {
			r.Get("/", rt.Matching.ListMatching)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", rt.Matching.GetMatching)
				r.Delete("/", rt.Matching.StopMatching)
			})
		})
	})

	if rt.Events != nil {
		// no timeout: the connection is long-lived
		r.Get("/ws", rt.Events)
	}
}

// NewRouter returns a chi router with every route mounted.
func (rt *Routes) NewRouter() chi.Router {
	r := chi.NewRouter()
	rt.Mount(r)
	return r
}
