package workers

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/camden-git/faceattendance/models"
	"github.com/camden-git/faceattendance/services"
)

// JobStatus constants
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobSucceeded  = "succeeded"
	JobFailed     = "failed"
)

// ErrAlreadyPending is returned when the student already has a job waiting.
var ErrAlreadyPending = errors.New("enrollment already pending for this student")

// ErrQueueFull is returned when the job queue has no room.
var ErrQueueFull = errors.New("enrollment queue is full")

// Enroller runs enrollment on raw uploaded photos.
type Enroller interface {
	EnrollUploads(ctx context.Context, owner models.StudentIdentity, raw [][]byte) (services.EnrollmentReport, error)
}

// EnrollmentJob carries the photos of one upload.
type EnrollmentJob struct {
	ID     string
	Owner  models.StudentIdentity
	Photos [][]byte
}

// JobInfo is the queryable state of a job.
type JobInfo struct {
	ID         string                     `json:"id"`
	RollNumber string                     `json:"roll_number"`
	Status     string                     `json:"status"`
	Photos     int                        `json:"photos"`
	Report     *services.EnrollmentReport `json:"report,omitempty"`
	Error      string                     `json:"error,omitempty"`
	QueuedAt   time.Time                  `json:"queued_at"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
}

type EnrollmentProcessor struct {
	JobQueue chan EnrollmentJob
	Enroller Enroller
	Events   services.EventPublisher
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]bool // by roll number
	Jobs     map[string]*JobInfo
	Mutex    sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEnrollmentProcessor(enroller Enroller, events services.EventPublisher, queueSize, numWorkers int) *EnrollmentProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	proc := &EnrollmentProcessor{
		JobQueue: make(chan EnrollmentJob, queueSize),
		Enroller: enroller,
		Events:   events,
		StopChan: make(chan struct{}),
		Pending:  make(map[string]bool),
		Jobs:     make(map[string]*JobInfo),
		ctx:      ctx,
		cancel:   cancel,
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d enrollment worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (ep *EnrollmentProcessor) worker(id int) {
	defer ep.Wg.Done()

	log.Printf("Enrollment worker %d started", id)
	for {
		select {
		case job, ok := <-ep.JobQueue:
			if !ok {
				log.Printf("Enrollment worker %d stopping: Job queue closed", id)
				return
			}
			log.Printf("Worker %d: Received enrollment job %s for %s (%d photos)", id, job.ID, job.Owner, len(job.Photos))
			ep.process(job)

		case <-ep.StopChan:
			log.Printf("Enrollment worker %d stopping: Stop signal received", id)
			return
		}
	}
}

func (ep *EnrollmentProcessor) process(job EnrollmentJob) {
	ep.update(job.ID, func(info *JobInfo) { info.Status = JobProcessing })
	ep.publish(job, JobProcessing, nil, nil)

	report, err := ep.Enroller.EnrollUploads(ep.ctx, job.Owner, job.Photos)

	now := time.Now()
	ep.update(job.ID, func(info *JobInfo) {
		info.Report = &report
		info.FinishedAt = &now
		if err != nil {
			info.Status = JobFailed
			info.Error = err.Error()
		} else {
			info.Status = JobSucceeded
		}
	})

	ep.Mutex.Lock()
	delete(ep.Pending, job.Owner.RollNumber)
	ep.Mutex.Unlock()

	if err != nil {
		log.Printf("Worker: ERROR enrollment job %s for %s: %v", job.ID, job.Owner, err)
		ep.publish(job, JobFailed, &report, err)
		return
	}
	log.Printf("Worker: Enrolled %s with %d embeddings", job.Owner, report.Stored)
	ep.publish(job, JobSucceeded, &report, nil)
}

func (ep *EnrollmentProcessor) update(id string, fn func(*JobInfo)) {
	ep.Mutex.Lock()
	defer ep.Mutex.Unlock()
	if info, ok := ep.Jobs[id]; ok {
		fn(info)
	}
}

func (ep *EnrollmentProcessor) publish(job EnrollmentJob, status string, report *services.EnrollmentReport, err error) {
	if ep.Events == nil {
		return
	}
	payload := map[string]interface{}{
		"job_id":      job.ID,
		"roll_number": job.Owner.RollNumber,
		"status":      status,
	}
	if report != nil {
		payload["stored"] = report.Stored
		payload["rejected"] = len(report.Rejected)
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	ep.Events.Publish("enrollment", payload)
}

// QueueJob queues an enrollment unless one is already pending for the same
// student. It returns the new job's id.
func (ep *EnrollmentProcessor) QueueJob(owner models.StudentIdentity, photos [][]byte) (string, error) {
	ep.Mutex.Lock()
	if ep.Pending[owner.RollNumber] {
		ep.Mutex.Unlock()
		return "", ErrAlreadyPending
	}
	job := EnrollmentJob{ID: uuid.NewString(), Owner: owner, Photos: photos}
	ep.Pending[owner.RollNumber] = true
	ep.Jobs[job.ID] = &JobInfo{
		ID:         job.ID,
		RollNumber: owner.RollNumber,
		Status:     JobQueued,
		Photos:     len(photos),
		QueuedAt:   time.Now(),
	}
	ep.Mutex.Unlock()

	select {
	case ep.JobQueue <- job:
		log.Printf("Queued enrollment job %s for: %s", job.ID, owner)
		ep.publish(job, JobQueued, nil, nil)
		return job.ID, nil
	default:
		log.Printf("WARNING: Enrollment job queue full. Failed to queue job for: %s", owner)
		ep.Mutex.Lock()
		delete(ep.Pending, owner.RollNumber)
		delete(ep.Jobs, job.ID)
		ep.Mutex.Unlock()
		return "", ErrQueueFull
	}
}

// Job returns a snapshot of the job's state.
func (ep *EnrollmentProcessor) Job(id string) (JobInfo, bool) {
	ep.Mutex.Lock()
	defer ep.Mutex.Unlock()
	info, ok := ep.Jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return *info, true
}

// Stop cancels running enrollments and waits for the workers to exit.
func (ep *EnrollmentProcessor) Stop() {
	log.Println("Stopping enrollment workers...")
	close(ep.StopChan)
	ep.cancel()
	ep.Wg.Wait()
	log.Println("All enrollment workers stopped")
}
