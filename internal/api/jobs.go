package api

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/ParashaDeck/internal/parasha"
)

// JobStatus represents the status of an async job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobResult describes a generated deck.
type JobResult struct {
	Hash       string   `json:"hash"`
	FileName   string   `json:"file_name"`
	Title      string   `json:"title"`
	Ref        string   `json:"ref"`
	Slides     int      `json:"slides"`
	Verses     int      `json:"verses"`
	Unresolved []int    `json:"unresolved,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	URL        string   `json:"url"`
}

// Job is a background deck generation.
type Job struct {
	ID        string          `json:"id"`
	Status    JobStatus       `json:"status"`
	Stage     string          `json:"stage,omitempty"`
	Progress  int             `json:"progress"`
	Request   parasha.Request `json:"request"`
	Result    *JobResult      `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	cancel context.CancelFunc
}

// JobStore holds jobs in memory. Finished jobs are dropped once older
// than the TTL. Accessors return copies.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

// NewJobStore creates a job store.
func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create registers a pending job. cancel stops its work.
func (s *JobStore) Create(req parasha.Request, cancel context.CancelFunc) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	now := s.now()
	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}
	s.jobs[job.ID] = job
	return *job
}

// Get returns a job by ID.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Update applies fn to a job that has not finished yet. It reports false
// when the job is gone or already terminal.
func (s *JobStore) Update(id string, fn func(*Job)) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return Job{}, false
	}
	fn(job)
	job.UpdatedAt = s.now()
	return *job, true
}

// Cancel stops an unfinished job.
func (s *JobStore) Cancel(id string) (Job, bool) {
	job, ok := s.Update(id, func(j *Job) {
		j.Status = JobCancelled
		j.Stage = ""
	})
	if ok && job.cancel != nil {
		job.cancel()
	}
	return job, ok
}

// Delete removes a job.
func (s *JobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// List returns all jobs, oldest first.
func (s *JobStore) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	slices.SortFunc(jobs, func(a, b Job) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return jobs
}

func (s *JobStore) pruneLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
