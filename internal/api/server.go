// Package api serves readings and generated decks over HTTP.
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/FocuswithJustin/ParashaDeck/core/cas"
	"github.com/FocuswithJustin/ParashaDeck/internal/deck"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
	"github.com/FocuswithJustin/ParashaDeck/internal/parasha"
	"github.com/FocuswithJustin/ParashaDeck/internal/server"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server is the HTTP front end of a parasha.Service.
type Server struct {
	cfg     Config
	svc     *parasha.Service
	store   *cas.Store
	jobs    *JobStore
	hub     *Hub
	limiter *RateLimiter
	tmpl    *template.Template
	started time.Time

	// base is the parent context of every job; Close cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server. store may be nil, which disables jobs and stored
// deck downloads.
func New(cfg Config, svc *parasha.Service, store *cas.Store) *Server {
	cfg = cfg.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		store:   store,
		jobs:    NewJobStore(cfg.JobTTL),
		hub:     NewHub(),
		tmpl:    template.Must(template.ParseFS(templateFS, "templates/*.html")),
		started: time.Now(),
		base:    base,
		cancel:  cancel,
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}
	return s
}

// Hub returns the progress hub. It is not running until Start or an
// explicit Hub().Run.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	api := func(h http.HandlerFunc) http.Handler {
		return server.SecurityHeadersWithCSP(server.APICSPConfig(), h)
	}
	mux.Handle("/", server.SecurityHeadersWithCSP(server.PageCSPConfig(), http.HandlerFunc(s.handleRoot)))
	mux.Handle("/health", api(s.handleHealth))
	mux.Handle("/resolve", api(s.handleResolve))
	mux.Handle("/generate", api(s.handleGenerate))
	mux.Handle("/jobs", api(s.handleJobs))
	mux.Handle("/jobs/{id}", api(s.handleJobByID))
	mux.Handle("/decks/{hash}", api(s.handleDeck))
	mux.Handle("/ws", WebSocketHandler(s.hub, WebSocketConfig{AllowedOrigins: s.cfg.AllowedOrigins}))

	var h http.Handler = mux
	h = AuthMiddleware(s.cfg.Auth, h)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = server.CORSMiddlewareWithConfig(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, h)
	return logging.CombinedMiddleware(h)
}

// Start serves until ctx is done, then shuts down gracefully and waits for
// running jobs.
func (s *Server) Start(ctx context.Context) error {
	if err := ValidateAuthConfig(s.cfg.Auth); err != nil {
		return err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		s.hub.Run(hubCtx)
		close(hubDone)
	}()
	defer func() {
		stopHub()
		<-hubDone
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logging.ServerStartup("api", "http", s.cfg.Port,
		"auth", s.cfg.Auth.Enabled,
		"rate_limit", s.cfg.RateLimitRequests,
		"store", s.store != nil)

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	logging.Info("api server stopped")
	return err
}

// Close cancels running jobs and waits for them to finish.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// startJob runs a generation in the background.
func (s *Server) startJob(req parasha.Request) Job {
	ctx, cancel := context.WithCancel(s.base)
	job := s.jobs.Create(req, cancel)
	logging.JobEvent(job.ID, string(JobPending), "ref", req.Ref, "week", req.WeekOffset)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.runJob(ctx, job.ID, req)
	}()
	return job
}

func (s *Server) runJob(ctx context.Context, id string, req parasha.Request) {
	if !s.jobStep(id, "resolve", 10, "resolving verses") {
		return
	}
	reading, err := s.svc.Build(ctx, req)
	if err != nil {
		s.failJob(id, err)
		return
	}

	if !s.jobStep(id, "render", 60, "rendering slides") {
		return
	}
	d := s.svc.Deck(reading)
	data, err := d.Bytes()
	if err != nil {
		s.failJob(id, err)
		return
	}

	if !s.jobStep(id, "store", 80, "storing deck") {
		return
	}
	name := s.svc.FileName(reading)
	meta, err := s.store.Put(data, name, deck.MediaType)
	if err != nil {
		s.failJob(id, err)
		return
	}

	result := &JobResult{
		Hash:       meta.Hash,
		FileName:   name,
		Title:      reading.Title(),
		Ref:        reading.Ref,
		Slides:     d.SlideCount(),
		Verses:     len(reading.Result.Verses),
		Unresolved: reading.Result.Unresolved,
		Warnings:   reading.Result.Warnings,
		URL:        "/decks/" + meta.Hash,
	}
	job, ok := s.jobs.Update(id, func(j *Job) {
		j.Status = JobCompleted
		j.Stage = ""
		j.Progress = 100
		j.Result = result
	})
	if !ok {
		return
	}
	logging.JobEvent(id, string(job.Status), "hash", result.Hash, "slides", result.Slides)
	s.hub.Broadcast(ProgressMessage{
		Type:     "complete",
		JobID:    id,
		Progress: 100,
		Message:  "deck ready",
		Data: map[string]any{
			"hash":      result.Hash,
			"file_name": result.FileName,
			"url":       result.URL,
		},
	})
}

// jobStep advances a running job. It reports false once the job has been
// cancelled.
func (s *Server) jobStep(id, stage string, progress int, message string) bool {
	_, ok := s.jobs.Update(id, func(j *Job) {
		j.Status = JobRunning
		j.Stage = stage
		j.Progress = progress
	})
	if !ok {
		return false
	}
	logging.JobEvent(id, string(JobRunning), "stage", stage)
	s.hub.Broadcast(ProgressMessage{
		Type:     "progress",
		JobID:    id,
		Stage:    stage,
		Progress: progress,
		Message:  message,
	})
	return true
}

func (s *Server) failJob(id string, err error) {
	_, ok := s.jobs.Update(id, func(j *Job) {
		j.Status = JobFailed
		j.Error = err.Error()
	})
	if !ok {
		return
	}
	logging.JobEvent(id, string(JobFailed), "error", err)
	s.hub.Broadcast(ProgressMessage{
		Type:    "error",
		JobID:   id,
		Message: err.Error(),
	})
}
