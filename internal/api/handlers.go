package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	perrors "github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/ir"
	"github.com/FocuswithJustin/ParashaDeck/internal/deck"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
	"github.com/FocuswithJustin/ParashaDeck/internal/parasha"
	"github.com/FocuswithJustin/ParashaDeck/internal/validation"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Jobs    int    `json:"jobs"`
	Clients int    `json:"clients"`
}

// ReadingParams selects a reading. It is accepted as query parameters on
// GET endpoints and as the JSON body of POST /jobs.
type ReadingParams struct {
	Week   int    `json:"week,omitempty"`
	Date   string `json:"date,omitempty"` // YYYY-MM-DD
	Ref    string `json:"ref,omitempty"`
	Verses string `json:"verses,omitempty"`
	Max    int    `json:"max,omitempty"`
}

// Request converts params into a service request.
func (p ReadingParams) Request() (parasha.Request, error) {
	date, err := validation.ParseDate(p.Date)
	if err != nil {
		return parasha.Request{}, perrors.NewValidation("date", err.Error())
	}
	return parasha.Request{
		WeekOffset:  p.Week,
		Date:        date,
		Ref:         p.Ref,
		Verses:      p.Verses,
		MaxPerSlide: p.Max,
	}, nil
}

func paramsFromQuery(q url.Values) (ReadingParams, error) {
	p := ReadingParams{
		Date:   q.Get("date"),
		Ref:    q.Get("ref"),
		Verses: q.Get("verses"),
	}
	for name, dst := range map[string]*int{"week": &p.Week, "max": &p.Max} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, perrors.NewValidation(name, "must be an integer")
		}
		*dst = n
	}
	return p, nil
}

func requestFromQuery(r *http.Request) (parasha.Request, error) {
	p, err := paramsFromQuery(r.URL.Query())
	if err != nil {
		return parasha.Request{}, err
	}
	return p.Request()
}

// ResolveResponse is the JSON form of a reading.
type ResolveResponse struct {
	Title       string          `json:"title"`
	HebrewTitle string          `json:"hebrew_title,omitempty"`
	HebrewDate  string          `json:"hebrew_date,omitempty"`
	Date        string          `json:"date,omitempty"`
	Book        string          `json:"book"`
	Ref         string          `json:"ref"`
	Verses      int             `json:"verses"`
	Groups      []ir.SlideGroup `json:"groups"`
	Unresolved  []int           `json:"unresolved,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

func newResolveResponse(reading *parasha.Reading) ResolveResponse {
	resp := ResolveResponse{
		Title:      reading.Title(),
		Book:       reading.Book,
		Ref:        reading.Ref,
		Verses:     len(reading.Result.Verses),
		Groups:     reading.Groups,
		Unresolved: reading.Result.Unresolved,
		Warnings:   reading.Result.Warnings,
	}
	if e := reading.Entry; e != nil {
		resp.HebrewTitle = e.HebrewTitle
		resp.HebrewDate = e.HebrewDate
		if !e.Date.IsZero() {
			resp.Date = e.Date.Format(validation.DateLayout)
		}
	}
	return resp
}

// pageData feeds templates/index.html.
type pageData struct {
	Today   string
	Week    int
	Prev    int
	Next    int
	Reading *ResolveResponse
	Preview parasha.Preview
	Error   string

	GenerateURL template.URL
	ResolveURL  template.URL
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}

	data := pageData{Today: time.Now().Format("Monday, January 2, 2006")}
	status := http.StatusOK

	req, err := requestFromQuery(r)
	if err == nil {
		data.Week = req.WeekOffset
		data.Prev, data.Next = req.WeekOffset-1, req.WeekOffset+1
		query := r.URL.Query().Encode()
		data.GenerateURL = template.URL("/generate?" + query)
		data.ResolveURL = template.URL("/resolve?" + query)
		var reading *parasha.Reading
		if reading, err = s.svc.Build(r.Context(), req); err == nil {
			resp := newResolveResponse(reading)
			data.Reading = &resp
			data.Preview = s.svc.Preview(reading, s.cfg.PreviewVerses)
		}
	}
	if err != nil {
		status, _ = errorStatus(err)
		data.Error = publicMessage(status, err)
		logRequestError(r.Context(), status, err)
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		logging.ErrorContext(r.Context(), "render page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:  "ok",
		Version: s.cfg.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Jobs:    len(s.jobs.List()),
		Clients: s.hub.ClientCount(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}
	req, err := requestFromQuery(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	reading, err := s.svc.Build(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, newResolveResponse(reading))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}
	req, err := requestFromQuery(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	reading, err := s.svc.Build(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	data, err := s.svc.Deck(reading).Bytes()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	serveDeck(w, s.svc.FileName(reading), data)
}

func (s *Server) handleDeck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}
	if s.store == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Deck storage is disabled")
		return
	}
	hash := r.PathValue("hash")
	meta, err := s.store.Stat(hash)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	data, err := s.store.Get(hash)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	name := meta.Name
	if name == "" {
		name = hash[:12] + deck.Extension
	}
	serveDeck(w, name, data)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.jobs.List()
		respondMeta(w, http.StatusOK, jobs, len(jobs))

	case http.MethodPost:
		if s.store == nil {
			respondError(w, http.StatusServiceUnavailable, "STORE_DISABLED", "Deck storage is disabled")
			return
		}
		var params ReadingParams
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
			return
		}
		req, err := params.Request()
		if err == nil {
			err = req.Validate()
		}
		if err != nil {
			respondErr(w, r, err)
			return
		}
		respond(w, http.StatusAccepted, s.startJob(req))

	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateJobID(id); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.jobs.Get(id)
		if !ok {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		respond(w, http.StatusOK, job)

	case http.MethodDelete:
		// Running jobs are cancelled and kept for inspection; finished ones
		// are removed.
		if job, ok := s.jobs.Cancel(id); ok {
			logging.JobEvent(id, string(job.Status))
			respond(w, http.StatusOK, job)
			return
		}
		if !s.jobs.Delete(id) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	}
}

func serveDeck(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", deck.MediaType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, perrors.ErrMalformedRange):
		return http.StatusBadRequest, "MALFORMED_RANGE"
	case errors.Is(err, perrors.ErrMixedGrammar):
		return http.StatusBadRequest, "MIXED_GRAMMAR"
	case errors.Is(err, perrors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, perrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, perrors.ErrEmptyResult):
		return http.StatusUnprocessableEntity, "EMPTY_RESULT"
	case errors.Is(err, perrors.ErrUpstream):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func publicMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}

func logRequestError(ctx context.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		logging.ErrorContext(ctx, "request failed", "status", status, "error", err)
		return
	}
	logging.DebugContext(ctx, "request rejected", "status", status, "error", err)
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	logRequestError(r.Context(), status, err)
	respondError(w, status, code, publicMessage(status, err))
}

func respond(w http.ResponseWriter, status int, data any) {
	respondMeta(w, status, data, 0)
}

func respondMeta(w http.ResponseWriter, status int, data any, total int) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Total:     total,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}
