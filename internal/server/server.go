// Package server exposes the job pipeline over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/jobs"
	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/pipeline"
	"pdf2zh-server/internal/types"
)

const (
	maxUploadBytes  = 512 << 20
	pdfDataPrefix   = "data:application/pdf;base64,"
	shutdownTimeout = 10 * time.Second
)

// Pipeline runs the four job kinds
type Pipeline interface {
	Translate(ctx context.Context, input string, opts *config.TranslateOptions, update pipeline.Update) ([]string, error)
	Crop(ctx context.Context, input string, opts *config.TranslateOptions, update pipeline.Update) ([]string, error)
	CropCompare(ctx context.Context, input string, opts *config.TranslateOptions, update pipeline.Update) ([]string, error)
	Compare(ctx context.Context, input string, opts *config.TranslateOptions, update pipeline.Update) ([]string, error)
}

// Options configures a Server
type Options struct {
	Addr      string
	OutputDir string
	Clip      types.ClipSettings
	Pipeline  Pipeline
	Registry  *jobs.Registry
	Hub       *Hub
	// Metrics serves /metrics when set
	Metrics http.Handler
	Version string
	Mode    string
	// EngineReady reports whether the engine executable is available
	EngineReady func() bool
	// JobContext is the parent context of every job; it defaults to Background
	JobContext context.Context
}

// Server is the HTTP front end of the job registry
type Server struct {
	opts   Options
	router chi.Router
}

// New creates a server and registers its routes
func New(opts Options) *Server {
	if opts.JobContext == nil {
		opts.JobContext = context.Background()
	}
	if opts.EngineReady == nil {
		opts.EngineReady = func() bool { return true }
	}
	s := &Server{opts: opts}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors)

	r.Post("/translate", s.submit(jobs.KindTranslate))
	r.Post("/crop", s.submit(jobs.KindCrop))
	r.Post("/crop-compare", s.submit(jobs.KindCropCompare))
	r.Post("/compare", s.submit(jobs.KindCompare))

	r.Get("/progress/{id}", s.handleProgress)
	r.Get("/result/{id}", s.handleResult)
	r.Get("/jobs/{id}", s.handleJob)
	r.Get("/translatedFile/{name}", s.handleDownload)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", s.handleTasks)
		r.Get("/history", s.handleHistory)
	})
	if s.opts.Hub != nil {
		r.Get("/events", s.opts.Hub.ServeHTTP)
	}
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	s.router = r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done and then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logger.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// jobRequest is the body of the four submission endpoints. Options sit at
// the top level next to the file.
type jobRequest struct {
	FileName    string      `json:"fileName"`
	FileContent string      `json:"fileContent"`
	Async       config.Flag `json:"async"`
	config.TranslateOptions
}

func (s *Server) run(kind string) func(context.Context, string, *config.TranslateOptions, pipeline.Update) ([]string, error) {
	switch kind {
	case jobs.KindCrop:
		return s.opts.Pipeline.Crop
	case jobs.KindCropCompare:
		return s.opts.Pipeline.CropCompare
	case jobs.KindCompare:
		return s.opts.Pipeline.Compare
	}
	return s.opts.Pipeline.Translate
}

func (s *Server) submit(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err := dec.Decode(&req); err != nil {
			writeError(w, types.NewAppError(types.ErrInvalidInput, "invalid request body", err))
			return
		}
		opts := &req.TranslateOptions
		if err := opts.Normalize(s.opts.Clip); err != nil {
			writeError(w, err)
			return
		}
		input, err := s.saveUpload(req.FileName, req.FileContent)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := pipeline.Validate(kind, input, opts); err != nil {
			writeError(w, err)
			return
		}

		run := s.run(kind)
		id := s.opts.Registry.Create(kind, jobs.Payload{
			FileName: req.FileName,
			Engine:   opts.Engine,
			Service:  opts.ActiveService(),
		})
		s.opts.Registry.RunInBackground(s.opts.JobContext, id, func(ctx context.Context, update func(jobs.Patch)) ([]string, error) {
			return run(ctx, input, opts, update)
		})

		if req.Async {
			writeJSON(w, http.StatusAccepted, map[string]interface{}{
				"status": "processing",
				"taskId": id,
			})
			return
		}

		job, err := s.opts.Registry.Wait(r.Context(), id)
		if err != nil {
			// client went away; the job keeps running
			logger.Warn("stopped waiting for job", logger.String("job", id), logger.Err(err))
			return
		}
		writeOutcome(w, job)
	}
}

// saveUpload decodes the base64 file content into the output directory
func (s *Server) saveUpload(name, content string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid file name", name, nil)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "", types.NewAppErrorWithDetails(types.ErrInvalidInput, "file must be a PDF", name, nil)
	}
	content = strings.TrimPrefix(content, pdfDataPrefix)
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", types.NewAppError(types.ErrInvalidInput, "fileContent is not valid base64", err)
	}
	if len(data) == 0 {
		return "", types.NewAppError(types.ErrInvalidInput, "fileContent is empty", nil)
	}
	if err := os.MkdirAll(s.opts.OutputDir, 0755); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create output directory", err)
	}
	path := filepath.Join(s.opts.OutputDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to save upload", err)
	}
	logger.Info("upload saved", logger.String("path", path), logger.Int("bytes", len(data)))
	return path, nil
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := s.opts.Registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, jobs.ErrJobNotFound)
		return
	}
	status := "processing"
	switch job.Status {
	case jobs.StatusCompleted:
		status = "completed"
	case jobs.StatusFailed:
		status = "error"
	}
	body := map[string]interface{}{
		"status":          status,
		"progress":        job.Progress,
		"message":         job.Message,
		"elapsed_seconds": int(job.Elapsed(time.Now()).Seconds()),
	}
	if job.TotalPages > 0 {
		body["totalPages"] = job.TotalPages
	}
	if job.Status == jobs.StatusFailed {
		body["message"] = job.Error
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.opts.Registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, jobs.ErrJobNotFound)
		return
	}
	if !job.Status.Terminal() {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":   "processing",
			"progress": job.Progress,
		})
		return
	}
	writeOutcome(w, job)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.opts.Registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, jobs.ErrJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": s.opts.Registry.Active()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": s.opts.Registry.History()})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, types.NewAppError(types.ErrInvalidInput, "invalid file name", err))
		return
	}
	base, err := filepath.Abs(s.opts.OutputDir)
	if err != nil {
		writeError(w, types.NewAppError(types.ErrInternal, "invalid output directory", err))
		return
	}
	full, err := filepath.Abs(filepath.Join(base, name))
	if err != nil || !within(base, full) {
		writeError(w, types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid path", name, err))
		return
	}
	f, err := os.Open(full)
	if err != nil {
		writeError(w, types.NewAppErrorWithDetails(types.ErrFileNotFound, "file not found", name, err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, types.NewAppErrorWithDetails(types.ErrFileNotFound, "file not found", name, err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(full)))
	http.ServeContent(w, r, filepath.Base(full), info.ModTime(), f)
}

// within reports whether path is base or below it
func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"version":      s.opts.Version,
		"message":      "pdf2zh server is running",
		"mode":         s.opts.Mode,
		"engine_ready": s.opts.EngineReady(),
	})
}

// writeOutcome writes the final response of a finished job
func writeOutcome(w http.ResponseWriter, job jobs.Job) {
	if job.Status == jobs.StatusFailed {
		body := errorBody(job.Error, job.ErrorKind, job.ExitCode)
		writeJSON(w, statusForCode(types.ErrorCode(job.ErrorKind)), body)
		return
	}
	files := make([]string, len(job.Result))
	for i, p := range job.Result {
		files[i] = filepath.Base(p)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"fileList": files,
	})
}

// writeError writes the error payload for err
func writeError(w http.ResponseWriter, err error) {
	code := types.CodeOf(err)
	kind := string(code)
	var exit *int
	var ec jobs.ErrorDetails
	if errors.As(err, &ec) {
		kind = ec.ErrorKind()
		n := ec.ExitStatus()
		exit = &n
	}
	message := err.Error()
	var reasoner jobs.Reasoner
	if errors.As(err, &reasoner) && reasoner.Reason() != "" {
		message = reasoner.Reason()
	}
	writeJSON(w, statusForCode(code), errorBody(message, kind, exit))
}

func errorBody(message, kind string, exitCode *int) map[string]interface{} {
	body := map[string]interface{}{
		"status":  "error",
		"ok":      false,
		"message": message,
	}
	if kind != "" {
		body["errorType"] = kind
	}
	if exitCode != nil {
		body["exitCode"] = *exitCode
	}
	return body
}

func statusForCode(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidTransition, types.ErrInvalidInput:
		return http.StatusBadRequest
	case types.ErrJobNotFound, types.ErrFileNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", logger.Err(err))
	}
}
