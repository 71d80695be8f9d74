// Package server exposes a preview session over HTTP.
//
// An external renderer drives the session the same way the terminal
// scrubber does: it loads a project, moves the current layer and pulls the
// merged geometry. Frame, progress and loading events are pushed as
// server-sent events on /api/events.
//
//	POST /api/project             load a JSON project (body) or ?path= under the project dir
//	POST /api/project/synthetic   load a generated project
//	PUT  /api/layer/{n}           request layers 1..n; 202, the frame follows as an event
//	GET  /api/status              session status
//	GET  /api/frame               the displayed frame (?format=obj|json for the mesh)
//	GET  /api/geometry/{n}        layers 1..n rendered synchronously (?format=obj|json)
//	GET  /api/events              server-sent events
//
// Errors are JSON objects {"error": {"code": ..., "message": ...}} whose HTTP
// status is derived from the error code.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/layerview/pkg/errors"
	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/pipeline"
	"github.com/matzehuels/layerview/pkg/slice"
)

// maxBody bounds uploaded project documents.
const maxBody = 256 << 20

// Options configures a [Server].
type Options struct {
	// ProjectDir is the root for ?path= project loads. Empty disables them.
	ProjectDir string

	// Broker receives session events for /api/events. It should be the
	// broker whose callbacks were installed on the session.
	Broker *Broker

	Logger *log.Logger
}

// Server serves one session.
type Server struct {
	sess       *pipeline.Session
	runner     *pipeline.Runner
	broker     *Broker
	projectDir string
	logger     *log.Logger
	router     chi.Router
}

// New returns a server for sess. runner handles loads and exports so they
// share its artifact cache.
func New(sess *pipeline.Session, runner *pipeline.Runner, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if runner == nil {
		runner = pipeline.NewRunner(nil, nil, opts.Logger)
	}
	if opts.Broker == nil {
		opts.Broker = NewBroker()
	}
	s := &Server{
		sess:       sess,
		runner:     runner,
		broker:     opts.Broker,
		projectDir: opts.ProjectDir,
		logger:     opts.Logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/project", s.handleLoadProject)
		r.Post("/project/synthetic", s.handleSynthetic)
		r.Put("/layer/{n}", s.handleSetLayer)
		r.Get("/frame", s.handleFrame)
		r.Get("/geometry/{n}", s.handleGeometry)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Serve serves on ln until ctx ends, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("serving", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// =============================================================================
// Handlers
// =============================================================================

type layerResponse struct {
	Requested int    `json:"requested"`
	ProjectID string `json:"project_id"`
}

type projectResponse struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Layers    int    `json:"layers"`
}

type frameResponse struct {
	ProjectID string `json:"project_id"`
	Layers    int    `json:"layers"`
	Vertices  int    `json:"vertex_count"`
	Triangles int    `json:"triangle_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Status())
}

func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	var (
		id  string
		err error
	)
	if rel := r.URL.Query().Get("path"); rel != "" {
		if s.projectDir == "" {
			s.writeError(w, errors.New(errors.ErrCodeUnsupported, "loading by path is disabled"))
			return
		}
		if err := errors.ValidatePath(rel); err != nil {
			s.writeError(w, err)
			return
		}
		id, err = s.runner.LoadFile(s.sess, filepath.Join(s.projectDir, filepath.FromSlash(rel)))
	} else {
		data, rerr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if rerr != nil {
			s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, rerr, "read body"))
			return
		}
		id, err = s.runner.LoadBytes(s.sess, data)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeProject(w, id)
}

type syntheticRequest struct {
	Name   string  `json:"name"`
	Layers int     `json:"layers"`
	Parts  int     `json:"parts"`
	Size   float64 `json:"part_size"`
	Taper  float64 `json:"taper"`
}

func (s *Server) handleSynthetic(w http.ResponseWriter, r *http.Request) {
	var req syntheticRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
			return
		}
	}
	if req.Layers > errors.MaxLayers {
		s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "too many layers: %d (max %d)", req.Layers, errors.MaxLayers))
		return
	}
	p := slice.Synthetic(slice.SyntheticOptions{
		Name:     req.Name,
		Layers:   req.Layers,
		Parts:    req.Parts,
		PartSize: req.Size,
		Taper:    req.Taper,
	})
	id, err := s.runner.Load(s.sess, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeProject(w, id)
}

func (s *Server) writeProject(w http.ResponseWriter, id string) {
	p, _ := s.sess.Project()
	writeJSON(w, http.StatusCreated, projectResponse{ProjectID: id, Name: p.Name, Layers: p.LayerCount()})
}

func (s *Server) handleSetLayer(w http.ResponseWriter, r *http.Request) {
	n, err := layerParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.sess.SetCurrentLayer(n); err != nil {
		s.writeError(w, err)
		return
	}
	_, id := s.sess.Project()
	writeJSON(w, http.StatusAccepted, layerResponse{Requested: n, ProjectID: id})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	f, ok := s.sess.Current()
	if !ok {
		s.writeError(w, errors.New(errors.ErrCodeNotFound, "no frame displayed yet"))
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		writeJSON(w, http.StatusOK, frameResponse{
			ProjectID: f.ProjectID,
			Layers:    f.Layers,
			Vertices:  len(f.Geometry.Vertices),
			Triangles: f.Geometry.TriangleCount(),
		})
		return
	}
	data, err := lvio.Render(f.Geometry, format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeMesh(w, format, data, false)
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	n, err := layerParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = lvio.FormatJSON
	}
	data, hit, err := s.runner.ExportWithCacheInfo(r.Context(), s.sess, n-1, format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeMesh(w, format, data, hit)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, errors.New(errors.ErrCodeUnsupported, "streaming not supported"))
		return
	}
	ch, unsubscribe := s.broker.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
			flusher.Flush()
		}
	}
}

// =============================================================================
// Helpers
// =============================================================================

func layerParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "n")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidLayer, "invalid layer number: %q", raw)
	}
	return n, nil
}

func writeMesh(w http.ResponseWriter, format string, data []byte, hit bool) {
	switch format {
	case lvio.FormatOBJ:
		w.Header().Set("Content-Type", "model/obj")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	if status >= 500 {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: errors.UserMessage(err)}})
}

// StatusFor maps an error onto an HTTP status code.
func StatusFor(err error) int {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidLayer, errors.ErrCodeInvalidProject,
		errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidConfig, errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case errors.ErrCodeNoProject:
		return http.StatusConflict
	case errors.ErrCodeNetwork:
		return http.StatusBadGateway
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
