// Package api serves a workspace over HTTP: note CRUD, sharing, the derived
// views (backlinks, tags, graph) and a server-sent event stream of pushed
// updates for an open note.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aidanlsb/dendrite/internal/errcode"
	"github.com/aidanlsb/dendrite/internal/workspace"
)

// DefaultKeepAlive is the SSE comment interval that keeps idle streams open.
const DefaultKeepAlive = 25 * time.Second

// Server holds the HTTP handlers of one workspace.
type Server struct {
	ws        *workspace.Workspace
	logger    *slog.Logger
	keepAlive time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeepAlive sets the SSE keep-alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// New creates a Server over ws.
func New(ws *workspace.Workspace, opts ...Option) *Server {
	s := &Server{ws: ws, logger: slog.Default(), keepAlive: DefaultKeepAlive}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/notes", s.ListNotes)
		r.Post("/notes", s.CreateNote)
		r.Route("/notes/{id}", func(r chi.Router) {
			r.Get("/", s.GetNote)
			r.Put("/", s.SaveNote)
			r.Delete("/", s.DeleteNote)
			r.Post("/duplicate", s.DuplicateNote)
			r.Post("/links", s.InsertLink)
			r.Get("/shares", s.ListShares)
			r.Post("/shares", s.ShareNote)
			r.Delete("/shares/{grantee}", s.Unshare)
			r.Get("/events", s.Events)
		})
		r.Get("/tags", s.ListTags)
		r.Get("/graph", s.GetGraph)
		r.Get("/titles/{title}", s.ResolveTitle)
		r.Get("/suggest", s.Suggest)
	})
	return r
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorInfo `json:"error"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errcode.Of(err)
	status := errcode.HTTPStatus(code)
	info := ErrorInfo{Code: code, Message: err.Error()}
	var verr *workspace.ValidationError
	if errors.As(err, &verr) {
		info.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, ErrorBody{Error: info})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorInfo{Code: errcode.InvalidInput, Message: msg}})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "user": s.ws.User().Email})
}
