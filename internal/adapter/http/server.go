package http

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/service"
)

// Server is the push-invocation surface: event-triggered transcode calls,
// job enqueueing for the in-process worker, and job inspection. Browser
// concerns (auth, sessions, uploads) live in the platform API, not here.
type Server struct {
	mux      *http.ServeMux
	handlers *Handlers
}

func NewServer(jobs port.JobStore, blobs port.BlobStore, runner *service.Runner, notifier *service.Notifier, log *logrus.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		handlers: NewHandlers(jobs, blobs, runner, notifier, log),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/transcode", s.handlers.Transcode())
	s.mux.HandleFunc("POST /v1/jobs", s.handlers.EnqueueJob())
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handlers.GetJob())
	s.mux.HandleFunc("GET /healthz", s.handlers.Health())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
