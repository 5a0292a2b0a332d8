// Package web is the operator surface: a small JSON API to pick the face and switch the ring on
// or off, a status page, a live frame stream and the usual debug endpoints.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrockway/ring-clock/control/clock"
	"github.com/jrockway/ring-clock/control/face"
	"github.com/jrockway/ring-clock/control/logging"
	"github.com/jrockway/ring-clock/control/screen"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/trace"
)

// Controller is the part of the clock the API drives.
type Controller interface {
	SetMode(ctx context.Context, m face.Mode) error
	SetScheme(ctx context.Context, name string) error
	SetOverride(ctx context.Context, o clock.Override) error
	Status() clock.Status
}

// Server holds what the handlers need.  Screen, Hub and Levels are optional.
type Server struct {
	Clock  Controller
	Screen *screen.Screen
	Hub    *Hub
	Levels logging.Leveler
	Logger *zap.SugaredLogger
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop().Sugar()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.serveStatusPage)
	r.Route("/api", func(r chi.Router) {
		r.Use(traceRequests)
		r.Get("/status", s.getStatus)
		r.Post("/mode", s.postMode)
		r.Post("/scheme", s.postScheme)
		r.Post("/override", s.postOverride)
		r.Get("/schemes", s.getSchemes)
		if s.Levels != nil {
			r.Get("/loglevel", s.getLogLevels)
			r.Post("/loglevel", s.postLogLevel)
		}
	})
	if s.Screen != nil {
		r.Handle("/display.png", s.Screen)
	}
	if s.Hub != nil {
		r.Handle("/ws", s.Hub)
	}
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/debug/requests", trace.Traces)
	r.HandleFunc("/debug/events", trace.Events)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		s.Logger.Debugw("http request", "method", req.Method, "path", req.URL.Path, "status", ww.Status(), "bytes", ww.BytesWritten(), "duration", time.Since(start))
	})
}

// traceRequests records each API call on /debug/requests.
func traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tr := trace.New("http", req.Method+" "+req.URL.Path)
		defer tr.Finish()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req.WithContext(trace.NewContext(req.Context(), tr)))
		tr.LazyPrintf("status %d", ww.Status())
		if ww.Status() >= 400 {
			tr.SetError()
		}
	})
}
