package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/archive"
	"github.com/mpapenbr/openf1-insights/pkg/model"
	"github.com/mpapenbr/openf1-insights/pkg/presenter"
)

const defaultSnapshotLimit = 20

// TrackFunc resolves the track of a session
type TrackFunc func(ctx context.Context, sessionKey int) (*model.Track, error)

type Option func(*Server)

func WithLatest(latest *presenter.Latest) Option {
	return func(s *Server) {
		s.latest = latest
	}
}

// WithArchive serves documents from store when no live document is available
func WithArchive(store archive.Store) Option {
	return func(s *Server) {
		s.archive = store
	}
}

func WithTrack(fn TrackFunc) Option {
	return func(s *Server) {
		s.track = fn
	}
}

func WithHub(hub *presenter.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

type Server struct {
	latest  *presenter.Latest
	archive archive.Store
	track   TrackFunc
	hub     *presenter.Hub
	l       *log.Logger
	router  *chi.Mux
}

type (
	errorResponse struct {
		Error string `json:"error"`
	}
	snapshotInfo struct {
		ID      string    `json:"id"`
		Mode    string    `json:"mode"`
		Created time.Time `json:"created"`
	}
)

func New(opts ...Option) *Server {
	ret := &Server{l: log.Default().Named("http")}
	for _, opt := range opts {
		opt(ret)
	}
	ret.router = ret.routes()
	return ret
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.hub != nil {
		r.Handle("/ws", s.hub)
	}
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.sessions)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/insights", s.insights)
			r.Get("/snapshots", s.snapshots)
			r.Get("/track", s.trackInfo)
		})
	})
	return r
}

// Handler returns the handler with CORS, otel and h2c applied
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(
		newCORS().Handler(otelhttp.NewHandler(s.router, "f1i")),
		&http2.Server{})
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // ctx is already done
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.l.Warn("error shutting down http server", log.ErrorField(err))
		}
	}()
	s.l.Info("http server listening", log.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) sessions(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []int{})
		return
	}
	keys, err := s.archive.Sessions(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	if s.latest != nil {
		if doc, found := s.latest.Get(key); found {
			writeJSON(w, http.StatusOK, doc)
			return
		}
	}
	if s.archive != nil {
		snap, err := s.archive.Latest(r.Context(), key)
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			//nolint:errcheck // client gone
			w.Write(snap.Data)
			return
		case !errors.Is(err, archive.ErrNotFound):
			s.internalError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "no insights for session"})
}

func (s *Server) snapshots(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "archive disabled"})
		return
	}
	limit := defaultSnapshotLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	list, err := s.archive.List(r.Context(), key, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	ret := make([]snapshotInfo, len(list))
	for i, snap := range list {
		ret[i] = snapshotInfo{ID: snap.ID.String(), Mode: snap.Mode, Created: snap.Created}
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) trackInfo(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	if s.track == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "track lookup disabled"})
		return
	}
	t, err := s.track(r.Context(), key)
	if err != nil {
		s.l.Warn("track lookup failed", log.Int("sessionKey", key), log.ErrorField(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.l.Error("request failed", log.ErrorField(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.l.Debug("request",
			log.String("requestId", middleware.GetReqID(r.Context())),
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("status", ww.Status()),
			log.Duration("duration", time.Since(start)))
	})
}

func sessionKey(w http.ResponseWriter, r *http.Request) (int, bool) {
	key, err := strconv.Atoi(chi.URLParam(r, "key"))
	if err != nil || key <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid session key"})
		return 0, false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client gone
	json.NewEncoder(w).Encode(v)
}

func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		MaxAge:         7200,
	})
}
