package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"newscache/internal/cache"
	"newscache/internal/store"
	"newscache/internal/worker"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Server struct {
	coordinator *cache.Coordinator
	objects     store.ObjectStore
	reconciler  *worker.Reconciler
	logger      *zap.Logger
	router      *mux.Router
	server      *http.Server
}

func NewServer(coordinator *cache.Coordinator, objects store.ObjectStore, reconciler *worker.Reconciler, logger *zap.Logger) *Server {
	s := &Server{
		coordinator: coordinator,
		objects:     objects,
		reconciler:  reconciler,
		logger:      logger,
		router:      mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/news/{id}", s.handleResolve).Methods("GET")
	s.router.HandleFunc("/images/{uid}/{role}/{filename}", s.handleImage).Methods("GET")
	s.router.HandleFunc("/internal/reconcile", s.handleReconcile).Methods("POST")
}

// Start launches the HTTP server
func (s *Server) Start(port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("Web server listening", zap.String("addr", port))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := "/" + mux.Vars(r)["id"]

	article, freshness, err := s.coordinator.Resolve(r.Context(), id)
	switch {
	case errors.Is(err, cache.ErrArticleNotFound):
		s.writeError(w, http.StatusNotFound, "article not found")
		return
	case errors.Is(err, cache.ErrUpstreamUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "upstream unavailable")
		return
	case err != nil && article == nil:
		s.logger.Error("Resolve failed", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to resolve article")
		return
	case err != nil:
		// The fetch succeeded but persisting it did not; the article is
		// still valid, so serve it.
		s.logger.Error("Serving unpersisted article", zap.String("id", id), zap.Error(err))
	}

	maxAge := int(cache.TTL(id).Seconds())
	w.Header().Set("X-Cache", string(freshness))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	s.writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path := fmt.Sprintf("images/%s/%s/%s", vars["uid"], vars["role"], vars["filename"])

	data, contentType, err := s.objects.Get(r.Context(), path)
	if err == store.ErrNotFound {
		s.writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to read mirrored image", zap.String("path", path), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read image")
		return
	}

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Write(data)
}

// handleReconcile lets an external scheduler trigger a run. The run continues
// in the background; the trigger is answered immediately.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	go func() {
		if _, err := s.reconciler.Run(context.Background()); err != nil {
			s.logger.Error("Triggered reconciliation failed", zap.Error(err))
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
