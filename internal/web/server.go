// Package web exposes the archive over a JSON API for browsing and search.
// It only reads what the core has stored; no archiving happens here.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pressarc/wp-archive/internal/search"
	"github.com/pressarc/wp-archive/internal/storage"
	"github.com/pressarc/wp-archive/internal/wordpress"
)

type Server struct {
	store  *storage.Store
	idx    *search.Index
	logger *slog.Logger
}

func NewServer(store *storage.Store, idx *search.Index, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, idx: idx, logger: logger}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/api/search", s.handleSearch)
	r.Get("/api/versions", s.handleVersions)
	r.Get("/api/posts", s.handlePostsFor)
	r.Get("/api/edges", s.handleEdges)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/sessions", s.handleSessions)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.idx != nil {
		if n, err := s.idx.Count(); err == nil {
			resp["indexed"] = n
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.idx == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search index not available")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	var types []string
	if t := r.URL.Query().Get("types"); t != "" {
		for _, ct := range strings.Split(t, ",") {
			if !wordpress.ContentType(ct).Valid() {
				s.writeError(w, http.StatusBadRequest, "unknown content type "+ct)
				return
			}
			types = append(types, ct)
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	results, err := s.idx.Search(query, types, limit)
	if err != nil {
		s.logger.Error("search", "query", query, "error", err)
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	ct := r.URL.Query().Get("type")
	if !wordpress.ContentType(ct).Valid() {
		s.writeError(w, http.StatusBadRequest, "missing or unknown type parameter")
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing or invalid id parameter")
		return
	}

	versions, err := s.store.ListVersions(r.Context(), ct, id)
	if err != nil {
		s.logger.Error("list versions", "type", ct, "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if len(versions) == 0 {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"content_type": ct,
		"remote_id":    id,
		"versions":     versions,
	})
}

func (s *Server) handlePostsFor(w http.ResponseWriter, r *http.Request) {
	relatedType := r.URL.Query().Get("related_type")
	if relatedType != storage.RelatedCategory && relatedType != storage.RelatedTag {
		s.writeError(w, http.StatusBadRequest, "related_type must be category or tag")
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("related_id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing or invalid related_id parameter")
		return
	}

	posts, err := s.store.PostsFor(r.Context(), relatedType, id)
	if err != nil {
		s.logger.Error("posts for", "related_type", relatedType, "related_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"related_type": relatedType,
		"related_id":   id,
		"posts":        posts,
	})
}

func (s *Server) handleEdges(w http.ResponseWriter, r *http.Request) {
	postID, err := strconv.ParseInt(r.URL.Query().Get("post"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing or invalid post parameter")
		return
	}
	version, err := strconv.Atoi(r.URL.Query().Get("version"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing or invalid version parameter")
		return
	}

	edges, err := s.store.EdgesFor(r.Context(), postID, version)
	if err != nil {
		s.logger.Error("edges for", "post", postID, "version", version, "error", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"post":    postID,
		"version": version,
		"edges":   edges,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	latest, err := s.store.LatestSession(r.Context())
	if err != nil {
		s.logger.Error("latest session", "error", err)
		s.writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"content_types":  counts,
		"latest_session": latest,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
