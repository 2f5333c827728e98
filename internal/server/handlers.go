package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/contenttype"
	"github.com/hyperjump/kensaku/internal/importer"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/source"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// SearchRequest is the body of POST /api/v1/search. An empty Type runs a general search.
type SearchRequest struct {
	Query             string         `json:"query"`
	Type              string         `json:"type,omitempty"`
	Constraints       map[string]any `json:"constraints,omitempty"`
	Order             string         `json:"order,omitempty"`
	GroupByDiscussion bool           `json:"group_by_discussion,omitempty"`
	MaxResults        int            `json:"max_results,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	logger := s.requestLogger(r)
	logger.Debug("search request", zap.String("query", utils.Truncate(req.Query, 200)), zap.String("type", req.Type), zap.Int("max_results", req.MaxResults))

	var typeHandler search.TypeHandler
	if req.Type != "" {
		th, err := contenttype.Get(req.Type)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		typeHandler = th
	}
	h, err := s.newHandler()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sink := search.NewSearcher()
	h.SetSearcher(sink)

	start := time.Now()
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.config.Search.DefaultMaxResults
	}
	var results []models.ContentRef
	if typeHandler != nil {
		results, err = h.SearchType(r.Context(), typeHandler, req.Query, search.Constraints(req.Constraints), req.Order, req.GroupByDiscussion, maxResults)
	} else {
		results, err = h.SearchGeneral(r.Context(), req.Query, search.Constraints(req.Constraints), req.Order, maxResults)
	}
	if err != nil {
		if errors.Is(err, source.ErrUnsupportedOrder) || errors.Is(err, source.ErrUnknownJoin) || errors.Is(err, storage.ErrInvalidIdentifier) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.ContentRef{}
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Results:   results,
		Errors:    sink.Errors(),
		Warnings:  sink.Warnings(),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     req.Query,
	})
}

func (s *Server) handleUserContent(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var maxDate int64
	if v := r.URL.Query().Get("max_date"); v != "" {
		if maxDate, err = strconv.ParseInt(v, 10, 64); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid max_date")
			return
		}
	}
	limit := s.config.Search.DefaultMaxResults
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	h, err := s.newHandler()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results, err := h.ExecuteSearchByUserID(r.Context(), userID, maxDate, limit)
	if err != nil {
		s.requestLogger(r).Error("user content failed", zap.Int64("user_id", userID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.ContentRef{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "results": results})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var item models.IndexItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if item.ContentType == "" || item.ContentID <= 0 {
		s.respondError(w, http.StatusBadRequest, "content_type and content_id are required")
		return
	}
	h, err := s.newHandler()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.InsertIntoIndex(r.Context(), &item); err != nil {
		s.requestLogger(r).Error("indexing failed", zap.String("key", models.ContentKey(item.ContentType, item.ContentID)), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"content_type": item.ContentType,
		"content_id":   item.ContentID,
		"status":       "indexed",
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	contentID, err := strconv.ParseInt(chi.URLParam(r, "contentID"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid content id")
		return
	}
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h, err := s.newHandler()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.UpdateIndex(r.Context(), contentType, contentID, fields); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, storage.ErrInvalidIdentifier):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.requestLogger(r).Error("update failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"content_type": contentType,
		"content_id":   contentID,
		"status":       "updated",
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h, err := s.newHandler()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.DeleteFromIndex(r.Context(), contentType, ids); err != nil {
		s.requestLogger(r).Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"content_type": contentType,
		"deleted":      len(ids),
		"status":       "deleted",
	})
}

// handleImport runs a legacy JSON-lines export posted as the request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	h, err := s.newHandler()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	im := importer.New(h, s.deps.Store, importer.WithLogger(s.requestLogger(r)))
	res, err := im.Import(r.Context(), r.Body)
	if err != nil {
		s.requestLogger(r).Error("import failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count records failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	docs, err := s.deps.Keyword.DocCount()
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{
		"records":         records,
		"documents":       docs,
		"source_handler":  s.handlerName,
		"source_handlers": search.SourceHandlers(),
		"content_types":   contenttype.Names(),
	}
	if fp, err := storage.MeasureFootprint(s.config.Storage.DatabasePath, s.config.Storage.BleveIndexPath); err == nil {
		resp["disk_usage_bytes"] = fp.Total()
		resp["footprint"] = fp
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
}

// parseIDs parses a comma-separated id list. Empty input yields no ids.
func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.New("invalid id " + strconv.Quote(part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
