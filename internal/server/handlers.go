package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/coursegraph/internal/models"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("term", query.SelectedTerm().String()),
		zap.String("query", query.Query),
		zap.Int("offset", query.Offset),
		zap.Int("limit", query.Limit),
	)
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.respondQueryError(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	var query models.GraphQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("graph request",
		zap.String("term", query.SelectedTerm().String()),
		zap.String("major", query.Major),
		zap.Strings("courses", query.Courses),
	)
	response, err := s.engine.ExtractGraph(r.Context(), &query)
	if err != nil {
		s.respondQueryError(w, "graph extraction failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"terms": s.catalog.Terms()})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	term, err := models.ParseTerm(chi.URLParam(r, "term"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("reload request", zap.String("term", term.String()))
	status, err := s.catalog.Rebuild(r.Context(), term)
	if err != nil {
		s.respondQueryError(w, "reload failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type getCoursesRequest struct {
	SearchTerm   string `json:"searchTerm"`
	ItemsPerPage int    `json:"itemsPerPage"`
	StartFrom    int    `json:"startFrom"`
	Year         string `json:"year"`
	Term         string `json:"term"`
}

// handleGetCourses answers with a bare array of matches. A blank search term
// yields an empty array rather than every course.
func (s *Server) handleGetCourses(w http.ResponseWriter, r *http.Request) {
	var req getCoursesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Year == "" || req.Term == "" {
		s.respondError(w, http.StatusBadRequest, "Missing 'year' or 'term' in request body")
		return
	}
	matches := []*models.EnrichedCourseRecord{}
	if req.SearchTerm == "" {
		s.respondJSON(w, http.StatusOK, matches)
		return
	}
	response, err := s.engine.Search(r.Context(), &models.SearchQuery{
		Year:   req.Year,
		Term:   req.Term,
		Query:  req.SearchTerm,
		Offset: req.StartFrom,
		Limit:  req.ItemsPerPage,
	})
	if err != nil {
		s.respondQueryError(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, append(matches, response.Matches...))
}

type generateListRequest struct {
	Major   string   `json:"selectedMajorServ"`
	Courses []string `json:"selectedCoursesServ"`
	Year    string   `json:"year"`
	Term    string   `json:"term"`
}

type elementNode struct {
	Data    elementNodeData `json:"data"`
	Classes string          `json:"classes"`
}

type elementNodeData struct {
	ID string `json:"id"`
}

type elementEdge struct {
	Data models.GraphEdge `json:"data"`
}

type generateListResponse struct {
	Nodes []elementNode `json:"nodes"`
	Edges []elementEdge `json:"edges"`
}

func (s *Server) handleGenerateList(w http.ResponseWriter, r *http.Request) {
	var req generateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	graph, err := s.engine.ExtractGraph(r.Context(), &models.GraphQuery{
		Year:    req.Year,
		Term:    req.Term,
		Major:   req.Major,
		Courses: req.Courses,
	})
	if err != nil {
		s.respondQueryError(w, "graph extraction failed", err)
		return
	}
	out := generateListResponse{
		Nodes: make([]elementNode, 0, len(graph.Nodes)),
		Edges: make([]elementEdge, 0, len(graph.Edges)),
	}
	for _, n := range graph.Nodes {
		class := "not_selected"
		if n.Selected {
			class = "selected"
		}
		out.Nodes = append(out.Nodes, elementNode{Data: elementNodeData{ID: n.ID}, Classes: class})
	}
	for _, e := range graph.Edges {
		out.Edges = append(out.Edges, elementEdge{Data: e})
	}
	s.respondJSON(w, http.StatusOK, out)
}

// statusFor maps query and rebuild errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnknownTerm), errors.Is(err, models.ErrUnknownMajor):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmptyDataset):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondQueryError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
