package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/samber/lo"

	"nerdemo/internal/annotate"
	"nerdemo/internal/audit"
	"nerdemo/internal/content"
	"nerdemo/internal/labels"
	"nerdemo/internal/stats"
)

type annotateRequest struct {
	Text string `json:"text"`
}

type annotateResponse struct {
	Entities []annotate.Annotation `json:"entities"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type labelEntry struct {
	ID       int    `json:"id"`
	Tag      string `json:"tag"`
	Excluded bool   `json:"excluded"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleAPIAnnotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	var req annotateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	entities, err := s.annotator.AnnotateFrom(r.Context(), "api", req.Text)
	switch {
	case errors.Is(err, annotate.ErrEmptyInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: content.EmptyPrompt})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		if entities == nil {
			entities = []annotate.Annotation{}
		}
		writeJSON(w, http.StatusOK, annotateResponse{Entities: entities})
	}
}

func (s *Server) handleAPILabels(w http.ResponseWriter, _ *http.Request) {
	excluded := s.annotator.ExcludedTags()
	out := lo.Map(labels.Tags(), func(tag string, id int) labelEntry {
		return labelEntry{ID: id, Tag: tag, Excluded: lo.Contains(excluded, tag)}
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIStats(w http.ResponseWriter, _ *http.Request) {
	var entries []audit.Entry
	if s.auditFile != "" {
		var err error
		entries, err = audit.ParseFile(s.auditFile)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
	}
	st := stats.CollectFromEntries(entries, stats.Options{
		Now:    time.Now().UTC(),
		Status: "running",
		Uptime: time.Since(s.startedAt),
		Port:   s.port,
	})
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
