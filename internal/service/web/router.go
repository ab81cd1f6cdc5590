package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Hikita1337/crashfeed/internal/service/collector"
)

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/games", s.handleGames)
	r.Get("/start", s.handleStart)
	r.Get("/status", s.handleStatus)
	r.Get("/logs", s.handleLogs)
	r.Post("/shutdown", s.handleShutdown)

	return r
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rounds.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	startID, err := strconv.ParseInt(q.Get("startId"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "startId is required and must be an integer")
		return
	}
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "count is required and must be an integer")
		return
	}

	req := collector.Request{
		StartID:      startID,
		Count:        count,
		Mode:         collector.Mode(q.Get("mode")),
		RefreshToken: q.Get("refreshToken"),
	}
	if raw := q.Get("batchSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "batchSize must be an integer")
			return
		}
		req.BatchSize = size
	}

	switch err := s.driver.Start(req); {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "collection started",
		})
	case errors.Is(err, collector.ErrRunActive):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"run": s.driver.Status(),
	}
	if s.feed != nil {
		out["feed"] = s.feed.Health()
	}
	if s.agg != nil {
		out["aggregateRounds"] = s.agg.Rounds()
		out["aggregate"] = s.agg.Snapshot()
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	out := map[string]any{
		"entries": s.logs.Recent(n),
		"size":    s.logs.Len(),
		"bytes":   s.logs.Bytes(),
	}
	if s.feed != nil {
		out["feed"] = s.feed.Health()
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "shutting down",
	})
	s.requestShutdown()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	js, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(js)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
