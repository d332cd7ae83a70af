package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rlviewer/telemetry/internal/framecodec"
	"github.com/rlviewer/telemetry/internal/job"
	"github.com/rlviewer/telemetry/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleSubmitReplay accepts a decoded replay document and queues it for
// processing. The client may pin the id with the ?id= query parameter.
func (s *Server) handleSubmitReplay(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReplayBody))
	if err := dec.Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON replay document: "+err.Error())
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		id = newReplayID()
	}

	if err := s.runner.Submit(job.Job{ID: id, Document: doc}); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, job.ErrInFlight) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	// a resubmitted id must not serve stale metadata
	s.replays.Invalidate(id)

	s.log.Info("replay submitted", "replay_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": "/api/replays/" + id + "/status",
	})
}

func (s *Server) handleListReplays(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	summaries, err := s.store.ListReplays(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"replays": summaries})
}

// handleStatus reports the job state for a replay. A replay whose job
// entry has been swept but that exists in storage reads as completed.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if st, ok := s.jobs.Get(id); ok {
		writeJSON(w, http.StatusOK, st)
		return
	}

	if _, err := s.store.GetReplay(r.Context(), id); err == nil {
		writeJSON(w, http.StatusOK, job.Status{
			ID:       id,
			State:    job.StateCompleted,
			Progress: 100,
		})
		return
	}

	writeError(w, http.StatusNotFound, "unknown replay "+id)
}

func (s *Server) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if replay, ok := s.replays.Get(id); ok {
		writeJSON(w, http.StatusOK, replay)
		return
	}

	replay, err := s.store.GetReplay(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown replay "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.replays.Add(replay)
	writeJSON(w, http.StatusOK, replay)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	frames, err := s.store.GetFrames(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown replay "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(frames)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frames)
}

// handleFramesJSON decodes the stored frame stream back to JSON. Debug
// surface for viewer development; the binary endpoint is the hot path.
func (s *Server) handleFramesJSON(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	blob, err := s.store.GetFrames(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown replay "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	frames, err := framecodec.Decode(blob)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stored frames are corrupt: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"count":  len(frames),
		"frames": frames,
	})
}

func (s *Server) handleCarMap(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	binding, err := s.store.GetCarPlayerMap(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown replay "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "car_player_map": binding})
}

func (s *Server) handleDeleteReplay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := s.store.DeleteReplay(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown replay "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jobs.Delete(id)
	s.replays.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}
