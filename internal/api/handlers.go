package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/satindergrewal/elitedsp/internal/graph"
	"github.com/satindergrewal/elitedsp/internal/media"
	"github.com/satindergrewal/elitedsp/internal/player"
	"github.com/satindergrewal/elitedsp/internal/queue"
)

const maxBody = 64 << 10

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

// statusOf maps player errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, player.ErrInvalid),
		errors.Is(err, player.ErrUnknownPreset),
		errors.Is(err, queue.ErrOutOfRange),
		errors.Is(err, media.ErrUnsupportedFormat),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusBadRequest
	case errors.Is(err, player.ErrUnknownTrack),
		errors.Is(err, player.ErrNoMatch):
		return http.StatusNotFound
	case errors.Is(err, player.ErrEmptyQueue):
		return http.StatusConflict
	case errors.Is(err, player.ErrNoFiles):
		return http.StatusNotImplemented
	case errors.Is(err, player.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// respond writes the session state after an intent, or the intent's error.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.p.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.p.Snapshot())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": s.p.Presets()})
}

// --- Transport ---

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.p.Play())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.p.Pause()
	s.respond(w, nil)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.p.TogglePlay())
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.p.Next())
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.p.Prev())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositionMs *int64 `json:"position_ms"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PositionMs == nil || *req.PositionMs < 0 {
		writeError(w, fmt.Errorf("%w: position_ms must be a non-negative number", errBadRequest))
		return
	}
	s.respond(w, s.p.Seek(time.Duration(*req.PositionMs)*time.Millisecond))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index *int `json:"index"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Index == nil {
		writeError(w, fmt.Errorf("%w: index is required", errBadRequest))
		return
	}
	s.respond(w, s.p.Select(*req.Index))
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.p.SetShuffle(req.Enabled)
	s.respond(w, nil)
}

func (s *Server) handleRepeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := queue.ParseRepeat(req.Mode)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.p.SetRepeat(m)
	s.respond(w, nil)
}

func (s *Server) handleCycleRepeat(w http.ResponseWriter, r *http.Request) {
	s.p.CycleRepeat()
	s.respond(w, nil)
}

// --- Sound ---

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Volume == nil || *req.Volume < 0 || *req.Volume > 1 {
		writeError(w, fmt.Errorf("%w: volume must be within [0, 1]", errBadRequest))
		return
	}
	s.p.SetVolume(*req.Volume)
	s.respond(w, nil)
}

func (s *Server) handleEqualizer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Gains []float64 `json:"gains"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Gains) != graph.BandCount {
		writeError(w, fmt.Errorf("%w: gains needs %d values, got %d", errBadRequest, graph.BandCount, len(req.Gains)))
		return
	}
	var gains [graph.BandCount]float64
	copy(gains[:], req.Gains)
	s.p.SetEqualizer(gains)
	s.respond(w, nil)
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respond(w, s.p.ApplyPreset(req.Name))
}

func (s *Server) handleDSP(w http.ResponseWriter, r *http.Request) {
	d := s.p.Snapshot().DSP
	// fields left out of the body keep their current values
	if err := decode(w, r, &d); err != nil {
		writeError(w, err)
		return
	}
	s.respond(w, s.p.SetDSP(d))
}

// --- Queue ---

func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, fmt.Errorf("%w: path is required", errBadRequest))
		return
	}
	t, err := s.p.AddFile(r.Context(), req.Path)
	if t.ID == "" && err != nil {
		writeError(w, err)
		return
	}
	// the track is queued even when it fails to start
	resp := map[string]any{"track": t}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, fmt.Errorf("%w: query is required", errBadRequest))
		return
	}
	t, err := s.p.Search(r.Context(), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"track": t})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.p.Remove(mux.Vars(r)["id"]))
}
