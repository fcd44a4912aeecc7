// Package api exposes the player over HTTP: JSON intents, a websocket feed
// of snapshots and the audio stream endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/graph"
	"github.com/satindergrewal/elitedsp/internal/player"
	"github.com/satindergrewal/elitedsp/internal/queue"
)

// Player is the session the API drives.
type Player interface {
	Snapshot() player.Snapshot
	Play() error
	Pause()
	TogglePlay() error
	Next() error
	Prev() error
	Seek(pos time.Duration) error
	Select(i int) error
	SetShuffle(on bool)
	SetRepeat(m queue.RepeatMode)
	CycleRepeat() queue.RepeatMode
	SetVolume(v float64)
	SetEqualizer(gains [graph.BandCount]float64)
	ApplyPreset(name string) error
	Presets() []string
	SetDSP(d player.DSPSettings) error
	AddFile(ctx context.Context, path string) (queue.Track, error)
	Search(ctx context.Context, query string) (queue.Track, error)
	Remove(id string) error
}

// Outputs are the audio endpoints mounted next to the API. Either may be
// nil.
type Outputs struct {
	Stream http.Handler // GET /stream
	Offer  http.Handler // POST /offer
}

// Server routes requests to the player.
type Server struct {
	p      Player
	log    *logrus.Entry
	router *mux.Router

	// SnapshotInterval paces the websocket feed.
	SnapshotInterval time.Duration
}

// New builds the router.
func New(p Player, out Outputs, log *logrus.Entry) *Server {
	s := &Server{
		p:                p,
		log:              log,
		router:           mux.NewRouter(),
		SnapshotInterval: time.Second / 30,
	}
	s.routes(out)
	return s
}

func (s *Server) routes(out Outputs) {
	r := s.router
	r.Use(s.recoverPanics, s.logRequests, cors)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/presets", s.handlePresets).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	api.HandleFunc("/play", s.handlePlay).Methods(http.MethodPost)
	api.HandleFunc("/pause", s.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/toggle", s.handleToggle).Methods(http.MethodPost)
	api.HandleFunc("/next", s.handleNext).Methods(http.MethodPost)
	api.HandleFunc("/prev", s.handlePrev).Methods(http.MethodPost)
	api.HandleFunc("/seek", s.handleSeek).Methods(http.MethodPost)
	api.HandleFunc("/select", s.handleSelect).Methods(http.MethodPost)
	api.HandleFunc("/shuffle", s.handleShuffle).Methods(http.MethodPost)
	api.HandleFunc("/repeat", s.handleRepeat).Methods(http.MethodPost)
	api.HandleFunc("/repeat/cycle", s.handleCycleRepeat).Methods(http.MethodPost)
	api.HandleFunc("/volume", s.handleVolume).Methods(http.MethodPost)
	api.HandleFunc("/eq", s.handleEqualizer).Methods(http.MethodPost)
	api.HandleFunc("/eq/preset", s.handlePreset).Methods(http.MethodPost)
	api.HandleFunc("/dsp", s.handleDSP).Methods(http.MethodPost)

	api.HandleFunc("/queue/file", s.handleAddFile).Methods(http.MethodPost)
	api.HandleFunc("/queue/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/queue/{id}", s.handleRemove).Methods(http.MethodDelete)

	if out.Stream != nil {
		r.Handle("/stream", out.Stream).Methods(http.MethodGet)
	}
	if out.Offer != nil {
		r.Handle("/offer", out.Offer).Methods(http.MethodPost, http.MethodOptions)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
