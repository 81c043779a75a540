// Package api implements the ApiFacade: a read-only HTTP surface over the
// registry, signal store, system status and configuration (spec §4.7). It
// carries no authentication, per spec Non-goals.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/config"
	"github.com/billglover/dragonsync/internal/model"
	"github.com/billglover/dragonsync/internal/registry"
	"github.com/billglover/dragonsync/internal/signalstore"
	"github.com/billglover/dragonsync/internal/updatecheck"
)

// droneTrackKinds are track-registry entries rendered with track_type
// "drone" in the /drones response; everything else (ADS-B/UAT) renders as
// "aircraft" (spec §4.7).
var droneTrackKinds = map[model.Kind]bool{
	model.KindDrone:     true,
	model.KindDeviceWifi: true,
	model.KindDeviceBT:   true,
}

// trackDTO is the wire shape of a single /drones entry.
type trackDTO struct {
	UID       string         `json:"uid"`
	TrackType string         `json:"track_type"`
	Trust     model.Trust    `json:"trust"`
	Position  model.Position `json:"position"`
	Identity  model.Identity `json:"identity"`
	Kinematics model.Kinematics `json:"kinematics"`
	LastUpdate time.Time     `json:"last_update"`
}

func toTrackDTO(t *model.Track) trackDTO {
	trackType := "aircraft"
	if droneTrackKinds[t.Kind] {
		trackType = "drone"
	}
	return trackDTO{
		UID:        t.UID,
		TrackType:  trackType,
		Trust:      t.TrustLevel,
		Position:   t.Position,
		Identity:   t.Identity,
		Kinematics: t.Kinematics,
		LastUpdate: t.LastUpdateTime,
	}
}

// SystemStatusProvider returns the last received system status, or nil if
// none has arrived yet.
type SystemStatusProvider func() *model.SystemStatus

// Server is the ApiFacade HTTP server.
type Server struct {
	mux *http.ServeMux
	srv *http.Server

	reg     *registry.Registry
	alerts  *signalstore.Store
	cfg     func() config.Config
	status  SystemStatusProvider
	checker updatecheck.Checker
}

// New constructs a Server bound to addr ("host:port"). cfg returns a live
// snapshot of the running configuration; status returns the latest
// SystemStatus or nil.
func New(addr string, reg *registry.Registry, alerts *signalstore.Store, cfg func() config.Config, status SystemStatusProvider, checker updatecheck.Checker) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		reg:     reg,
		alerts:  alerts,
		cfg:     cfg,
		status:  status,
		checker: checker,
	}
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/drones", s.handleDrones)
	s.mux.HandleFunc("/signals", s.handleSignals)
	s.mux.HandleFunc("/config", s.handleConfig)
	s.mux.HandleFunc("/update/check", s.handleUpdateCheck)
	s.mux.HandleFunc("/", s.handleNotFound)

	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

// ListenAndServe starts the server and blocks until it exits or ctx is
// cancelled, in which case it shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("dragonsync: api: shutdown error")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.status()
	if status == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no system status received yet"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDrones(w http.ResponseWriter, r *http.Request) {
	tracks := s.reg.Snapshot()
	out := make([]trackDTO, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, toTrackDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"drones": out})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	alerts := s.alerts.Snapshot(time.Now())
	writeJSON(w, http.StatusOK, map[string]any{"signals": alerts})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg().Redacted())
}

func (s *Server) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "update checker not configured"})
		return
	}
	result := s.checker.Check(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("dragonsync: api: encode response failed")
	}
}

// atomicStatus is a convenience SystemStatusProvider backed by a mutex,
// wired from a SystemStatusSource's Publish callback in cmd/dragonsync.
type atomicStatus struct {
	mu     sync.Mutex
	latest *model.SystemStatus
}

// NewAtomicStatus constructs a SystemStatusProvider/publish pair sharing
// the same backing store.
func NewAtomicStatus() (SystemStatusProvider, func(*model.SystemStatus)) {
	a := &atomicStatus{}
	get := func() *model.SystemStatus {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.latest
	}
	set := func(s *model.SystemStatus) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.latest = s
	}
	return get, set
}
