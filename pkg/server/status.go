// Package server exposes the HTTP status endpoint (spec §6 "HTTP status
// endpoint"): a single GET /status returning the mixer's version, uptime,
// active compositor backend, and each channel's configuration and
// counters as JSON.
package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// NDIInputStatus mirrors one channel's optional network-video input.
type NDIInputStatus struct {
	Source         string `json:"source"`
	Connected      bool   `json:"connected"`
	FramesReceived uint64 `json:"frames_received"`
}

// OverlayStatus mirrors one browser overlay layer.
type OverlayStatus struct {
	URL    string `json:"url"`
	Loaded bool   `json:"loaded"`
}

// FilterStatus mirrors one compiled filter binding.
type FilterStatus struct {
	Name    string `json:"name"`
	Stage   string `json:"stage"`
	Enabled bool   `json:"enabled"`
}

// ChannelStatus is one channel's status snapshot.
type ChannelStatus struct {
	Name            string           `json:"name"`
	OutputName      string           `json:"output_name"`
	Resolution      string           `json:"resolution"`
	FrameRate       int              `json:"frame_rate"`
	NDIInput        *NDIInputStatus  `json:"ndi_input"`
	BrowserOverlays []OverlayStatus  `json:"browser_overlays"`
	BrowserOverlay  *OverlayStatus   `json:"browser_overlay,omitempty"`
	FramesOutput    uint64           `json:"frames_output"`
	Filters         []FilterStatus   `json:"filters"`
}

// Status is the full /status response body.
type Status struct {
	Version        string          `json:"version"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	Compositor     string          `json:"compositor"`
	Channels       []ChannelStatus `json:"channels"`
}

// Source supplies the live data the status endpoint reports. The real
// implementation is backed by the running mixer's channels; tests
// substitute a fixed snapshot.
type Source interface {
	Status() Status
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Status

func (f SourceFunc) Status() Status { return f() }

// Server wraps the gorilla/mux router serving /status.
type Server struct {
	router *mux.Router
	source Source
}

// New builds a status server backed by source.
func New(source Source) *Server {
	s := &Server{router: mux.NewRouter(), source: source}
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.source.Status()
	for i := range status.Channels {
		ch := &status.Channels[i]
		if len(ch.BrowserOverlays) <= 1 {
			if len(ch.BrowserOverlays) == 1 {
				alias := ch.BrowserOverlays[0]
				ch.BrowserOverlay = &alias
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("status: failed to encode response")
	}
}

// ListenAndServe binds port and serves until the listener is closed. A
// bind failure degrades to a logged warning rather than a fatal process
// exit (spec §7 "Resource acquisition errors"); callers decide whether
// that means the endpoint is simply absent.
func ListenAndServe(port int, source Source) error {
	if port == 0 {
		log.Info().Msg("status endpoint disabled (status_port=0)")
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Warn().Err(err).Int("port", port).Msg("status endpoint disabled: failed to bind")
		return err
	}

	srv := &http.Server{
		Handler:      New(source).router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	log.Info().Int("port", port).Msg("status endpoint listening")
	return srv.Serve(ln)
}
