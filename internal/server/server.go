// internal/server/server.go
// Package server exposes the HTTP endpoint through which other collector
// instances push their per-tick distributions for merging.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Spin-gaming/webrtcperf/internal/collector"
	"github.com/Spin-gaming/webrtcperf/internal/logging"
)

// maxPushBytes bounds a single push body. A tick's distributions are small;
// anything bigger is a misbehaving peer.
const maxPushBytes = 8 << 20

// Ingest accepts external stats pushes and hands them to the collector.
type Ingest struct {
	collector *collector.Collector
	srv       *http.Server
}

// pushPayload is the wire shape of one push.
type pushPayload struct {
	ID string `json:"id"`
	collector.ExternalStats
}

// New builds an ingest server listening on addr.
func New(addr string, c *collector.Collector) *Ingest {
	s := &Ingest{collector: c}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router returns the route table, exposed separately so tests can drive the
// handlers without a listener.
func (s *Ingest) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/collector/stats", s.handlePush).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/collector/{id}/stats", s.handlePush).Methods(http.MethodPut, http.MethodPost)
	return r
}

func (s *Ingest) handlePush(w http.ResponseWriter, r *http.Request) {
	var payload pushPayload
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBytes))
	if err := decoder.Decode(&payload); err != nil {
		http.Error(w, "malformed push body: "+err.Error(), http.StatusBadRequest)
		return
	}
	// The pushing instance's id may arrive in the path or in the body; the
	// path form wins when both are present.
	if id := mux.Vars(r)["id"]; id != "" {
		payload.ID = id
	}
	if err := s.collector.AddExternalStats(payload.ID, payload.ExternalStats); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logging.Debugf("accepted external stats push from %s (%d metrics)",
		payload.ID, len(payload.RawDistributions))
	w.WriteHeader(http.StatusNoContent)
}

// Start begins serving in the background. Listener failures are logged, not
// fatal: the engine keeps collecting without remote pushes.
func (s *Ingest) Start() {
	go func() {
		logging.LogEvent("[SERVER] listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.LogEvent("[SERVER] listener failed: %v", err)
		}
	}()
}

// Shutdown stops the listener, waiting up to the context deadline for
// in-flight pushes.
func (s *Ingest) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
