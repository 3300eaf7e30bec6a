package wsbridge

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// HandleConnection upgrades a UI client connection
func (b *Bridge) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := b.UpgradeConnection(w, r); err != nil {
		// The upgrader has already written an HTTP error.
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade ui connection")
	}
}

// HandleStats returns connection statistics
func (b *Bridge) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{
		"total_connections": b.ConnectionCount(),
		"queued":            len(b.broadcastCh),
	}); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}

// RegisterRoutes registers the bridge routes with an HTTP mux
func (b *Bridge) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", b.HandleConnection)
	mux.HandleFunc("/ws/stats", b.HandleStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

// Handler returns the bridge routes wrapped with CORS.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	b.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}
