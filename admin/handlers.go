package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/maxpert/publist/publishlist"
	"github.com/rs/zerolog/log"
)

// Publisher is the convergence pipeline as seen by the admin API
type Publisher interface {
	Append(entries []publishlist.LogEntry) error
	Cursor() uint64
	LastSeq() uint64
	WorkerRunning() bool
}

// Lister reads persisted publish lists
type Lister interface {
	ListByUser(ctx context.Context, userID string) ([]publishlist.Entry, error)
	ListByResource(ctx context.Context, resourceID string) ([]publishlist.Entry, error)
}

// AdminHandlers handles admin API endpoints
type AdminHandlers struct {
	publisher Publisher
	lister    Lister
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(publisher Publisher, lister Lister) *AdminHandlers {
	return &AdminHandlers{
		publisher: publisher,
		lister:    lister,
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
