package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/maxpert/publist/publisher"
	"github.com/maxpert/publist/publishlist"
	"github.com/rs/zerolog/log"
)

const maxEventsBody = 4 << 20 // 4MB

// eventRequest is one log entry submitted over HTTP.
// Type is an event name such as "PUBLISHED_NEW"; a zero timestamp is
// stamped on append.
type eventRequest struct {
	ResourceID string `json:"resource_id"`
	UserID     string `json:"user_id"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
}

type appendResponse struct {
	Count    int    `json:"count"`
	FirstSeq uint64 `json:"first_seq"`
	LastSeq  uint64 `json:"last_seq"`
}

func (h *AdminHandlers) handleAppendEvents(w http.ResponseWriter, r *http.Request) {
	var reqs []eventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reqs); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(reqs) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "no events")
		return
	}

	entries := make([]publishlist.LogEntry, 0, len(reqs))
	for i, req := range reqs {
		if req.ResourceID == "" || req.UserID == "" {
			writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("event %d: resource_id and user_id are required", i))
			return
		}
		typ, err := publishlist.ParseEventType(req.Type)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
			return
		}
		entries = append(entries, publishlist.LogEntry{
			ResourceID: req.ResourceID,
			UserID:     req.UserID,
			Type:       typ,
			Timestamp:  req.Timestamp,
		})
	}

	if err := h.publisher.Append(entries); err != nil {
		if errors.Is(err, publisher.ErrNotRunning) {
			writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		log.Error().Err(err).Int("count", len(entries)).Msg("Failed to append events")
		writeErrorResponse(w, http.StatusInternalServerError, "failed to append events")
		return
	}

	writeJSONResponse(w, http.StatusAccepted, appendResponse{
		Count:    len(entries),
		FirstSeq: entries[0].SeqNum,
		LastSeq:  entries[len(entries)-1].SeqNum,
	})
}

type cursorResponse struct {
	Cursor        uint64 `json:"cursor"`
	Head          uint64 `json:"head"`
	Lag           uint64 `json:"lag"`
	WorkerRunning bool   `json:"worker_running"`
}

func (h *AdminHandlers) handleCursor(w http.ResponseWriter, r *http.Request) {
	cursor := h.publisher.Cursor()
	head := h.publisher.LastSeq()

	writeJSONResponse(w, http.StatusOK, cursorResponse{
		Cursor:        cursor,
		Head:          head,
		Lag:           lag(head, cursor),
		WorkerRunning: h.publisher.WorkerRunning(),
	})
}

func lag(head, cursor uint64) uint64 {
	if head > cursor {
		return head - cursor
	}
	return 0
}
