package admin

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/maxpert/publist/publishlist"
	"github.com/rs/zerolog/log"
)

// handleUserPublishList serves a user's publish list with an ETag so
// polling clients can revalidate cheaply.
func (h *AdminHandlers) handleUserPublishList(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathParam(w, r, "userID")
	if !ok {
		return
	}

	entries, err := h.lister.ListByUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list publish list")
		writeErrorResponse(w, http.StatusInternalServerError, "failed to read publish list")
		return
	}

	etag := listingETag(entries)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSONResponse(w, http.StatusOK, entries)
}

func (h *AdminHandlers) handleResourcePublishList(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := pathParam(w, r, "resourceID")
	if !ok {
		return
	}

	entries, err := h.lister.ListByResource(r.Context(), resourceID)
	if err != nil {
		log.Error().Err(err).Str("resource_id", resourceID).Msg("Failed to list resource rows")
		writeErrorResponse(w, http.StatusInternalServerError, "failed to read publish list")
		return
	}

	writeJSONResponse(w, http.StatusOK, entries)
}

// pathParam returns an unescaped URL parameter; resource ids carry slashes
// and arrive percent-encoded.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || value == "" {
		writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return "", false
	}
	return value, true
}

// listingETag hashes a listing into a strong ETag
func listingETag(entries []publishlist.Entry) string {
	d := xxhash.New()
	for _, e := range entries {
		d.WriteString(e.UserID)
		d.WriteString("\x00")
		d.WriteString(e.ResourceID)
		d.WriteString("\x00")
		d.WriteString(strconv.FormatInt(e.Timestamp, 10))
		d.WriteString("\n")
	}
	return fmt.Sprintf("\"%016x\"", d.Sum64())
}
