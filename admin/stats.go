package admin

import "net/http"

// handleHealth reports whether the convergence worker is alive; a halted
// worker answers 503
func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	cursor := h.publisher.Cursor()
	head := h.publisher.LastSeq()
	healthy := h.publisher.WorkerRunning()

	response := map[string]interface{}{
		"healthy": healthy,
		"stats": map[string]interface{}{
			"cursor": cursor,
			"head":   head,
			"lag":    lag(head, cursor),
		},
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, response)
}
