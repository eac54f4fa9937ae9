package handlers

import "net/http"

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	response := map[string]any{
		"status":         "ok",
		"search_enabled": api.search.Enabled(),
		"queue":          api.queue.Stats(),
	}
	if api.inference != nil {
		response["inference"] = api.inference.Health(r.Context())
	}
	writeJSON(w, http.StatusOK, response)
}
