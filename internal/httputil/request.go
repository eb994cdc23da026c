package httputil

import (
	"encoding/json"
	"net/http"
)

// ParseJSON decodes the request body into dst. On failure it writes a
// 400 response and returns false; the caller should return immediately.
func ParseJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
