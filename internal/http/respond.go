package http

import (
	"encoding/json"
	"net/http"
)

// JSON writes an HTTP response with a JSON encoded body.
func JSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		Error(w, err)
		return
	}
	w.Header().Set("Content-type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
