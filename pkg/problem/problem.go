// Package problem emits RFC 7807 responses for the ReqRes stub so client
// errors carry a machine-readable body alongside the status code.
package problem

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Response represents an RFC 7807 problem document.
type Response struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Write emits a problem+json response.
func Write(w http.ResponseWriter, status int, title, detail, requestID, instance string) {
	resp := Response{
		Type:      "about:blank",
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
