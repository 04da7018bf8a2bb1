// Package handlers holds the demo endpoints placed behind the meter.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is a generic JSON response structure
type Response struct {
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func write(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

// Health reports that the demo server is up
func Health(w http.ResponseWriter, r *http.Request) {
	write(w, http.StatusOK, "hit counter demo server is healthy", nil)
}

// Search echoes the query with canned results
func Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		query = "all"
	}
	write(w, http.StatusOK, "search", map[string]any{
		"query":   query,
		"results": []string{"result1", "result2", "result3"},
		"hits":    w.Header().Get("X-Hits-Count"),
	})
}

// Create pretends to create a resource
func Create(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	write(w, http.StatusCreated, "created", map[string]any{"id": "12345"})
}

// Login returns a mock token
func Login(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	write(w, http.StatusOK, "logged in", map[string]any{
		"token": "mock-jwt-token",
		"user":  "demo-user",
	})
}

// Update pretends to update a resource
func Update(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPut, http.MethodPatch) {
		return
	}
	write(w, http.StatusOK, "updated", map[string]any{"id": "12345"})
}
