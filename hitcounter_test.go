package hitcounter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yourusername/hitcounter/core"
)

func TestNewMeter(t *testing.T) {
	m, err := NewMeter(Config{Window: core.Config{Width: 60}, Limit: 1})
	if err != nil {
		t.Fatalf("NewMeter() failed: %v", err)
	}

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	first, second := httptest.NewRecorder(), httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Code != http.StatusOK {
		t.Errorf("first status = %d, want 200", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
}
