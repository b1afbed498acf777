package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakePayHero is an httptest PayHero API that records STK push requests.
type fakePayHero struct {
	mu       sync.Mutex
	pushes   []map[string]any
	headers  []http.Header
	status   int
	response string
	statuses map[string]string
	server   *httptest.Server
}

func newFakePayHero(t *testing.T, status int, response string) *fakePayHero {
	t.Helper()
	f := &fakePayHero{status: status, response: response, statuses: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stkpush", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)

		f.mu.Lock()
		f.pushes = append(f.pushes, payload)
		f.headers = append(f.headers, r.Header.Clone())
		status, response := f.status, f.response
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	})
	mux.HandleFunc("GET /transaction-status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body, ok := f.statuses[r.URL.Query().Get("reference")]
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePayHero) client() *PayHeroClient {
	return NewPayHeroClient(PayHeroConfig{
		BaseURL:     f.server.URL,
		Username:    "api-user",
		Password:    "api-pass",
		ChannelID:   "911",
		CallbackURL: "https://app.example.com/payhero/callback",
		Timeout:     2 * time.Second,
	})
}

func (f *fakePayHero) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakePayHero) setStatus(reference, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[reference] = body
}

func (f *fakePayHero) push(i int) (map[string]any, http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes[i], f.headers[i]
}
