package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/vitalvas/contactsig/canonical"
	"github.com/vitalvas/contactsig/request"
	"github.com/vitalvas/contactsig/signature"
)

const (
	serviceToken  = "hash-token-0123456789"
	serviceSecret = "s3cr3t-shared-key"
)

// recordedRequest is what the fake service saw.
type recordedRequest struct {
	Header http.Header
	Body   []byte
}

// fakeService reproduces the registration endpoint's authentication and
// validation rules.
type fakeService struct {
	token  string
	secret []byte
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	phones   map[string]bool
	requests []recordedRequest
}

func newFakeService() *fakeService {
	return &fakeService{
		token:  serviceToken,
		secret: []byte(serviceSecret),
		phones: make(map[string]bool),
	}
}

func (s *fakeService) start(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle("POST /api"+request.RegisterPath, s)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func (s *fakeService) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]recordedRequest, len(s.requests))
	copy(out, s.requests)

	return out
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{Header: r.Header.Clone(), Body: body})
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+s.token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
		return
	}

	ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid timestamp"})
		return
	}

	if s.maxAge > 0 && s.now != nil {
		age := s.now().Sub(time.Unix(ts, 0))
		if age < -s.maxAge || age > s.maxAge {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "stale timestamp"})
			return
		}
	}

	payload, err := canonical.Parse(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	canon, err := canonical.Marshal(payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	if err := signature.Verify(signature.NewMaterial(ts, canon), s.secret, r.Header.Get("X-Signature")); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "invalid signature"})
		return
	}

	phone, _ := payload.Get(FieldPhone)
	phoneStr, _ := phone.(string)
	consent, _ := payload.Get(FieldOSConsent)

	if phoneStr == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errors": map[string]any{"phone": "required"}})
		return
	}

	if consent != true {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errors": map[string]any{"os_consent": "must be accepted"}})
		return
	}

	s.mu.Lock()
	duplicate := s.phones[phoneStr]
	s.phones[phoneStr] = true
	s.mu.Unlock()

	if duplicate {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "duplicate"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
