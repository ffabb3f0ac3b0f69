package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/letushack/labs-server/internal/domain"
	"github.com/letushack/labs-server/internal/identity"
	"github.com/letushack/labs-server/internal/lab"
	"github.com/letushack/labs-server/internal/runtime"
)

// stubRuntime is a minimal in-memory container engine for handler tests.
type stubRuntime struct {
	mu      sync.Mutex
	pingErr error
	nextID  int
	running map[string]bool
}

func newStubRuntime() *stubRuntime {
	return &stubRuntime{running: map[string]bool{}}
}

func (r *stubRuntime) Ping(ctx context.Context) error { return r.pingErr }

func (r *stubRuntime) ImageExists(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (r *stubRuntime) Create(ctx context.Context, spec runtime.ContainerSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := fmt.Sprintf("ctr-%d", r.nextID)
	r.running[id] = false
	return id, nil
}

func (r *stubRuntime) Start(ctx context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[containerID] = true
	return nil
}

func (r *stubRuntime) Stop(ctx context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, containerID)
	return nil
}

func (r *stubRuntime) Remove(ctx context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, containerID)
	return nil
}

func (r *stubRuntime) IsRunning(ctx context.Context, containerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[containerID], nil
}

// stubSessions keeps session rows in memory.
type stubSessions struct {
	mu   sync.Mutex
	rows map[string]domain.Session
}

func newStubSessions() *stubSessions {
	return &stubSessions{rows: map[string]domain.Session{}}
}

func (s *stubSessions) UpsertSession(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sess.ContainerID] = sess
	return nil
}

func (s *stubSessions) DeleteSession(ctx context.Context, containerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, containerID)
	return nil
}

func (s *stubSessions) DeleteUserSessions(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.rows {
		if sess.UserID == userID {
			delete(s.rows, id)
		}
	}
	return nil
}

func (s *stubSessions) ListSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Session, 0, len(s.rows))
	for _, sess := range s.rows {
		out = append(out, sess)
	}
	return out, nil
}

type labsTestEnv struct {
	router http.Handler
	auth   *identity.Authenticator
	rt     *stubRuntime
}

func newLabsTestEnv(t *testing.T) *labsTestEnv {
	t.Helper()
	rt := newStubRuntime()
	manager := lab.NewManager(rt, newStubSessions(), lab.Options{PortBase: 3001, PortRange: 10})
	auth := identity.NewAuthenticator("test-secret", false)

	base := NewHandler(nil, manager, nil, auth, nil)
	r := chi.NewRouter()
	r.Use(auth.Middleware())
	NewLabsHandler(base).RegisterRoutes(r)

	return &labsTestEnv{router: r, auth: auth, rt: rt}
}

func (env *labsTestEnv) request(t *testing.T, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		token, err := env.auth.SignToken(userID, userID)
		if err != nil {
			t.Fatalf("SignToken failed: %v", err)
		}
		req.AddCookie(&http.Cookie{Name: identity.AuthCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestStartEndpoint(t *testing.T) {
	env := newLabsTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"xss"}`, "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeEnvelope(t, rec)
	if body["success"] != true {
		t.Errorf("Expected success envelope, got %v", body)
	}
	data := body["data"].(map[string]interface{})
	if data["labType"] != "xss" || data["port"].(float64) != 3001 {
		t.Errorf("Unexpected start payload: %v", data)
	}
	if data["url"] != "http://localhost:3001" {
		t.Errorf("Unexpected url: %v", data["url"])
	}
}

func TestStartEndpointRejectsUnknownLabType(t *testing.T) {
	env := newLabsTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"sqli"}`, "alice")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["success"] != false {
		t.Errorf("Expected error envelope, got %v", body)
	}
}

func TestStartEndpointRequiresAuth(t *testing.T) {
	env := newLabsTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"xss"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}
}

func TestStartEndpointRuntimeUnavailable(t *testing.T) {
	env := newLabsTestEnv(t)
	env.rt.pingErr = fmt.Errorf("cannot connect to the daemon")

	rec := env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"xss"}`, "alice")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartReplacesExistingSession(t *testing.T) {
	env := newLabsTestEnv(t)

	env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"xss"}`, "alice")
	rec := env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"csrf"}`, "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/labs/status", "", "alice")
	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	active := data["activeContainers"].([]interface{})
	if len(active) != 1 {
		t.Fatalf("Expected exactly 1 active container, got %d", len(active))
	}
	if active[0].(map[string]interface{})["labType"] != "csrf" {
		t.Errorf("Expected the csrf session to survive, got %v", active[0])
	}
}

func TestStopEndpoint(t *testing.T) {
	env := newLabsTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"xss"}`, "alice")
	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	containerID := data["containerId"].(string)

	rec = env.request(t, http.MethodPost, "/api/labs/stop", fmt.Sprintf(`{"containerId":%q}`, containerID), "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/api/labs/status", "", "alice")
	data = decodeEnvelope(t, rec)["data"].(map[string]interface{})
	if active := data["activeContainers"].([]interface{}); len(active) != 0 {
		t.Errorf("Expected no active containers, got %v", active)
	}
}

func TestStopEndpointEmptyBodyStopsAll(t *testing.T) {
	env := newLabsTestEnv(t)

	env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"xss"}`, "alice")
	rec := env.request(t, http.MethodPost, "/api/labs/stop", "", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/api/labs/status", "", "alice")
	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	if active := data["activeContainers"].([]interface{}); len(active) != 0 {
		t.Errorf("Expected no active containers, got %v", active)
	}
}

func TestStopEndpointForbiddenForOtherUser(t *testing.T) {
	env := newLabsTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/labs/start", `{"labType":"xss"}`, "alice")
	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	containerID := data["containerId"].(string)

	rec = env.request(t, http.MethodPost, "/api/labs/stop", fmt.Sprintf(`{"containerId":%q}`, containerID), "mallory")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLabsHealthEndpoint(t *testing.T) {
	env := newLabsTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/labs/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	if data["dockerAvailable"] != true {
		t.Errorf("Expected dockerAvailable=true, got %v", data)
	}

	// A fresh environment, since a positive availability result is cached.
	env2 := newLabsTestEnv(t)
	env2.rt.pingErr = fmt.Errorf("daemon down")
	rec = env2.request(t, http.MethodGet, "/api/labs/health", "", "")
	data = decodeEnvelope(t, rec)["data"].(map[string]interface{})
	if data["dockerAvailable"] != false {
		t.Errorf("Expected dockerAvailable=false, got %v", data)
	}
}
