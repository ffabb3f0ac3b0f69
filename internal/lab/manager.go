// Package lab orchestrates the lifecycle of per-user vulnerability-lab
// containers: starting, stopping, tracking and reconciling sessions.
package lab

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/letushack/labs-server/internal/domain"
	"github.com/letushack/labs-server/internal/runtime"
	"golang.org/x/sync/singleflight"
)

// labServicePort is the port the lab images listen on inside the container.
const labServicePort = 80

// SessionStore is the durable store contract the manager depends on.
// Each call is independently atomic; no cross-row transaction is assumed.
type SessionStore interface {
	UpsertSession(ctx context.Context, s domain.Session) error
	DeleteSession(ctx context.Context, containerID string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	ListSessions(ctx context.Context) ([]domain.Session, error)
}

// Options tunes the manager. Zero values fall back to defaults.
type Options struct {
	// PortBase is the first host port handed out to lab containers.
	PortBase int
	// PortRange caps how many ports past PortBase are scanned.
	PortRange int
	// CallTimeout bounds each call into the container runtime. Zero means
	// no timeout.
	CallTimeout time.Duration
}

const (
	defaultPortBase  = 3001
	defaultPortRange = 1000
)

// StartResult describes a successfully started lab session.
type StartResult struct {
	ContainerID string         `json:"containerId"`
	LabType     domain.LabType `json:"labType"`
	Port        int            `json:"port"`
	URL         string         `json:"url"`
}

// Manager is the single authoritative entry point for lab session lifecycle.
// It owns the in-memory registry, enforces the one-session-per-user rule and
// converts runtime failures into the package error taxonomy.
//
// Start and Stop are serialized per user, so a start that supersedes an
// existing session is atomic with respect to other requests for that user.
type Manager struct {
	rt    runtime.Runtime
	store SessionStore
	reg   *Registry
	opts  Options

	userLocks sync.Map // userID -> *sync.Mutex

	// allocMu guards port allocation across all users. Ports reserved for
	// starts still in flight live in inflight until the session is registered
	// or the start fails, so two users can never be handed the same port.
	allocMu  sync.Mutex
	inflight map[int]bool

	availMu   sync.Mutex
	available bool
	pingGroup singleflight.Group
}

// NewManager creates a lifecycle manager. Call Reconcile once at startup to
// resynchronize the registry with persisted state.
func NewManager(rt runtime.Runtime, store SessionStore, opts Options) *Manager {
	if opts.PortBase <= 0 {
		opts.PortBase = defaultPortBase
	}
	if opts.PortRange <= 0 {
		opts.PortRange = defaultPortRange
	}
	return &Manager{
		rt:       rt,
		store:    store,
		reg:      NewRegistry(),
		opts:     opts,
		inflight: make(map[int]bool),
	}
}

// Available reports whether the container runtime is reachable. The last
// known result is cached; a negative result is re-checked on the next call,
// so a recovered daemon is picked up without a restart. Concurrent probes
// collapse into a single ping.
func (m *Manager) Available(ctx context.Context) bool {
	m.availMu.Lock()
	cached := m.available
	m.availMu.Unlock()
	if cached {
		return true
	}

	v, _, _ := m.pingGroup.Do("ping", func() (interface{}, error) {
		pctx, cancel := m.callCtx(ctx)
		defer cancel()

		err := m.rt.Ping(pctx)
		m.availMu.Lock()
		m.available = err == nil
		m.availMu.Unlock()

		if err != nil {
			slog.Warn("Container runtime is not available", "error", err)
		} else {
			slog.Info("Container runtime connection established")
		}
		return err == nil, nil
	})
	ok, _ := v.(bool)
	return ok
}

// Start launches a lab container for the user, first terminating any session
// the user already owns (single-active-container rule). On success the new
// session is registered and persisted.
func (m *Manager) Start(ctx context.Context, userID string, labType domain.LabType) (*StartResult, error) {
	image, ok := labType.Image()
	if !ok {
		return nil, ErrInvalidLabType
	}

	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if !m.Available(ctx) {
		return nil, ErrRuntimeUnavailable
	}

	// Enforce the single-session rule before creating anything new.
	m.stopUserSessionsLocked(ctx, userID)

	ictx, icancel := m.callCtx(ctx)
	exists, err := m.rt.ImageExists(ictx, image)
	icancel()
	if err != nil {
		return nil, m.startFailure(ctx, err)
	}
	if !exists {
		return nil, &ImageNotFoundError{Image: image}
	}

	port, err := m.reservePort()
	if err != nil {
		return nil, err
	}
	// Released after the session is registered, or on any failure below.
	defer m.releasePort(port)

	now := time.Now()
	name := containerName(userID, labType, now)
	slog.Info("Creating lab container", "name", name, "user_id", userID, "lab_type", labType, "port", port)

	cctx, ccancel := m.callCtx(ctx)
	containerID, err := m.rt.Create(cctx, runtime.ContainerSpec{
		Name:        name,
		Image:       image,
		HostPort:    port,
		ExposedPort: labServicePort,
		AutoRemove:  true,
	})
	ccancel()
	if err != nil {
		return nil, m.startFailure(ctx, err)
	}

	sctx, scancel := m.callCtx(ctx)
	err = m.rt.Start(sctx, containerID)
	scancel()
	if err != nil {
		// No partial session may survive a failed start.
		rmctx, rmcancel := m.callCtx(ctx)
		if removeErr := m.rt.Remove(rmctx, containerID); removeErr != nil {
			slog.Warn("Failed to remove container after start failure", "container_id", containerID, "error", removeErr)
		}
		rmcancel()
		return nil, m.startFailure(ctx, err)
	}

	session := domain.Session{
		ContainerID: containerID,
		UserID:      userID,
		LabType:     labType,
		Port:        port,
		Status:      domain.StatusRunning,
		CreatedAt:   now,
	}
	m.reg.Put(session)

	if err := m.store.UpsertSession(ctx, session); err != nil {
		// Registry stays authoritative; reconciliation repairs the store.
		slog.Warn("Failed to persist session", "container_id", containerID, "error", err)
	}

	slog.Info("Lab container started", "container_id", containerID, "user_id", userID, "port", port)
	return &StartResult{
		ContainerID: containerID,
		LabType:     labType,
		Port:        port,
		URL:         session.URL(),
	}, nil
}

// Stop terminates sessions for a user. With a container ID it stops exactly
// that session, refusing with ErrForbidden if it is tracked for a different
// user. With an empty ID it stops every session the user owns.
//
// Runtime stop failures are logged and non-fatal: the registry and store are
// cleaned up regardless, so a container the manager failed to stop is never
// retained as a ghost session.
func (m *Manager) Stop(ctx context.Context, userID, containerID string) error {
	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if containerID != "" {
		if owner, ok := m.sessionOwner(ctx, containerID); ok && owner != userID {
			return ErrForbidden
		}
		m.removeSession(ctx, containerID)
		return nil
	}

	m.stopUserSessionsLocked(ctx, userID)
	if err := m.store.DeleteUserSessions(ctx, userID); err != nil {
		slog.Warn("Failed to delete user sessions from store", "user_id", userID, "error", err)
	}
	return nil
}

// UserSessions returns the user's tracked sessions, oldest first. This is a
// pure registry read reflecting tracked state, not live runtime truth.
func (m *Manager) UserSessions(userID string) []domain.Session {
	return m.reg.User(userID)
}

// AllSessions returns every tracked session, oldest first.
func (m *Manager) AllSessions() []domain.Session {
	return m.reg.All()
}

// Reconcile loads persisted sessions and checks each against the runtime.
// Rows backed by a running container are loaded into the registry; rows whose
// container is gone or stopped are purged from the store. Per-row failures
// are logged and skipped so one bad record cannot abort the pass. The
// operation is idempotent and safe to re-run.
func (m *Manager) Reconcile(ctx context.Context) error {
	rows, err := m.store.ListSessions(ctx)
	if err != nil {
		return err
	}

	loaded := 0
	for _, s := range rows {
		rctx, cancel := m.callCtx(ctx)
		running, err := m.rt.IsRunning(rctx, s.ContainerID)
		cancel()
		if err != nil {
			// Transient inspect failure: keep the row for the next pass.
			slog.Warn("Failed to reconcile session, skipping", "container_id", s.ContainerID, "error", err)
			continue
		}

		if running {
			m.reg.Put(s)
			loaded++
			continue
		}

		m.reg.Delete(s.ContainerID)
		if err := m.store.DeleteSession(ctx, s.ContainerID); err != nil {
			slog.Warn("Failed to delete stale session row", "container_id", s.ContainerID, "error", err)
		} else {
			slog.Info("Purged stale session", "container_id", s.ContainerID, "user_id", s.UserID)
		}
	}

	slog.Info("Session reconciliation complete", "active", loaded, "persisted", len(rows))
	return nil
}

// stopUserSessionsLocked stops and deregisters every session the user owns.
// Callers must hold the user's lock.
func (m *Manager) stopUserSessionsLocked(ctx context.Context, userID string) {
	for _, s := range m.reg.User(userID) {
		m.removeSession(ctx, s.ContainerID)
	}
}

// removeSession stops and removes one container best-effort, then deletes it
// from the registry and store unconditionally.
func (m *Manager) removeSession(ctx context.Context, containerID string) {
	sctx, scancel := m.callCtx(ctx)
	if err := m.rt.Stop(sctx, containerID); err != nil {
		slog.Error("Failed to stop container, deregistering anyway", "container_id", containerID, "error", err)
	}
	scancel()

	// Lab containers run with auto-remove; an explicit remove covers engines
	// where the stop above failed before auto-removal could trigger.
	rctx, rcancel := m.callCtx(ctx)
	if err := m.rt.Remove(rctx, containerID); err != nil {
		slog.Debug("Failed to remove container", "container_id", containerID, "error", err)
	}
	rcancel()

	m.reg.Delete(containerID)
	if err := m.store.DeleteSession(ctx, containerID); err != nil {
		slog.Warn("Failed to delete session from store", "container_id", containerID, "error", err)
	}
}

// sessionOwner resolves who owns a container, preferring the registry and
// falling back to persisted rows for sessions not yet reconciled (e.g. the
// runtime was down at boot and reconciliation was skipped).
func (m *Manager) sessionOwner(ctx context.Context, containerID string) (string, bool) {
	if s, ok := m.reg.Get(containerID); ok {
		return s.UserID, true
	}

	rows, err := m.store.ListSessions(ctx)
	if err != nil {
		slog.Warn("Failed to check session ownership", "container_id", containerID, "error", err)
		return "", false
	}
	for _, s := range rows {
		if s.ContainerID == containerID {
			return s.UserID, true
		}
	}
	return "", false
}

// reservePort allocates the lowest free port, counting both registered
// sessions and starts still in flight. The reservation is held until
// releasePort, which runs after the session lands in the registry.
func (m *Manager) reservePort() (int, error) {
	m.allocMu.Lock()
	defer m.allocMu.Unlock()

	used := m.reg.Ports()
	for p := range m.inflight {
		used = append(used, p)
	}
	port, err := nextFreePort(m.opts.PortBase, m.opts.PortRange, used)
	if err != nil {
		return 0, err
	}
	m.inflight[port] = true
	return port, nil
}

func (m *Manager) releasePort(port int) {
	m.allocMu.Lock()
	delete(m.inflight, port)
	m.allocMu.Unlock()
}

// startFailure classifies a runtime error from a failed start step. A call
// that exhausted its per-call budget while the request itself is still live
// means the engine is unresponsive; availability is reset so the next check
// pings again instead of trusting the cached positive.
func (m *Manager) startFailure(ctx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		m.availMu.Lock()
		m.available = false
		m.availMu.Unlock()
		return ErrRuntimeUnavailable
	}
	return &StartError{Err: err}
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	l, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, m.opts.CallTimeout)
	}
	return context.WithCancel(ctx)
}
