package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"

	"golang.org/x/sync/semaphore"
)

var _ output.SessionProvider = (*SessionManager)(nil)

var ErrSessionUnavailable = errors.New("browser session unavailable")

// healthCheckTimeout bounds the health check of a reused session. A renderer that
// does not answer in time is treated as dead.
const healthCheckTimeout = 2 * time.Second

// SessionManager owns the single browser session. Access is serialized by a
// weighted semaphore of size one, which admits waiters in arrival order.
type SessionManager struct {
	engine output.BrowserEngine
	cfg    entity.BrowserConfig
	logger output.LoggerPort

	lock *semaphore.Weighted

	// mu guards the session pointer. Operations on the session itself are
	// covered by lock.
	mu       sync.Mutex
	session  output.BrowserSession
	ready    atomic.Bool
	launches atomic.Int64

	closed       atomic.Bool
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

func NewSessionManager(engine output.BrowserEngine, cfg entity.BrowserConfig, logger output.LoggerPort) *SessionManager {
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = entity.DefaultBrowserConfig().LaunchTimeout
	}
	return &SessionManager{
		engine: engine,
		cfg:    cfg,
		logger: logger.WithField("component", "session"),
		lock:   semaphore.NewWeighted(1),
		done:   make(chan struct{}),
	}
}

// Acquire takes the serialization lock and returns a healthy session,
// launching or relaunching it when needed. On error the lock is not held.
func (m *SessionManager) Acquire(ctx context.Context) (output.BrowserSession, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: manager is shut down", ErrSessionUnavailable)
	}
	if err := m.lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if m.closed.Load() {
		m.lock.Release(1)
		return nil, fmt.Errorf("%w: manager is shut down", ErrSessionUnavailable)
	}

	if current := m.current(); current != nil {
		if m.alive(ctx, current) {
			return current, nil
		}
		if err := ctx.Err(); err != nil {
			m.lock.Release(1)
			return nil, err
		}
		m.logger.Warn("Browser session is dead or unresponsive, relaunching", "engine", m.engine.Name())
		m.discard()
	}

	session, err := m.launch(ctx)
	if err != nil {
		m.lock.Release(1)
		return nil, err
	}
	return session, nil
}

func (m *SessionManager) Release() {
	m.lock.Release(1)
}

// Reset closes the current session and launches a new one exactly once.
func (m *SessionManager) Reset(ctx context.Context) (output.BrowserSession, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: manager is shut down", ErrSessionUnavailable)
	}
	m.discard()
	return m.launch(ctx)
}

func (m *SessionManager) Done() <-chan struct{} {
	return m.done
}

// Ready reports whether a live session is currently held. It does not take
// the lock and is only meant for diagnostics.
func (m *SessionManager) Ready() bool {
	return !m.closed.Load() && m.ready.Load()
}

// Launches returns how many sessions have been started so far.
func (m *SessionManager) Launches() int64 {
	return m.launches.Load()
}

// Shutdown aborts in-flight work, waits for the lock and closes the session.
// It is safe to call more than once; only the first call does anything.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.closed.Store(true)
		close(m.done)

		if err := m.lock.Acquire(ctx, 1); err != nil {
			m.logger.Warn("Shutdown did not get the session lock, closing anyway", "error", err)
			m.shutdownErr = m.closeSession()
			return
		}
		defer m.lock.Release(1)
		m.shutdownErr = m.closeSession()
		m.logger.Info("Browser session shut down")
	})
	return m.shutdownErr
}

func (m *SessionManager) alive(ctx context.Context, session output.BrowserSession) bool {
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return session.Alive(checkCtx)
}

// launch starts a session. Shutdown cancels a launch in flight, and a
// session that still arrives after shutdown is closed instead of stored.
func (m *SessionManager) launch(ctx context.Context) (output.BrowserSession, error) {
	launchCtx, cancel := context.WithTimeout(ctx, m.cfg.LaunchTimeout)
	defer cancel()
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-launchCtx.Done():
		}
	}()

	m.logger.Info("Launching browser", "engine", m.engine.Name(), "browser", m.cfg.Type, "headless", m.cfg.Headless)
	session, err := m.engine.Launch(launchCtx, m.cfg)
	if err != nil {
		m.logger.Error("Browser launch failed", "engine", m.engine.Name(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		if err := session.Close(); err != nil {
			m.logger.Debug("Closing session launched during shutdown failed", "error", err)
		}
		return nil, fmt.Errorf("%w: manager is shut down", ErrSessionUnavailable)
	}
	m.session = session
	m.mu.Unlock()
	m.ready.Store(true)
	m.launches.Add(1)
	return session, nil
}

func (m *SessionManager) discard() {
	if err := m.closeSession(); err != nil {
		m.logger.Debug("Closing stale session failed", "error", err)
	}
}

func (m *SessionManager) current() output.BrowserSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *SessionManager) closeSession() error {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()

	if session == nil {
		return nil
	}
	m.ready.Store(false)
	return session.Close()
}
