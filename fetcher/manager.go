package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrManagerClosed is returned by Acquire after Close
var ErrManagerClosed = errors.New("session manager closed")

const defaultProbeTimeout = 5 * time.Second

// Manager owns the single shared Session. The session is launched lazily,
// probed before every hand-out and discarded when it disconnects.
type Manager struct {
	launcher     Launcher
	log          *logrus.Entry
	probeTimeout time.Duration

	group singleflight.Group

	mu      sync.Mutex
	session Session
	closed  bool
	stop    chan struct{}
}

// NewManager creates a Manager that starts sessions with launcher
func NewManager(launcher Launcher, log *logrus.Entry) *Manager {
	return &Manager{
		launcher:     launcher,
		log:          log.WithField("component", "session"),
		probeTimeout: defaultProbeTimeout,
		stop:         make(chan struct{}),
	}
}

// Acquire returns the cached session while it is healthy. Concurrent callers
// during initialization share one launch. Launch errors are returned as-is.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	cached := m.session
	m.mu.Unlock()

	// a caller that gave up must not fail the health check of a shared session
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cached != nil {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.probeTimeout)
		err := cached.Probe(probeCtx)
		cancel()
		if err == nil {
			return cached, nil
		}
		m.log.WithError(err).Warn("session probe failed, reinitializing")
		m.discard(cached)
	}

	v, err, _ := m.group.Do("session", func() (interface{}, error) {
		m.mu.Lock()
		if m.session != nil {
			s := m.session
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		m.log.Info("launching session")
		s, err := m.launcher.Launch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to launch session: %w", err)
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			s.Close()
			return nil, ErrManagerClosed
		}
		m.session = s
		m.mu.Unlock()

		go m.watch(s)
		m.log.Info("session ready")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Session), nil
}

// watch marks the session dead as soon as it reports a disconnect
func (m *Manager) watch(s Session) {
	select {
	case <-s.Done():
		m.log.Warn("session disconnected")
		m.discard(s)
	case <-m.stop:
	}
}

// discard drops s if it is still the current session and closes it
func (m *Manager) discard(s Session) {
	m.mu.Lock()
	current := m.session == s
	if current {
		m.session = nil
	}
	m.mu.Unlock()

	if current {
		if err := s.Close(); err != nil {
			m.log.WithError(err).Debug("failed to close discarded session")
		}
	}
}

// Close tears down the current session. Further Acquire calls fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	s := m.session
	m.session = nil
	close(m.stop)
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	m.log.Info("closing session")
	return s.Close()
}
