// Package session holds the client-side authentication context shared by the
// dashboards and the CLI.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// State is the lifecycle position of a Context.
type State int

const (
	StateInit State = iota
	StateAuthenticated
	StateAnonymous
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// ErrDisposed is returned by every operation on a disposed context.
var ErrDisposed = errors.New("session context disposed")

// Snapshot is what listeners observe.
type Snapshot struct {
	State   State
	Session *domain.Session
}

// Authenticated reports whether the snapshot carries a usable session.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Session != nil
}

// Store persists the last issued session.
type Store interface {
	Load() (*domain.Session, error)
	Save(session *domain.Session) error
	Clear() error
}

// Marker is the browser-session marker. It must not survive a restart.
type Marker interface {
	Present() bool
	Set() error
	Clear() error
}

// Authenticator talks to the identity provider.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error)
	SignOut(ctx context.Context) error
}

// Context tracks the signed-in identity through init, authenticated or
// anonymous, and disposed.
type Context struct {
	store  Store
	marker Marker
	auth   Authenticator
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	current   *domain.Session
	nextID    int
	listeners map[int]func(Snapshot)
}

// Options configures a Context.
type Options struct {
	Store         Store
	Marker        Marker
	Authenticator Authenticator
	Logger        *zap.Logger
	Clock         func() time.Time
}

// NewContext builds a context in the init state.
func NewContext(opts Options) *Context {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Context{
		store:     opts.Store,
		marker:    opts.Marker,
		auth:      opts.Authenticator,
		logger:    opts.Logger,
		now:       opts.Clock,
		state:     StateInit,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Current returns the present snapshot.
func (c *Context) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Session: c.current}
}

// Credentials returns the bearer token of the current session and whether the
// session marker should accompany it.
func (c *Context) Credentials() (string, bool) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil {
		return "", false
	}
	return current.Token, c.marker.Present()
}

// Subscribe registers fn for every state change. The returned func removes it
// and is safe to call more than once.
func (c *Context) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisposed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Load restores the stored session. A session-only sign-in whose marker is
// gone, or an expired token, is discarded and the context becomes anonymous.
func (c *Context) Load(ctx context.Context) (Snapshot, error) {
	if err := c.checkOpen(); err != nil {
		return Snapshot{}, err
	}
	stored, err := c.store.Load()
	if err != nil {
		return Snapshot{}, err
	}
	switch {
	case stored == nil:
		return c.transition(StateAnonymous, nil), nil
	case stored.Persistence == domain.PersistenceSession && !c.marker.Present():
		c.logger.Info("session marker missing, discarding session-only sign-in")
		c.discard()
		return c.transition(StateAnonymous, nil), nil
	case !stored.ExpiresAt.IsZero() && !c.now().Before(stored.ExpiresAt):
		c.logger.Info("stored session expired")
		c.discard()
		return c.transition(StateAnonymous, nil), nil
	}
	return c.transition(StateAuthenticated, stored), nil
}

// SignIn authenticates and persists the session. Without rememberMe the
// marker is set so the session ends with the runtime.
func (c *Context) SignIn(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	issued, err := c.auth.SignIn(ctx, email, password, rememberMe)
	if err != nil {
		return nil, err
	}
	sessionOnly := issued.Persistence == domain.PersistenceSession
	if sessionOnly {
		if err := c.marker.Set(); err != nil {
			return nil, err
		}
	} else if err := c.marker.Clear(); err != nil {
		c.logger.Warn("clear session marker", zap.Error(err))
	}
	if err := c.store.Save(issued); err != nil {
		if sessionOnly {
			if clearErr := c.marker.Clear(); clearErr != nil {
				c.logger.Warn("clear session marker", zap.Error(clearErr))
			}
		}
		return nil, err
	}
	c.transition(StateAuthenticated, issued)
	return issued, nil
}

// SignOut ends the session locally even when the provider call fails.
func (c *Context) SignOut(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	var remoteErr error
	if c.auth != nil {
		remoteErr = c.auth.SignOut(ctx)
		if remoteErr != nil {
			c.logger.Warn("remote sign-out failed", zap.Error(remoteErr))
		}
	}
	c.discard()
	c.transition(StateAnonymous, nil)
	return remoteErr
}

// Dispose drops every listener. The context is unusable afterwards.
func (c *Context) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisposed
	c.current = nil
	c.listeners = make(map[int]func(Snapshot))
}

func (c *Context) discard() {
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("clear stored session", zap.Error(err))
	}
	if err := c.marker.Clear(); err != nil {
		c.logger.Warn("clear session marker", zap.Error(err))
	}
}

func (c *Context) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisposed {
		return ErrDisposed
	}
	return nil
}

func (c *Context) transition(state State, current *domain.Session) Snapshot {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return Snapshot{State: StateDisposed}
	}
	c.state = state
	c.current = current
	snap := Snapshot{State: state, Session: current}
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}
