package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

var now = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type stubAuth struct {
	signOutErr error
	signedOut  int
}

func (a *stubAuth) SignIn(_ context.Context, email, password string, rememberMe bool) (*domain.Session, error) {
	if password != "secret" {
		return nil, errors.New("Invalid login credentials")
	}
	return &domain.Session{
		Token:       "tok-" + email,
		ExpiresAt:   now.Add(time.Hour),
		Persistence: domain.PersistenceFor(rememberMe),
		Identity:    domain.Identity{ID: "u-1", Email: email, Role: domain.RoleUser},
	}, nil
}

func (a *stubAuth) SignOut(context.Context) error {
	a.signedOut++
	return a.signOutErr
}

type fixture struct {
	dir    string
	store  FileStore
	marker FileMarker
	auth   *stubAuth
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	return &fixture{
		dir:    dir,
		store:  FileStore{Path: filepath.Join(dir, "config", "session.json")},
		marker: FileMarker{Path: filepath.Join(dir, "run", "session_active")},
		auth:   &stubAuth{},
		clock:  now,
	}
}

// newContext simulates a fresh process over the same files.
func (f *fixture) newContext() *Context {
	return NewContext(Options{Store: f.store, Marker: f.marker, Authenticator: f.auth, Clock: func() time.Time { return f.clock }})
}

func TestContext_Lifecycle(t *testing.T) {
	f := newFixture(t)
	c := f.newContext()
	assert.Equal(t, StateInit, c.Current().State)

	var seen []State
	unsubscribe := c.Subscribe(func(s Snapshot) { seen = append(seen, s.State) })

	snap, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, snap.State)

	_, err = c.SignIn(context.Background(), "amal@example.com", "secret", true)
	require.NoError(t, err)
	assert.True(t, c.Current().Authenticated())

	unsubscribe()
	unsubscribe()
	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, []State{StateAnonymous, StateAuthenticated}, seen)
	assert.Equal(t, StateAnonymous, c.Current().State)

	c.Dispose()
	assert.ErrorIs(t, c.SignOut(context.Background()), ErrDisposed)
	_, err = c.Load(context.Background())
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestContext_RememberedSessionSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	_, err := f.newContext().SignIn(context.Background(), "amal@example.com", "secret", true)
	require.NoError(t, err)
	require.NoError(t, f.marker.Clear())

	snap, err := f.newContext().Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Authenticated())
	assert.Equal(t, "amal@example.com", snap.Session.Identity.Email)
}

func TestContext_SessionOnlySignInEndsWithMarker(t *testing.T) {
	f := newFixture(t)
	_, err := f.newContext().SignIn(context.Background(), "amal@example.com", "secret", false)
	require.NoError(t, err)
	require.True(t, f.marker.Present())

	snap, err := f.newContext().Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Authenticated(), "marker still present")

	require.NoError(t, f.marker.Clear())
	snap, err = f.newContext().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, snap.State)

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored, "invalid session is discarded")
}

func TestContext_ExpiredSessionIsDiscarded(t *testing.T) {
	f := newFixture(t)
	_, err := f.newContext().SignIn(context.Background(), "amal@example.com", "secret", true)
	require.NoError(t, err)

	f.clock = now.Add(2 * time.Hour)
	snap, err := f.newContext().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, snap.State)
}

func TestContext_FailedSignInKeepsState(t *testing.T) {
	f := newFixture(t)
	c := f.newContext()
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	_, err = c.SignIn(context.Background(), "amal@example.com", "wrong", true)
	require.Error(t, err)
	assert.Equal(t, StateAnonymous, c.Current().State)
}

func TestContext_SignOutIsLocalEvenWhenRemoteFails(t *testing.T) {
	f := newFixture(t)
	f.auth.signOutErr = errors.New("offline")
	c := f.newContext()
	_, err := c.SignIn(context.Background(), "amal@example.com", "secret", false)
	require.NoError(t, err)

	assert.Error(t, c.SignOut(context.Background()))
	assert.Equal(t, StateAnonymous, c.Current().State)
	assert.False(t, f.marker.Present())
	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestContext_Credentials(t *testing.T) {
	f := newFixture(t)
	c := f.newContext()
	token, marker := c.Credentials()
	assert.Empty(t, token)
	assert.False(t, marker)

	_, err := c.SignIn(context.Background(), "amal@example.com", "secret", false)
	require.NoError(t, err)
	token, marker = c.Credentials()
	assert.Equal(t, "tok-amal@example.com", token)
	assert.True(t, marker)
}

func TestContext_SignInWritesNothingWhenMarkerFails(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(f.dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	f.marker = FileMarker{Path: filepath.Join(blocker, "session_active")}

	c := f.newContext()
	_, err := c.SignIn(context.Background(), "amal@example.com", "secret", false)
	require.Error(t, err)
	assert.NoFileExists(t, f.store.Path)
	assert.False(t, c.Current().Authenticated())
}

func TestContext_SignInClearsMarkerWhenSaveFails(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(f.dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	f.store = FileStore{Path: filepath.Join(blocker, "session.json")}

	c := f.newContext()
	_, err := c.SignIn(context.Background(), "amal@example.com", "secret", false)
	require.Error(t, err)
	assert.False(t, f.marker.Present())
	assert.False(t, c.Current().Authenticated())
}
