package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

type backend struct {
	srv      *httptest.Server
	sessions map[string]domain.Session
	markers  int
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{sessions: map[string]domain.Session{
		"amal@example.com": {Token: "user-token", Persistence: domain.PersistenceSession,
			Identity: domain.Identity{ID: "u-1", Email: "amal@example.com", FullName: "Amal Rashid", Role: domain.RoleUser}},
		"it@example.com": {Token: "admin-token", Persistence: domain.PersistencePersistent,
			Identity: domain.Identity{ID: "a-1", Email: "it@example.com", FullName: "IT Support", Role: domain.RoleAdmin}},
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email      string `json:"email"`
			Password   string `json:"password"`
			RememberMe bool   `json:"remember_me"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		issued, ok := b.sessions[body.Email]
		if !ok || body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid login credentials"}}`))
			return
		}
		issued.ExpiresAt = time.Now().Add(time.Hour)
		writeData(w, issued)
	})
	mux.HandleFunc("POST /auth/signout", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]string{"status": "signed_out"})
	})
	mux.HandleFunc("GET /tickets", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if c, err := r.Cookie("session_active"); err == nil && c.Value != "" {
			b.markers++
		}
		writeData(w, []domain.TicketView{
			{Ticket: domain.Ticket{ID: "t-2", Title: "VPN down", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityHigh, Category: domain.CategoryIT}},
			{Ticket: domain.Ticket{ID: "t-1", Title: "New mouse", Status: domain.TicketStatusClosed, Priority: domain.TicketPriorityLow, Category: domain.CategoryIT}},
		})
	})
	mux.HandleFunc("POST /admin/tickets/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{
			"ticket":   domain.TicketView{Ticket: domain.Ticket{ID: r.PathValue("id"), Status: domain.TicketStatusInProgress}},
			"warnings": []any{map[string]string{"stage": "notification", "message": "email notification could not be sent"}},
		})
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func (b *backend) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(strings.NewReader(stdin), &out)
	root.SetArgs(append([]string{"--api-url", b.srv.URL}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(dir, "run"))
	t.Setenv("HELPDESK_SESSION_FILE", filepath.Join(dir, "session.json"))
	return dir
}

func TestLoginPersistsSessionAndMarker(t *testing.T) {
	dir := isolate(t)
	b := newBackend(t)

	out, err := b.run(t, "secret\n", "login", "--email", "amal@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as amal@example.com")
	assert.FileExists(t, filepath.Join(dir, "session.json"))
	assert.FileExists(t, filepath.Join(dir, "run", appName, "session_active"))

	out, err = b.run(t, "", "tickets", "list", "--status", "open")
	require.NoError(t, err)
	assert.Contains(t, out, "VPN down")
	assert.NotContains(t, out, "New mouse")
	assert.Equal(t, 1, b.markers, "the marker travels as a cookie")

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "run")))
	_, err = b.run(t, "", "tickets", "list")
	assert.ErrorIs(t, err, errNotSignedIn, "session-only sign-in ends with the marker")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	isolate(t)
	b := newBackend(t)

	_, err := b.run(t, "", "login", "--email", "amal@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid login credentials", Describe(err))
}

func TestAdminCommandsNeedAdmin(t *testing.T) {
	isolate(t)
	b := newBackend(t)

	_, err := b.run(t, "", "login", "--email", "amal@example.com", "--password", "secret")
	require.NoError(t, err)
	_, err = b.run(t, "", "admin", "start", "t-1")
	assert.ErrorIs(t, err, errAdminOnly)

	_, err = b.run(t, "", "login", "--email", "it@example.com", "--password", "secret", "--remember")
	require.NoError(t, err)
	out, err := b.run(t, "", "admin", "start", "t-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Ticket t-1 is now in_progress")
	assert.Contains(t, out, "email notification could not be sent")
}

func TestLogout(t *testing.T) {
	dir := isolate(t)
	b := newBackend(t)

	_, err := b.run(t, "", "login", "--email", "it@example.com", "--password", "secret", "--remember")
	require.NoError(t, err)
	out, err := b.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
	assert.NoFileExists(t, filepath.Join(dir, "session.json"))
}
