package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/ledgersync/internal/adapter/http/middleware"
)

type seenRequest struct {
	method string
	path   string
	actor  string
	role   string
	auth   string
}

func newAPI(t *testing.T, status int, body string) (*httptest.Server, *seenRequest) {
	t.Helper()
	seen := &seenRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = seenRequest{
			method: r.Method,
			path:   r.URL.Path,
			actor:  r.Header.Get(middleware.ActorIDHeader),
			role:   r.Header.Get(middleware.ActorRoleHeader),
			auth:   r.Header.Get("Authorization"),
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsHitEndpoints(t *testing.T) {
	tests := []struct {
		args   []string
		method string
		path   string
	}{
		{[]string{"sync", "status"}, http.MethodGet, "/api/v1/sync/status"},
		{[]string{"sync", "drain"}, http.MethodPost, "/api/v1/sync/drain"},
		{[]string{"queue", "list"}, http.MethodGet, "/api/v1/sync/queue"},
		{[]string{"account", "show", "u1"}, http.MethodGet, "/api/v1/accounts/u1"},
		{[]string{"admin", "view", "u1"}, http.MethodGet, "/api/v1/accounts/u1/admin-view"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			srv, seen := newAPI(t, http.StatusOK, `{"ok":true}`)

			out, err := execute(t, append(tt.args, "--url", srv.URL)...)
			require.NoError(t, err)
			assert.Equal(t, tt.method, seen.method)
			assert.Equal(t, tt.path, seen.path)
			assert.Equal(t, "cli", seen.actor)
			assert.Equal(t, "admin", seen.role)
			assert.Equal(t, "{\n  \"ok\": true\n}\n", out)
		})
	}
}

func TestBearerTokenReplacesHeaders(t *testing.T) {
	srv, seen := newAPI(t, http.StatusOK, `{}`)

	_, err := execute(t, "sync", "status", "--url", srv.URL, "--token", "abc")
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", seen.auth)
	assert.Empty(t, seen.actor)
}

func TestCommandReportsHTTPErrors(t *testing.T) {
	srv, _ := newAPI(t, http.StatusServiceUnavailable, `{"error":"remote store unreachable"}`)

	_, err := execute(t, "sync", "drain", "--url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "remote store unreachable")
}

func TestAccountShowRequiresID(t *testing.T) {
	_, err := execute(t, "account", "show")
	require.Error(t, err)
}

func TestMigrateCommands(t *testing.T) {
	orig := migrateFunc
	defer func() { migrateFunc = orig }()

	var calls []bool
	migrateFunc = func(databaseURL, migrationsPath string, up bool) error {
		assert.Equal(t, "postgres://x", databaseURL)
		calls = append(calls, up)
		return nil
	}

	out, err := execute(t, "migrate", "up", "--database-url", "postgres://x")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations complete")

	_, err = execute(t, "migrate", "down", "--database-url", "postgres://x")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, calls)

	migrateFunc = func(string, string, bool) error { return errors.New("dirty database") }
	_, err = execute(t, "migrate", "up", "--database-url", "postgres://x")
	assert.EqualError(t, err, "dirty database")
}

func TestMigrateRequiresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, "migrate", "up")
	require.Error(t, err)
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printJSON(&out, []byte(`{"a":1}`)))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", out.String())

	assert.Error(t, printJSON(&out, []byte("not json")))
}
