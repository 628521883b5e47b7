//nolint:noctx // Test file uses http.Get for convenience; context not required in tests
package oauth

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, state string) *CallbackServer {
	t.Helper()
	server := NewCallbackServer(0, state)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func callback(t *testing.T, server *CallbackServer, query url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(server.RedirectURI() + "?" + query.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewCallbackServer(t *testing.T) {
	server := NewCallbackServer(8085, "state-123")

	require.NotNil(t, server)
	assert.Equal(t, 8085, server.Port())
	assert.Equal(t, "http://127.0.0.1:8085/callback", server.RedirectURI())
	assert.Nil(t, server.server)
}

func TestCallbackServer_Start_PicksPort(t *testing.T) {
	server := startServer(t, "s")

	assert.NotZero(t, server.Port())
	assert.Error(t, server.Start(), "second start fails")
}

func TestCallbackServer_Start_PortInUse(t *testing.T) {
	first := startServer(t, "s")

	second := NewCallbackServer(first.Port(), "s")
	err := second.Start()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

func TestCallbackServer_Success(t *testing.T) {
	server := startServer(t, "state-abc")

	resp, body := callback(t, server, url.Values{"code": {"auth-code"}, "state": {"state-abc"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Mailbox connected")

	code, err := server.WaitForCode(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "auth-code", code)
}

func TestCallbackServer_Failures(t *testing.T) {
	tests := []struct {
		name       string
		query      url.Values
		wantStatus int
		wantErr    string
	}{
		{
			name:       "state mismatch",
			query:      url.Values{"code": {"c"}, "state": {"other"}},
			wantStatus: http.StatusBadRequest,
			wantErr:    "state mismatch",
		},
		{
			name:       "state is case sensitive",
			query:      url.Values{"code": {"c"}, "state": {"EXPECTED"}},
			wantStatus: http.StatusBadRequest,
			wantErr:    "state mismatch",
		},
		{
			name:       "missing code",
			query:      url.Values{"state": {"expected"}},
			wantStatus: http.StatusBadRequest,
			wantErr:    "no authorization code",
		},
		{
			name:       "provider error",
			query:      url.Values{"error": {"access_denied"}, "error_description": {"User <denied>"}},
			wantStatus: http.StatusOK,
			wantErr:    "access_denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, "expected")

			resp, body := callback(t, server, tt.query)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, body, "Authorization failed")
			assert.NotContains(t, body, "<denied>")

			_, err := server.WaitForCode(waitCtx(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCallbackServer_FirstCallbackWins(t *testing.T) {
	server := startServer(t, "s")

	callback(t, server, url.Values{"code": {"first"}, "state": {"s"}})
	callback(t, server, url.Values{"code": {"second"}, "state": {"s"}})

	code, err := server.WaitForCode(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "first", code)
}

func TestCallbackServer_WaitForCode_Cancelled(t *testing.T) {
	server := startServer(t, "s")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := server.WaitForCode(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallbackServer_MethodAndPath(t *testing.T) {
	server := startServer(t, "s")

	resp, err := http.Post(server.RedirectURI(), "text/plain", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	base := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(server.Port()))
	resp, err = http.Get(base + "/other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCallbackServer_StopTwice(t *testing.T) {
	server := NewCallbackServer(0, "s")
	assert.NoError(t, server.Stop(), "stop before start")

	require.NoError(t, server.Start())
	assert.NoError(t, server.Stop())
	assert.NoError(t, server.Stop())
}

func TestResultPage_Escapes(t *testing.T) {
	page := resultPage("<b>title</b>", `a "quoted" & <i>message</i>`)

	assert.Contains(t, page, "&lt;b&gt;title&lt;/b&gt;")
	assert.Contains(t, page, "&amp;")
	assert.NotContains(t, page, "<i>")
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	require.NoError(t, err)
	b, err := GenerateState()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}
