package rod

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"
	"browser-mcp/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":            BasicHTML,
		"/form":        FormHTML,
		"/interactive": InteractiveHTML,
		"/links":       LinksHTML,
		"/done":        `<html><head><title>Done</title></head><body>submitted</body></html>`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestSession(t *testing.T) output.BrowserSession {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	cfg := entity.DefaultBrowserConfig()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LaunchTimeout)
	defer cancel()

	session, err := NewEngine(logger.NewNop()).Launch(ctx, cfg)
	if err != nil {
		t.Skipf("chromium is not available: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSession_Navigate(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	ctx := testContext(t)

	require.NoError(t, session.Navigate(ctx, server.URL))

	info, err := session.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/", info.URL)
	assert.Equal(t, "Test Page", info.Title)
}

func TestSession_Navigate_Unreachable(t *testing.T) {
	session := newTestSession(t)
	ctx := testContext(t)

	err := session.Navigate(ctx, "http://127.0.0.1:1/")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, output.ErrSessionClosed)
}

func TestSession_WaitFor_Expires(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	require.NoError(t, session.Navigate(testContext(t), server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := session.WaitFor(ctx, "#never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSession_TextAndHTML(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	ctx := testContext(t)
	require.NoError(t, session.Navigate(ctx, server.URL+"/links"))

	text, err := session.Text(ctx, "#nav")
	require.NoError(t, err)
	assert.Contains(t, text, "Page 1")
	assert.NotContains(t, text, "External")

	html, err := session.HTML(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, html, `href="https://example.com/"`)

	_, err = session.Text(ctx, "#missing")
	assert.ErrorIs(t, err, output.ErrElementNotFound)
}

func TestSession_Click(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	ctx := testContext(t)
	require.NoError(t, session.Navigate(ctx, server.URL+"/interactive"))

	require.NoError(t, session.Click(ctx, "#btn"))

	text, err := session.Text(ctx, "#result")
	require.NoError(t, err)
	assert.Equal(t, "Clicked!", text)
}

func TestSession_Click_WithXPath(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	ctx := testContext(t)
	require.NoError(t, session.Navigate(ctx, server.URL+"/interactive"))

	require.NoError(t, session.Click(ctx, "//button[@id='btn']"))
}

func TestSession_Click_ElementNotFound(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	require.NoError(t, session.Navigate(testContext(t), server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := session.Click(ctx, "#nonexistent")
	assert.ErrorIs(t, err, output.ErrElementNotFound)
}

func TestSession_FillAndSubmit(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	ctx := testContext(t)
	require.NoError(t, session.Navigate(ctx, server.URL+"/form"))

	require.NoError(t, session.Fill(ctx, "#username", "testuser"))
	require.NoError(t, session.Fill(ctx, "#color", "blue"))

	value, err := session.Evaluate(ctx, `document.querySelector('#username').value`)
	require.NoError(t, err)
	assert.Equal(t, "testuser", fmt.Sprint(value.Value))

	require.NoError(t, session.Submit(ctx, "#color"))
	require.NoError(t, session.WaitFor(ctx, "body"))
	assert.Eventually(t, func() bool {
		info, err := session.Info(ctx)
		return err == nil && info.Title == "Done"
	}, 5*time.Second, 100*time.Millisecond)
}

func TestSession_Screenshot(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	ctx := testContext(t)
	require.NoError(t, session.Navigate(ctx, server.URL))

	for _, req := range []entity.ScreenshotRequest{
		{Mode: entity.ScreenshotViewport},
		{Mode: entity.ScreenshotFullPage},
		{Mode: entity.ScreenshotElement, Selector: "h1"},
	} {
		data, err := session.Screenshot(ctx, req)
		require.NoError(t, err, req.Mode)
		assert.Equal(t, []byte("\x89PNG"), data[:4], req.Mode)
	}
}

func TestSession_Evaluate(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	ctx := testContext(t)
	require.NoError(t, session.Navigate(ctx, server.URL))

	tests := []struct {
		code         string
		typ          string
		serializable bool
		value        string
	}{
		{code: `document.title`, typ: "string", serializable: true, value: "Test Page"},
		{code: `1 + 1`, typ: "number", serializable: true, value: "2"},
		{code: `Promise.resolve(true)`, typ: "boolean", serializable: true, value: "true"},
		{code: `undefined`, typ: "undefined", serializable: true},
		{code: `null`, typ: "null", serializable: true},
		{code: `() => 1`, typ: "function"},
		{code: `Symbol('x')`, typ: "symbol"},
		{code: `NaN`, typ: "number"},
		{code: `(() => { const o = {}; o.self = o; return o })()`, typ: "object"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			v, err := session.Evaluate(ctx, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, v.Type)
			assert.Equal(t, tt.serializable, v.Serializable)
			if tt.value != "" {
				assert.Equal(t, tt.value, fmt.Sprint(v.Value))
			}
		})
	}

	v, err := session.Evaluate(ctx, `({a: [1, 2], b: "x"})`)
	require.NoError(t, err)
	assert.True(t, v.Serializable)
	assert.NotNil(t, v.Value)
}

func TestSession_Evaluate_Exception(t *testing.T) {
	session := newTestSession(t)
	ctx := testContext(t)

	_, err := session.Evaluate(ctx, `throw new Error("boom")`)
	assert.ErrorIs(t, err, output.ErrScriptFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestSession_Evaluate_EndlessScriptIsStopped(t *testing.T) {
	server := newTestServer(t)
	session := newTestSession(t)
	require.NoError(t, session.Navigate(testContext(t), server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := session.Evaluate(ctx, "while (true) {}")
	require.Error(t, err)

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelCheck()
	assert.True(t, session.Alive(checkCtx), "renderer must answer again once the script is stopped")
}

func TestSession_Close(t *testing.T) {
	session := newTestSession(t)
	ctx := testContext(t)

	assert.True(t, session.Alive(ctx))
	require.NoError(t, session.Close())
	assert.False(t, session.Alive(ctx))
	assert.NoError(t, session.Close())
}

func TestIsXPath(t *testing.T) {
	tests := []struct {
		selector string
		want     bool
	}{
		{"//div", true},
		{"/html/body", true},
		{"(//a)[1]", true},
		{"#id", false},
		{".class > a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isXPath(tt.selector), tt.selector)
	}
}
