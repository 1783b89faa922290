package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galmuri-capture/src/apperr"
	"galmuri-capture/src/bridge"
)

type fakeBridge struct {
	results map[string]any
	errs    map[string]error
	tapErr  error
	taps    int
	events  chan bridge.Event
}

func (f *fakeBridge) Call(_ context.Context, method string) (any, error) {
	if err, ok := f.errs[method]; ok {
		return nil, err
	}
	if res, ok := f.results[method]; ok {
		return res, nil
	}
	return nil, apperr.NotImplemented(method)
}

func (f *fakeBridge) Tap(context.Context) error {
	f.taps++
	return f.tapErr
}

func (f *fakeBridge) Subscribe() (<-chan bridge.Event, func()) { return f.events, func() {} }

func (f *fakeBridge) State() bridge.State { return bridge.ShowingOverlay }

func newTestServer(t *testing.T, fb *fakeBridge) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(fb, "test").Router())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]json.RawMessage
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestCallResult(t *testing.T) {
	fb := &fakeBridge{results: map[string]any{bridge.MethodShowOverlay: bridge.ResultOverlayShown}}
	ts := newTestServer(t, fb)

	resp, body := post(t, ts.URL+"/v1/call/showOverlay")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"overlay_shown"`, string(body["result"]))
}

func TestCallErrors(t *testing.T) {
	fb := &fakeBridge{errs: map[string]error{
		bridge.MethodRequestScreenCapture: apperr.PermissionDenied("user declined screen capture"),
		bridge.MethodShowOverlay:          apperr.Busy(bridge.MethodShowOverlay),
	}}
	ts := newTestServer(t, fb)

	cases := []struct {
		method string
		status int
		code   string
	}{
		{"requestScreenCapture", http.StatusForbidden, "PERMISSION_DENIED"},
		{"showOverlay", http.StatusConflict, "BUSY"},
		{"nope", http.StatusNotFound, "NOT_IMPLEMENTED"},
	}
	for _, tc := range cases {
		resp, body := post(t, ts.URL+"/v1/call/"+tc.method)
		assert.Equal(t, tc.status, resp.StatusCode, tc.method)
		var e errorBody
		require.NoError(t, json.Unmarshal(body["error"], &e))
		assert.Equal(t, tc.code, e.Code, tc.method)
		assert.NotEmpty(t, e.Message)
	}
}

func TestTap(t *testing.T) {
	fb := &fakeBridge{}
	ts := newTestServer(t, fb)
	resp, _ := post(t, ts.URL+"/v1/tap")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, fb.taps)

	fb.tapErr = apperr.CaptureTimeout(time.Second)
	resp, _ = post(t, ts.URL+"/v1/tap")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestEventsStream(t *testing.T) {
	fb := &fakeBridge{events: make(chan bridge.Event, 1)}
	ts := newTestServer(t, fb)

	resp, err := http.Get(ts.URL + "/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	fb.events <- bridge.Event{ID: "01J", Type: bridge.EventScreenCaptured, ImageBase64: "aGk=", Width: 2, Height: 1}
	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 3 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimSpace(line))
	}
	assert.Equal(t, "id: 01J", lines[0])
	assert.Equal(t, "event: screen_captured", lines[1])
	require.True(t, strings.HasPrefix(lines[2], "data: "))
	var ev bridge.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &ev))
	assert.Equal(t, "aGk=", ev.ImageBase64)
	assert.Equal(t, 2, ev.Width)
}

func TestStatusAndHealth(t *testing.T) {
	ts := newTestServer(t, &fakeBridge{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(page), "<h1>Galmuri Capture</h1>")
	assert.Contains(t, string(page), "<table>")
	assert.Contains(t, string(page), "showing_overlay")

	resp, err = http.Get(ts.URL + "/v1/state")
	require.NoError(t, err)
	var state map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	resp.Body.Close()
	assert.Equal(t, "showing_overlay", state["state"])

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
