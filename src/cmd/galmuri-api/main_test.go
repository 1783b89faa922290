package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galmuri-capture/src/api"
)

const testUser = "3f2b7a1e-8c44-4d6a-9a51-0d2c3e4f5a6b"

func TestPNGValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"ValidPNG", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00}, false},
		{"InvalidMagic", []byte{0x00, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, true},
		{"TooShort", []byte{0x89, 'P', 'N', 'G'}, true},
		{"Empty", []byte{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePNG(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePNG() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func execute(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GALMURI_CAPTURE", "")
	t.Setenv("GALMURI_API_KEY", "test-key")
	t.Setenv("GALMURI_API_KEY_FILE", t.TempDir()+"/missing")
	var out bytes.Buffer
	cmd := newRootCmd(&cliOptions{}, &out, bytes.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCaptureUploadsStdin(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x01, 0x02}
	var got api.CaptureRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/capture", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(api.Item{ID: "item-1", UserID: got.UserID})
	}))
	defer srv.Close()

	out, err := execute(t, png, "capture", "--file", "-", "--url", srv.URL, "--user", testUser, "--memo", "hello")
	require.NoError(t, err)

	assert.Equal(t, testUser, got.UserID)
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), got.ImageData)
	assert.Equal(t, "hello", got.MemoContent)
	assert.Equal(t, api.PlatformMobileApp, got.Platform)
	assert.Contains(t, out, `"id": "item-1"`)
}

func TestCaptureRejectsNonPNG(t *testing.T) {
	_, err := execute(t, []byte("not a png"), "capture", "--file", "-", "--url", "http://127.0.0.1:1", "--user", testUser)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid PNG")
}

func TestSearchPrintsItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "receipt", req.Query)
		_ = json.NewEncoder(w).Encode([]api.Item{{ID: "a"}, {ID: "b"}})
	}))
	defer srv.Close()

	out, err := execute(t, nil, "search", "receipt", "--url", srv.URL, "--user", testUser)
	require.NoError(t, err)

	var items []api.Item
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 2)
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := execute(t, nil, "search", "--url", "http://127.0.0.1:1", "--user", testUser)
	require.Error(t, err)
}
