package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI plays both roles the client talks to: the upload API and the
// presigned-URL targets in the object store.
type fakeAPI struct {
	mu         sync.Mutex
	srv        *httptest.Server
	apiKey     string
	parts      map[int][]byte // part number -> bytes
	single     []byte
	completed  []map[string]any
	aborted    bool
	failPart   int // part number whose PUT returns 500; 0 disables
	createFail string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{apiKey: "k", parts: map[int][]byte{}}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /uploads/sign-put", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkKey(t, r) {
			writeJSON(w, map[string]any{"ok": false, "error": "unauthorized"})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "key": "uploads/gen", "url": f.srv.URL + "/blob/single"})
	})

	mux.HandleFunc("PUT /blob/single", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.single = body
		f.mu.Unlock()
		w.Header().Set("ETag", `"single-etag"`)
	})

	mux.HandleFunc("POST /uploads/create", func(w http.ResponseWriter, r *http.Request) {
		if f.createFail != "" {
			writeJSON(w, map[string]any{"ok": false, "error": f.createFail})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "bucket": "b", "key": "uploads/multi", "uploadId": "u1"})
	})

	mux.HandleFunc("POST /uploads/sign-part", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PartNumber int `json:"partNumber"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, map[string]any{"ok": true, "url": fmt.Sprintf("%s/blob/part/%d", f.srv.URL, req.PartNumber)})
	})

	mux.HandleFunc("PUT /blob/part/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("n"))
		if f.failPart != 0 && n == f.failPart {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.parts[n] = body
		f.mu.Unlock()
		w.Header().Set("ETag", fmt.Sprintf(`"etag-%d"`, n))
	})

	mux.HandleFunc("POST /uploads/complete", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.completed = append(f.completed, req)
		f.mu.Unlock()
		writeJSON(w, map[string]any{"ok": true, "location": "https://store.test/uploads/multi", "etag": `"final"`})
	})

	mux.HandleFunc("POST /uploads/abort", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.aborted = true
		f.mu.Unlock()
		writeJSON(w, map[string]any{"ok": true})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) checkKey(t *testing.T, r *http.Request) bool {
	t.Helper()
	return r.Header.Get("X-API-Key") == f.apiKey
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) client(partSize int64) *Client {
	return &Client{
		BaseURL:  f.srv.URL,
		APIKey:   f.apiKey,
		PartSize: partSize,
		Parallel: 2,
	}
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestUploadFile_Single(t *testing.T) {
	api := newFakeAPI(t)
	data := []byte("small payload")
	path := writeTempFile(t, data)

	result, err := api.client(1 << 20).UploadFile(context.Background(), path, Options{ContentType: "application/pdf"})
	require.NoError(t, err)

	assert.Equal(t, "uploads/gen", result.Key)
	assert.Equal(t, `"single-etag"`, result.ETag)
	assert.Equal(t, data, api.single)
	assert.Empty(t, api.completed, "single PUT must not run the multipart protocol")
}

func TestUploadFile_Multipart(t *testing.T) {
	api := newFakeAPI(t)

	// 10 bytes at 4-byte parts: parts of 4, 4 and 2 bytes.
	data := []byte("0123456789")
	path := writeTempFile(t, data)

	result, err := api.client(4).UploadFile(context.Background(), path, Options{
		ContentType: "application/octet-stream",
		MilestoneID: "m1",
		Name:        "payload.bin",
	})
	require.NoError(t, err)
	assert.Equal(t, "uploads/multi", result.Key)
	assert.Equal(t, "https://store.test/uploads/multi", result.Location)

	// Reassemble from the uploaded parts.
	require.Len(t, api.parts, 3)
	var joined []byte
	for n := 1; n <= 3; n++ {
		joined = append(joined, api.parts[n]...)
	}
	assert.Equal(t, data, joined)

	// The completion call carries the part list in ascending order and the
	// record fields.
	require.Len(t, api.completed, 1)
	req := api.completed[0]
	assert.Equal(t, "m1", req["milestoneId"])
	assert.Equal(t, "payload.bin", req["name"])

	parts := req["parts"].([]any)
	require.Len(t, parts, 3)
	for i, raw := range parts {
		part := raw.(map[string]any)
		assert.Equal(t, float64(i+1), part["PartNumber"])
		assert.Equal(t, fmt.Sprintf(`"etag-%d"`, i+1), part["ETag"])
	}

	assert.False(t, api.aborted)
}

func TestUploadFile_PartFailureAborts(t *testing.T) {
	api := newFakeAPI(t)
	api.failPart = 2

	path := writeTempFile(t, []byte("0123456789"))

	_, err := api.client(4).UploadFile(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "part 2")
	assert.True(t, api.aborted, "failed multipart upload must be aborted")
	assert.Empty(t, api.completed)
}

func TestUploadFile_CreateErrorSurfaced(t *testing.T) {
	api := newFakeAPI(t)
	api.createFail = "size 999 exceeds the limit"

	path := writeTempFile(t, []byte("0123456789"))

	_, err := api.client(4).UploadFile(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size 999 exceeds the limit")
}

func TestUploadFile_MissingFile(t *testing.T) {
	api := newFakeAPI(t)

	_, err := api.client(4).UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.bin"), Options{})
	require.Error(t, err)
}
