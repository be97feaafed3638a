package builtin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"strings"
	"sync/atomic"
	"testing"

	"lmagent/internal/tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPEnv(t *testing.T, handler http.HandlerFunc) (*Env, string, *atomic.Int32) {
	t.Helper()
	env, _ := newTestEnv(t)
	// httptest listens on 127.0.0.1, which the default policy blocks.
	env.BlockedHosts = nil

	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return env, srv.URL, hits
}

func TestHTTPRequestJSON(t *testing.T) {
	env, url, _ := newHTTPEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "abc", r.Header.Get("X-Trace"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[1,2]}`))
	})

	res := run(t, NewHTTPTool(env), map[string]any{
		"url":     url + "/things",
		"params":  map[string]string{"page": "2"},
		"headers": map[string]string{"X-Trace": "abc"},
	})
	require.True(t, res.Success, res.Error)
	data := dataMap(t, res)
	assert.Equal(t, 200, data["status_code"])
	assert.Equal(t, true, data["is_json"])
	assert.Equal(t, map[string]any{"items": []any{1.0, 2.0}}, data["body"])
	assert.Equal(t, "application/json", data["headers"].(map[string]string)["Content-Type"])
}

func TestHTTPRequestPostsJSONBody(t *testing.T) {
	env, url, _ := newHTTPEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "x", body["name"])
		w.WriteHeader(http.StatusCreated)
	})

	res := run(t, NewHTTPTool(env), map[string]any{
		"url":    url,
		"method": "post",
		"body":   map[string]any{"name": "x"},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 201, dataMap(t, res)["status_code"])
}

func TestHTTPRequestNon2xx(t *testing.T) {
	env, url, _ := newHTTPEnv(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	res := run(t, NewHTTPTool(env), map[string]any{"url": url})
	assert.False(t, res.Success)
	assert.Equal(t, "HTTP 404", res.Error)
	assert.Equal(t, "nope\n", dataMap(t, res)["body"])
}

func TestHTTPRequestTruncatesBody(t *testing.T) {
	env, url, _ := newHTTPEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 100)))
	})
	env.Limits.MaxHTTPResponseBytes = 10

	res := run(t, NewHTTPTool(env), map[string]any{"url": url})
	require.True(t, res.Success, res.Error)
	data := dataMap(t, res)
	assert.Equal(t, strings.Repeat("a", 10)+tool.TruncationMarker, data["body"])
	assert.Equal(t, true, data["truncated"])
}

func TestHTTPRequestBlockedHosts(t *testing.T) {
	urls := []string{
		"http://169.254.169.254/latest/meta-data/",
		"http://metadata.google.internal/computeMetadata/v1/",
		"http://localhost:8080/admin",
		"http://127.0.0.1/",
		"http://0.0.0.0:9000/",
		"http://LOCALHOST/",
	}
	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			env, _ := newTestEnv(t)
			res := run(t, NewHTTPTool(env), map[string]any{"url": u})
			assert.Equal(t, tool.RejectBlockedURL, res.Rejection())
		})
	}
}

func TestHTTPRequestBlockedHostNeverConnects(t *testing.T) {
	env, url, hits := newHTTPEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	env.BlockedHosts = []string{"127.0.0.1"}

	res := run(t, NewHTTPTool(env), map[string]any{"url": url})
	assert.True(t, res.IsRejection())
	assert.Zero(t, hits.Load())
}

func TestHTTPRequestBlockedRedirect(t *testing.T) {
	var target string
	env, srvURL, hits := newHTTPEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/secret" {
			w.Write([]byte("metadata-secret"))
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
	env.BlockedHosts = []string{"localhost"}
	u, err := neturl.Parse(srvURL)
	require.NoError(t, err)
	target = "http://localhost:" + u.Port() + "/secret"

	res := run(t, NewHTTPTool(env), map[string]any{"url": srvURL + "/start"})
	assert.Equal(t, tool.RejectBlockedURL, res.Rejection())
	assert.Contains(t, res.Error, "URL blocked: localhost")
	assert.Equal(t, int32(1), hits.Load(), "the redirect target is never requested")

	// Redirects to allowed hosts are still followed.
	target = srvURL + "/secret"
	res = run(t, NewHTTPTool(env), map[string]any{"url": srvURL + "/start"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "metadata-secret", dataMap(t, res)["body"])
}

func TestHTTPRequestValidation(t *testing.T) {
	env, _ := newTestEnv(t)

	res := run(t, NewHTTPTool(env), map[string]any{"url": "http://example.com", "method": "TRACE"})
	assert.Contains(t, res.Error, "unsupported method")

	res = run(t, NewHTTPTool(env), map[string]any{"url": "file:///etc/passwd"})
	assert.False(t, res.Success)

	res = run(t, NewHTTPTool(env), map[string]any{"url": "not a url"})
	assert.Contains(t, res.Error, "invalid url")
}

func TestBlockedHostMatchesSubdomains(t *testing.T) {
	env, _ := newTestEnv(t)
	env.BlockedHosts = []string{"internal.example"}

	_, blocked := env.blockedHost("api.internal.example")
	assert.True(t, blocked)
	_, blocked = env.blockedHost("notinternal.example")
	assert.False(t, blocked)
}
