package api_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzstop/hw05-final/cmd/api"
	"github.com/zzstop/hw05-final/cmd/config"
	"github.com/zzstop/hw05-final/cmd/utils"
	"github.com/zzstop/hw05-final/db/dbtest"
)

func newServer(t *testing.T) (*api.APIServer, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		ServerPort:    "0",
		SecretKey:     "test-secret",
		SessionTTL:    time.Hour,
		MediaRoot:     t.TempDir(),
		IndexCacheTTL: time.Second,
	}
	server, err := api.NewApiServer(cfg, dbtest.New(t))
	require.NoError(t, err)
	return server, cfg
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestRouting(t *testing.T) {
	server, _ := newServer(t)
	h := server.Handler()

	tests := []struct {
		target   string
		code     int
		location string
	}{
		{target: "/", code: http.StatusOK},
		{target: "/about/author/", code: http.StatusOK},
		{target: "/about/tech/", code: http.StatusOK},
		{target: "/auth/login/", code: http.StatusOK},
		{target: "/auth/signup/", code: http.StatusOK},
		{target: "/follow/", code: http.StatusFound, location: utils.LoginRedirectURL("/follow/")},
		{target: "/new/", code: http.StatusFound, location: utils.LoginRedirectURL("/new/")},
		{target: "/new", code: http.StatusMovedPermanently, location: "/new/"},
		{target: "/ghost/", code: http.StatusNotFound},
		{target: "/group/ghost/", code: http.StatusNotFound},
		{target: "/a/b/c/d/", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := serve(h, tt.target)
			assert.Equal(t, tt.code, w.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, w.Header().Get("Location"))
			}
		})
	}
}

func TestSlashRedirectKeepsMethod(t *testing.T) {
	server, _ := newServer(t)
	h := server.Handler()

	tests := []struct {
		method   string
		target   string
		code     int
		location string
	}{
		{method: http.MethodPost, target: "/new", code: http.StatusPermanentRedirect, location: "/new/"},
		{method: http.MethodPost, target: "/leo/1/comment", code: http.StatusPermanentRedirect, location: "/leo/1/comment/"},
		{method: http.MethodPost, target: "/leo/follow?next=x", code: http.StatusPermanentRedirect, location: "/leo/follow/?next=x"},
		{method: http.MethodGet, target: "/new", code: http.StatusMovedPermanently, location: "/new/"},
		{method: http.MethodPost, target: "/a/b/c/d", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, tt.code, w.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, w.Header().Get("Location"))
			}
		})
	}
}

func TestNotFoundPage(t *testing.T) {
	server, _ := newServer(t)

	w := serve(server.Handler(), "/does/not/exist/at/all/")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "/does/not/exist/at/all/")
}

func TestMediaIsServed(t *testing.T) {
	server, cfg := newServer(t)

	dir := filepath.Join(cfg.MediaRoot, utils.PostImageDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pic.gif"), []byte("GIF89a"), 0644))

	w := serve(server.Handler(), "/media/posts/pic.gif")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GIF89a", w.Body.String())

	w = serve(server.Handler(), "/media/posts/missing.gif")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(server.Handler(), "/media/posts/")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "pic.gif")
}
