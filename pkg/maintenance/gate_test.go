package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/refit/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, opts Options) *Gate {
	t.Helper()
	g, err := NewGate(filepath.Join(t.TempDir(), "maintenance.json"), opts)
	require.NoError(t, err)
	return g
}

func TestNewGateDefaults(t *testing.T) {
	g := newTestGate(t, Options{})

	cfg := g.Config()
	assert.False(t, cfg.Enabled)
	assert.Nil(t, cfg.StartedAt)
	assert.Equal(t, DefaultAllowList, cfg.IPAllowList)
	assert.False(t, g.IsActive())
	assert.False(t, g.ShouldGate("203.0.113.9"))
}

func TestEnableDisable(t *testing.T) {
	g := newTestGate(t, Options{})
	fixed := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	changed, err := g.Enable(EnableOptions{Message: "upgrading", AutoMode: true, EstimatedMinutes: 15})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, g.IsActive())

	cfg := g.Config()
	assert.Equal(t, "upgrading", cfg.Message)
	assert.Equal(t, "Under maintenance", cfg.Title)
	assert.True(t, cfg.AutoMode)
	require.NotNil(t, cfg.StartedAt)
	assert.True(t, fixed.Equal(*cfg.StartedAt))
	require.NotNil(t, cfg.EstimatedEnd)
	assert.Equal(t, 15*time.Minute, cfg.EstimatedEnd.Sub(*cfg.StartedAt))

	// Enabling again keeps the original start time
	g.now = func() time.Time { return fixed.Add(time.Minute) }
	changed, err = g.Enable(EnableOptions{})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, fixed.Equal(*g.Config().StartedAt))
	assert.Equal(t, "upgrading", g.Config().Message)

	changed, err = g.Disable()
	require.NoError(t, err)
	assert.True(t, changed)

	cfg = g.Config()
	assert.False(t, cfg.Enabled)
	assert.Nil(t, cfg.StartedAt)
	assert.Nil(t, cfg.EstimatedEnd)
	assert.False(t, cfg.AutoMode)

	changed, err = g.Disable()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maintenance.json")
	g, err := NewGate(path, Options{})
	require.NoError(t, err)

	_, err = g.Enable(EnableOptions{Message: "back soon", IPAllowList: []string{"10.0.0.0/8"}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk types.MaintenanceConfig
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.True(t, onDisk.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8"}, onDisk.IPAllowList)

	// A new process sees the same state
	reopened, err := NewGate(path, Options{})
	require.NoError(t, err)
	assert.True(t, reopened.IsActive())
	assert.False(t, reopened.ShouldGate("10.1.2.3"))
	assert.True(t, reopened.ShouldGate("192.168.1.1"))
}

func TestCorruptRecordStartsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maintenance.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	g, err := NewGate(path, Options{})
	require.NoError(t, err)
	assert.False(t, g.IsActive())
}

func TestDisabledRecordDropsStartedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maintenance.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"enabled":false,"startedAt":"2026-01-01T00:00:00Z"}`), 0644))

	g, err := NewGate(path, Options{})
	require.NoError(t, err)
	assert.Nil(t, g.Config().StartedAt)
}

func TestShouldGateLoopbackEquivalence(t *testing.T) {
	for _, entry := range []string{"127.0.0.1", "::1", "localhost"} {
		t.Run(entry, func(t *testing.T) {
			g := newTestGate(t, Options{})
			_, err := g.Enable(EnableOptions{IPAllowList: []string{entry}})
			require.NoError(t, err)

			for _, client := range []string{"127.0.0.1", "::1", "localhost", "::ffff:127.0.0.1", "127.0.0.2"} {
				assert.False(t, g.ShouldGate(client), "client %s with allow list [%s]", client, entry)
			}
			assert.True(t, g.ShouldGate("198.51.100.7"))
		})
	}
}

func TestShouldGate(t *testing.T) {
	g := newTestGate(t, Options{})
	_, err := g.Enable(EnableOptions{IPAllowList: []string{"192.0.2.10", "10.0.0.0/8", "2001:db8::/32"}})
	require.NoError(t, err)

	tests := []struct {
		client string
		gated  bool
	}{
		{"192.0.2.10", false},
		{"::ffff:192.0.2.10", false},
		{"192.0.2.11", true},
		{"10.200.1.1", false},
		{"2001:db8::42", false},
		{"[2001:db8::42]", false},
		{"2001:db9::1", true},
		{"127.0.0.1", true},
		{"", true},
		{"garbage", true},
	}
	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			assert.Equal(t, tt.gated, g.ShouldGate(tt.client))
		})
	}
}

func TestEnableRejectsInvalidAllowList(t *testing.T) {
	g := newTestGate(t, Options{})
	_, err := g.Enable(EnableOptions{IPAllowList: []string{"not-an-ip"}})
	assert.Error(t, err)
	assert.False(t, g.IsActive())

	_, err = NewGate(filepath.Join(t.TempDir(), "m.json"), Options{AllowList: []string{"10.0.0.0/99"}})
	assert.Error(t, err)
}

func TestNormalizeIP(t *testing.T) {
	tests := map[string]string{
		"localhost":       "127.0.0.1",
		"::1":             "127.0.0.1",
		"127.0.0.1":       "127.0.0.1",
		"::ffff:10.0.0.1": "10.0.0.1",
		"2001:DB8::1":     "2001:db8::1",
		" 192.0.2.1 ":     "192.0.2.1",
	}
	for in, want := range tests {
		got, ok := NormalizeIP(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := NormalizeIP("nope")
	assert.False(t, ok)
}

func TestShouldGateConcurrentWithWriters(t *testing.T) {
	g := newTestGate(t, Options{})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					g.ShouldGate("203.0.113.1")
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		_, err := g.Enable(EnableOptions{AutoMode: true})
		require.NoError(t, err)
		_, err = g.Disable()
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.False(t, g.IsActive())
}

func TestMiddleware(t *testing.T) {
	g := newTestGate(t, Options{BypassPaths: []string{"/healthz", "/api/update"}})
	fixed := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := g.Middleware(next)

	request := func(path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	// Gate off: everything passes
	assert.Equal(t, http.StatusTeapot, request("/", "203.0.113.5:4000").Code)

	_, err := g.Enable(EnableOptions{Title: "Upgrade <v2>", Message: "Hang tight", EstimatedMinutes: 2})
	require.NoError(t, err)

	rec := request("/", "203.0.113.5:4000")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "120", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Hang tight")
	assert.Contains(t, rec.Body.String(), "Upgrade &lt;v2&gt;")
	assert.Contains(t, rec.Body.String(), "Expected back by")

	// Loopback clients and bypassed paths pass
	assert.Equal(t, http.StatusTeapot, request("/", "127.0.0.1:5000").Code)
	assert.Equal(t, http.StatusTeapot, request("/", "[::1]:5000").Code)
	assert.Equal(t, http.StatusTeapot, request("/healthz", "203.0.113.5:4000").Code)
	assert.Equal(t, http.StatusTeapot, request("/api/update/status", "203.0.113.5:4000").Code)
	assert.Equal(t, http.StatusServiceUnavailable, request("/api/updates", "203.0.113.5:4000").Code)
}

func TestMiddlewareNoEstimate(t *testing.T) {
	g := newTestGate(t, Options{})
	_, err := g.Enable(EnableOptions{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:1234"
	g.Middleware(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "Expected back by")
}

func TestClientIPTrustProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:8080"
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")

	plain := newTestGate(t, Options{})
	assert.Equal(t, "10.0.0.1", plain.ClientIP(req))

	proxied := newTestGate(t, Options{TrustProxy: true})
	assert.Equal(t, "198.51.100.4", proxied.ClientIP(req))
}

func TestWatchReloadsExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maintenance.json")
	g, err := NewGate(path, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Watch(ctx) }()

	// Give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	other, err := NewGate(path, Options{})
	require.NoError(t, err)
	_, err = other.Enable(EnableOptions{Message: "from the CLI"})
	require.NoError(t, err)

	assert.Eventually(t, g.IsActive, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "from the CLI", g.Config().Message)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
