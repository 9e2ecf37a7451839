package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vwsim/framework/pkg/errors"
	"github.com/vwsim/framework/pkg/health"
	"github.com/vwsim/framework/pkg/types"
)

type fakeCache struct{ stats types.CacheStats }

func (f *fakeCache) Stats() types.CacheStats { return f.stats }

type fakePool struct{ stats types.PoolStats }

func (f *fakePool) Stats() types.PoolStats { return f.stats }

func testConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      0,
		Path:      "/metrics",
		Namespace: "vwsim",
		Labels:    map[string]string{"region": "sim-1"},
	}
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := testConfig()
		collector, err := NewCollector(config, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.Registry() == nil {
			t.Error("collector.registry is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil, nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Port != 8080 {
			t.Errorf("default port = %d, want 8080", collector.config.Port)
		}
		if collector.config.Path != "/metrics" {
			t.Errorf("default path = %q, want %q", collector.config.Path, "/metrics")
		}
		if collector.config.Namespace != "vwsim" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "vwsim")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false}, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.Registry() != nil {
			t.Error("disabled collector should not have registry")
		}
		// Recording on a disabled collector is a no-op.
		collector.RecordMaintenance("cache", time.Millisecond, 3)
		collector.RecordMaintenanceError("cache")
		if err := collector.Start(context.Background()); err != nil {
			t.Errorf("Start() on disabled collector error = %v", err)
		}
		if collector.Addr() != "" {
			t.Error("disabled collector should not listen")
		}
	})
}

func TestSourceScrape(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	cache := &fakeCache{stats: types.CacheStats{Entries: 3, Size: 30, Capacity: 100, Hits: 7, Misses: 2, Evictions: 1}}
	pool := &fakePool{stats: types.PoolStats{Retained: 4, Leases: 10, Hits: 6, Misses: 4, AllocatedBytes: 1024}}

	if err := collector.RegisterCache("textures", cache); err != nil {
		t.Fatal(err)
	}
	if err := collector.RegisterPool("udp", pool); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP vwsim_cache_hits_total Total number of cache hits
# TYPE vwsim_cache_hits_total counter
vwsim_cache_hits_total{cache="textures",region="sim-1"} 7
# HELP vwsim_cache_size_units Occupied cache size in sizing units
# TYPE vwsim_cache_size_units gauge
vwsim_cache_size_units{cache="textures",region="sim-1"} 30
# HELP vwsim_pool_allocated_bytes Bytes held idle by the pool
# TYPE vwsim_pool_allocated_bytes gauge
vwsim_pool_allocated_bytes{pool="udp",region="sim-1"} 1024
# HELP vwsim_pool_hits_total Total number of leases served from the pool
# TYPE vwsim_pool_hits_total counter
vwsim_pool_hits_total{pool="udp",region="sim-1"} 6
`
	err = testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected),
		"vwsim_cache_hits_total", "vwsim_cache_size_units",
		"vwsim_pool_allocated_bytes", "vwsim_pool_hits_total")
	if err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	// Values are read live on every scrape.
	cache.stats.Hits = 9
	count, err := testutil.GatherAndCount(collector.Registry(), "vwsim_cache_hits_total")
	if err != nil || count != 1 {
		t.Errorf("GatherAndCount = %d, %v", count, err)
	}

	collector.Unregister("textures")
	count, err = testutil.GatherAndCount(collector.Registry(), "vwsim_cache_hits_total")
	if err != nil || count != 0 {
		t.Errorf("after Unregister GatherAndCount = %d, %v", count, err)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := collector.RegisterCache("a", &fakeCache{}); err != nil {
		t.Fatal(err)
	}
	err = collector.RegisterCache("a", &fakeCache{})
	if !errors.HasCode(err, errors.ErrCodeDuplicateRegistration) {
		t.Errorf("RegisterCache duplicate error = %v", err)
	}

	if err := collector.RegisterPool("p", &fakePool{}); err != nil {
		t.Fatal(err)
	}
	err = collector.RegisterPool("p", &fakePool{})
	if !errors.HasCode(err, errors.ErrCodeDuplicateRegistration) {
		t.Errorf("RegisterPool duplicate error = %v", err)
	}
}

func TestRecordMaintenance(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	collector.RecordMaintenance("textures", 2*time.Millisecond, 5)
	collector.RecordMaintenance("textures", time.Millisecond, 0)
	collector.RecordMaintenanceError("udp")

	if got := testutil.ToFloat64(collector.maintenancePurged.WithLabelValues("textures")); got != 5 {
		t.Errorf("purged = %v, want 5", got)
	}
	if got := testutil.ToFloat64(collector.maintenanceErrors.WithLabelValues("udp")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(collector.maintenanceDuration); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := collector.RegisterPool("udp", &fakePool{stats: types.PoolStats{Retained: 2}}); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(collector.Handler())
	defer server.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), `vwsim_pool_retained{pool="udp",region="sim-1"} 2`) {
			t.Errorf("metrics body missing pool gauge:\n%s", body)
		}
	})

	t.Run("debug stats", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/debug/stats")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var snap Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if snap.Pools["udp"].Retained != 2 {
			t.Errorf("snapshot = %+v", snap)
		}
	})
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := collector.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := collector.Start(ctx); !errors.HasCode(err, errors.ErrCodeAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ALREADY_STARTED", err)
	}

	resp, err := http.Get("http://" + collector.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	if err := collector.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if collector.Addr() != "" {
		t.Error("Addr() should be empty after Stop")
	}
	if err := collector.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestCollector_HealthReportsTracker(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	tracker, err := health.NewTracker(health.TrackerConfig{ErrorThreshold: 1, UnavailableThreshold: 2})
	if err != nil {
		t.Fatal(err)
	}
	collector.SetHealthTracker(tracker)

	server := httptest.NewServer(collector.Handler())
	defer server.Close()

	get := func() (int, string, int) {
		t.Helper()
		resp, err := http.Get(server.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var body struct {
			Status     string            `json:"status"`
			Components []json.RawMessage `json:"components"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode, body.Status, len(body.Components)
	}

	tracker.RecordSuccess("pool/buffers")
	tracker.RecordError("cache/textures", errors.NewError(errors.ErrCodePanicRecovered, "boom"))
	if code, status, n := get(); code != http.StatusOK || status != "degraded" || n != 2 {
		t.Errorf("degraded: code=%d status=%s components=%d", code, status, n)
	}

	tracker.RecordError("cache/textures", errors.NewError(errors.ErrCodePanicRecovered, "boom"))
	if code, status, _ := get(); code != http.StatusServiceUnavailable || status != "unavailable" {
		t.Errorf("unavailable: code=%d status=%s", code, status)
	}
}
