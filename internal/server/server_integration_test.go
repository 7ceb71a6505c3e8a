package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/minghan/handwave/internal/device"
	"github.com/minghan/handwave/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *device.StatusCache, map[string]*device.MockController) {
	t.Helper()

	cache := device.NewStatusCache(time.Minute, time.Second)
	ctrls := map[string]*device.MockController{
		"desk-lamp": device.NewMockController(device.State{Power: true, Brightness: 60, ColorTemp: 4000}),
		"ceiling":   device.NewMockController(device.State{Power: false, Brightness: 80, ColorTemp: 3000}),
	}
	for id, ctrl := range ctrls {
		cache.Register(device.Device{ID: id, Name: id, Kind: device.KindLight, Addr: "192.168.1.40"}, ctrl)
	}
	cache.RefreshAll(context.Background())

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	srv := New(Config{
		Cache:      cache,
		Dispatcher: device.NewDispatcher(cache, time.Second),
		Store:      s,
		Refresh:    func() { cache.RefreshAll(context.Background()) },
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return ts, cache, ctrls
}

func TestAPI_Health(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&health)
	if health.Status != "ok" {
		t.Errorf("health status = %q, want ok", health.Status)
	}
}

func TestAPI_DeviceWorkflow(t *testing.T) {
	ts, _, ctrls := newTestServer(t)
	client := ts.Client()

	// 1. List devices
	resp, err := client.Get(ts.URL + "/api/devices")
	if err != nil {
		t.Fatalf("GET /api/devices error = %v", err)
	}
	var list struct {
		Devices []struct {
			ID     string       `json:"id"`
			State  device.State `json:"state"`
			Online bool         `json:"online"`
		} `json:"devices"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()

	if len(list.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(list.Devices))
	}

	// 2. Get one device
	resp, _ = client.Get(ts.URL + "/api/devices/desk-lamp")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/devices/desk-lamp status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var got struct {
		ID     string       `json:"id"`
		State  device.State `json:"state"`
		Online bool         `json:"online"`
	}
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()

	if got.State.Brightness != 60 || !got.Online {
		t.Errorf("unexpected device response: %+v", got)
	}

	// 3. Power off via the API
	resp, err = client.Post(ts.URL+"/api/devices/desk-lamp/power", "application/json",
		bytes.NewBufferString(`{"on": false}`))
	if err != nil {
		t.Fatalf("POST power error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST power status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var dispatched struct {
		BatchID  string                    `json:"batch_id"`
		Outcomes map[string]device.Outcome `json:"outcomes"`
	}
	json.NewDecoder(resp.Body).Decode(&dispatched)
	resp.Body.Close()

	if !dispatched.Outcomes["desk-lamp"].OK {
		t.Errorf("expected power command to succeed, got %+v", dispatched.Outcomes)
	}
	if ctrls["desk-lamp"].State().Power {
		t.Error("expected device to be powered off")
	}

	// Only the addressed device was touched.
	if n := ctrls["ceiling"].CallCount("set_power off"); n != 0 {
		t.Errorf("expected other devices untouched, ceiling got %d commands", n)
	}

	// 4. Adjust brightness with clamping
	resp, _ = client.Post(ts.URL+"/api/devices/ceiling/brightness", "application/json",
		bytes.NewBufferString(`{"delta": 30}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST brightness status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	if got := ctrls["ceiling"].State().Brightness; got != 100 {
		t.Errorf("expected brightness clamped to 100, got %d", got)
	}

	// 5. Unknown device
	resp, _ = client.Get(ts.URL + "/api/devices/ghost")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET unknown device status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_Stats(t *testing.T) {
	ts, cache, _ := newTestServer(t)

	// Two fresh reads after the initial refresh are both hits.
	cache.Get(context.Background(), "desk-lamp")
	cache.Get(context.Background(), "desk-lamp")

	resp, err := ts.Client().Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats error = %v", err)
	}
	defer resp.Body.Close()

	var stats struct {
		Hits    uint64  `json:"hits"`
		Misses  uint64  `json:"misses"`
		HitRate float64 `json:"hit_rate"`
	}
	json.NewDecoder(resp.Body).Decode(&stats)

	if stats.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits)
	}
	if stats.HitRate != 1.0 {
		t.Errorf("expected hit rate 1.0, got %f", stats.HitRate)
	}
}

func TestAPI_Refresh(t *testing.T) {
	ts, _, ctrls := newTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/refresh error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("POST /api/refresh status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	// One probe from setup, one from the manual refresh.
	if n := ctrls["desk-lamp"].CallCount("get_state"); n != 2 {
		t.Errorf("expected manual refresh to probe, got %d probes", n)
	}

	// GET is rejected.
	resp, _ = ts.Client().Get(ts.URL + "/api/refresh")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/refresh status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestAPI_History(t *testing.T) {
	ts, _, _ := newTestServer(t)
	client := ts.Client()

	// An empty log is a valid response, not an error.
	resp, err := client.Get(ts.URL + "/api/history")
	if err != nil {
		t.Fatalf("GET /api/history: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/history status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
