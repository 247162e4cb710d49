package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestManagerGeneratesAndPersistsDeviceKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first, err := NewManager(path, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if first.DeviceKey() == "" {
		t.Fatalf("device key empty")
	}
	if first.NodeID() != nil {
		t.Fatalf("node id set before registration")
	}

	second, err := NewManager(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if second.DeviceKey() != first.DeviceKey() {
		t.Fatalf("device key changed across loads: %q vs %q", second.DeviceKey(), first.DeviceKey())
	}
}

func TestEnsureNodeIDRegistersOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/node/register" {
			t.Fatalf("path=%q", r.URL.Path)
		}
		var body struct {
			DeviceKey string `json:"device_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DeviceKey == "" {
			t.Fatalf("bad register body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"node_id": 5})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "config.json")
	m, err := NewManager(path, srv.Client())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	node, err := m.EnsureNodeID(ctx, srv.URL)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if node != 5 {
		t.Fatalf("node=%d want 5", node)
	}
	if node, err = m.EnsureNodeID(ctx, srv.URL); err != nil || node != 5 {
		t.Fatalf("second call node=%d err=%v", node, err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}

	// The lease survives process restarts via the config file.
	reloaded, err := NewManager(path, srv.Client())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.NodeID() == nil || *reloaded.NodeID() != 5 {
		t.Fatalf("persisted node=%v want 5", reloaded.NodeID())
	}
	if calls != 1 {
		t.Fatalf("reload hit the server")
	}
}

func TestEnsureNodeIDSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid device_key"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	m, err := NewManager(filepath.Join(t.TempDir(), "config.json"), srv.Client())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := m.EnsureNodeID(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error")
	}
	if m.NodeID() != nil {
		t.Fatalf("node id persisted after failure")
	}
}
