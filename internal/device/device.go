// Package device manages a client node's durable identity: a config file
// holding a stable device key and, once registered, the leased node number.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Config struct {
	DeviceKey string `json:"device_key"`
	NodeID    *int   `json:"node_id,omitempty"`
}

// DefaultConfigPath is ~/.shuttle-bridge/config.json.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".shuttle-bridge", "config.json")
}

// Manager loads the config file at path, generating a fresh device key on
// first use. The leased node number is requested at most once; subsequent
// processes reuse the persisted lease.
type Manager struct {
	path       string
	httpClient *http.Client
	cfg        Config
}

func NewManager(path string, httpClient *http.Client) (*Manager, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	m := &Manager{path: path, httpClient: httpClient}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.cfg = Config{DeviceKey: uuid.NewString()}
		return m.save()
	}
	if err != nil {
		return fmt.Errorf("device: read config: %w", err)
	}
	if err := json.Unmarshal(raw, &m.cfg); err != nil {
		return fmt.Errorf("device: parse config: %w", err)
	}
	if m.cfg.DeviceKey == "" {
		m.cfg.DeviceKey = uuid.NewString()
		return m.save()
	}
	return nil
}

func (m *Manager) save() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("device: create config dir: %w", err)
	}
	raw, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, raw, 0o600); err != nil {
		return fmt.Errorf("device: write config: %w", err)
	}
	return nil
}

func (m *Manager) DeviceKey() string { return m.cfg.DeviceKey }

func (m *Manager) NodeID() *int { return m.cfg.NodeID }

// EnsureNodeID returns the leased node number, registering against the
// server's /node/register endpoint on first call and persisting the result.
func (m *Manager) EnsureNodeID(ctx context.Context, serverBaseURL string) (int, error) {
	if m.cfg.NodeID != nil {
		return *m.cfg.NodeID, nil
	}

	reqBody, err := json.Marshal(map[string]string{"device_key": m.cfg.DeviceKey})
	if err != nil {
		return 0, err
	}
	url := strings.TrimRight(serverBaseURL, "/") + "/node/register"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("device: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("device: register request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("device: read register response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("device: register failed (%d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		NodeID int `json:"node_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("device: parse register response: %w", err)
	}

	m.cfg.NodeID = &out.NodeID
	if err := m.save(); err != nil {
		return 0, err
	}
	return out.NodeID, nil
}
