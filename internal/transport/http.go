package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// HTTP is the networked PeerTransport, speaking the /sync endpoints.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
	origin     *int
	logger     *zap.Logger
}

// NewHTTP builds a transport against baseURL. Origin is the local node
// number, sent with pushed batches so the peer can tag what it applies; nil
// when the node is not yet registered.
func NewHTTP(httpClient *http.Client, baseURL string, origin *int, logger *zap.Logger) *HTTP {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		origin:     origin,
		logger:     logger,
	}
}

func (t *HTTP) GetChangesSince(ctx context.Context, sinceID int64, limit int, excludeOrigin *int) ([]ChangeEntry, error) {
	query := url.Values{}
	query.Set("since_id", strconv.FormatInt(sinceID, 10))
	query.Set("limit", strconv.Itoa(limit))
	if excludeOrigin != nil {
		query.Set("exclude_node_id", strconv.Itoa(*excludeOrigin))
	}

	body, err := t.doRequest(ctx, http.MethodGet, "/sync/changes?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Changes []ChangeEntry `json:"changes"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("transport: parse changes response: %w", err)
	}
	return out.Changes, nil
}

func (t *HTTP) ApplyChanges(ctx context.Context, entries []ChangeEntry) error {
	payload := map[string]any{"changes": entries}
	if t.origin != nil {
		payload["origin"] = *t.origin
	}
	_, err := t.doRequest(ctx, http.MethodPost, "/sync/apply", payload)
	return err
}

// Ack is best-effort: failures are logged and swallowed.
func (t *HTTP) Ack(ctx context.Context, lastSeenID int64) {
	_, err := t.doRequest(ctx, http.MethodPost, "/sync/ack", map[string]any{"last_seen": lastSeenID})
	if err != nil && t.logger != nil {
		t.logger.Warn("sync ack failed", zap.Int64("last_seen", lastSeenID), zap.Error(err))
	}
}

func (t *HTTP) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("transport: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transport: %s %s: unexpected status %d: %s", method, path, resp.StatusCode, string(body))
	}
	return body, nil
}
