package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/refit/pkg/api"
	"github.com/cuemby/refit/pkg/types"
	"github.com/cuemby/refit/pkg/updater"
)

// ErrBusy is returned when the server reports a run in progress
var ErrBusy = errors.New("server is busy with another update")

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Message    string
	Kind       types.ErrorKind
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// Client talks to a running refit serve
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient creates a client for addr, either host:port or a full URL
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("server address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid server address %q", addr)
	}

	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Check asks the server to check for a newer release
func (c *Client) Check(ctx context.Context) (*types.ReleaseInfo, error) {
	var info types.ReleaseInfo
	if err := c.do(ctx, http.MethodGet, "/api/update/check", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Start launches an update on the server
func (c *Client) Start(ctx context.Context, version string) (*updater.StartResult, error) {
	var result updater.StartResult
	err := c.do(ctx, http.MethodPost, "/api/update/start", nil, api.StartRequest{Version: version}, &result)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return &updater.StartResult{Status: updater.StartBusy}, ErrBusy
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Status returns the server's update session
func (c *Client) Status(ctx context.Context) (*types.SessionStatus, error) {
	var status types.SessionStatus
	if err := c.do(ctx, http.MethodGet, "/api/update/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WaitForRun polls the session until the run identified by runID reaches a
// terminal phase. onChange is called whenever the phase changes.
func (c *Client) WaitForRun(ctx context.Context, runID string, interval time.Duration, onChange func(types.SessionStatus)) (*types.SessionStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last types.Phase
	for {
		status, err := c.Status(ctx)
		if err != nil {
			return nil, err
		}
		if status.RunID == runID {
			if status.Phase != last && onChange != nil {
				onChange(*status)
			}
			last = status.Phase
			if status.Phase.IsTerminal() {
				return status, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Backups lists the retained snapshots
func (c *Client) Backups(ctx context.Context) ([]*types.BackupManifest, error) {
	var backups []*types.BackupManifest
	if err := c.do(ctx, http.MethodGet, "/api/update/backups", nil, nil, &backups); err != nil {
		return nil, err
	}
	return backups, nil
}

// History lists past runs, newest first
func (c *Client) History(ctx context.Context, limit int) ([]*types.RunRecord, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var runs []*types.RunRecord
	if err := c.do(ctx, http.MethodGet, "/api/update/history", q, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Rollback restores the named snapshot, or the newest one when name is empty
func (c *Client) Rollback(ctx context.Context, name string) (*types.SessionStatus, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	var status types.SessionStatus
	err := c.do(ctx, http.MethodPost, "/api/update/rollback", q, nil, &status)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Maintenance returns the gate record
func (c *Client) Maintenance(ctx context.Context) (*types.MaintenanceConfig, error) {
	var cfg types.MaintenanceConfig
	if err := c.do(ctx, http.MethodGet, "/api/maintenance", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnableMaintenance turns the gate on
func (c *Client) EnableMaintenance(ctx context.Context, req api.MaintenanceRequest) (*api.MaintenanceResponse, error) {
	var resp api.MaintenanceResponse
	if err := c.do(ctx, http.MethodPost, "/api/maintenance", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DisableMaintenance turns the gate off
func (c *Client) DisableMaintenance(ctx context.Context) (*api.MaintenanceResponse, error) {
	var resp api.MaintenanceResponse
	if err := c.do(ctx, http.MethodDelete, "/api/maintenance", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Kind = body.Kind
		return apiErr
	}

	// Rollback failures answer with the session snapshot
	var status types.SessionStatus
	if err := json.Unmarshal(data, &status); err == nil && status.LastError != nil {
		apiErr.Message = status.LastError.Message
		apiErr.Kind = status.LastError.Kind
	}
	return apiErr
}
