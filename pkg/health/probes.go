package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

func finished(start time.Time, healthy bool, format string, args ...interface{}) Result {
	return Result{
		Healthy:   healthy,
		Message:   fmt.Sprintf(format, args...),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// HTTPChecker probes an HTTP endpoint of the restarted service
type HTTPChecker struct {
	URL string
	// Accepted status range, inclusive; 200-399 by default
	StatusMin int
	StatusMax int
	Client    *http.Client
}

// NewHTTPChecker creates a checker for url
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:       url,
		StatusMin: http.StatusOK,
		StatusMax: 399,
		Client:    &http.Client{Timeout: defaultProbeTimeout},
	}
}

// Check fetches the URL once. A 503 from a service still behind its
// maintenance page counts as unhealthy.
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return finished(start, false, "invalid probe request: %v", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := h.Client.Do(req)
	if err != nil {
		return finished(start, false, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < h.StatusMin || resp.StatusCode > h.StatusMax {
		return finished(start, false, "HTTP %d, want %d-%d", resp.StatusCode, h.StatusMin, h.StatusMax)
	}
	return finished(start, true, "HTTP %d", resp.StatusCode)
}

// Type returns CheckTypeHTTP
func (h *HTTPChecker) Type() CheckType { return CheckTypeHTTP }

// TCPChecker reports healthy once the service accepts connections
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a checker for host:port
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: defaultProbeTimeout}
}

// Check dials the address once
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	conn, err := (&net.Dialer{Timeout: t.Timeout}).DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return finished(start, false, "dial %s: %v", t.Address, err)
	}
	conn.Close()
	return finished(start, true, "accepting connections on %s", t.Address)
}

// Type returns CheckTypeTCP
func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }
