package cosmopolite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cosmopolite/cosmopolite-go/internal/httpkit"
)

// maxResponseBytes bounds how much of a response body the transport will
// read, guarding against a misbehaving server streaming an unbounded body
// at a long-lived polling connection.
const maxResponseBytes = 8 << 20 // 8 MiB

// Transporter is the pluggable synchronous HTTP layer the worker submits
// each cycle's envelope through. Tests substitute a fake that scripts
// server responses without opening a socket.
type Transporter interface {
	// Post submits body to url and returns the status code, the response
	// body, whether the response carried a "Retry-After: 0" header, and
	// any transport-level error (network, TLS, non-2xx is NOT an error
	// here — callers inspect status themselves).
	Post(ctx context.Context, url string, body []byte) (status int, respBody []byte, retryAfterZero bool, err error)
}

// httpTransporter is the production Transporter, backed by
// internal/httpkit's TLS ≥ 1.2 / HTTP-2 client.
type httpTransporter struct {
	client *http.Client
}

// newHTTPTransporter builds a Transporter whose request timeout equals the
// cycle length, per spec.md §4.2.
func newHTTPTransporter(cycleTimeout time.Duration) *httpTransporter {
	return &httpTransporter{
		client: httpkit.NewClient(
			httpkit.WithTimeout(cycleTimeout),
			httpkit.WithRestrictedTLS(),
		),
	}
}

func (t *httpTransporter) Post(ctx context.Context, url string, body []byte) (int, []byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, false, fmt.Errorf("cosmopolite: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, false, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	httpkit.DrainAndClose(resp.Body, 1024)
	if err != nil {
		return resp.StatusCode, nil, false, fmt.Errorf("cosmopolite: read response body: %w", err)
	}

	retryAfterZero := resp.Header.Get("Retry-After") == "0"
	return resp.StatusCode, data, retryAfterZero, nil
}
