// Package pbx provides a small client for the Asterisk manager HTTP
// interface (AJAM), used to probe server connectivity from the admin API.
package pbx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/icholy/digest"
)

// Client probes a FreePBX/Asterisk server over AJAM.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a probe client authenticating with HTTP digest.
// Username and password may be empty when the manager interface allows
// anonymous pings.
func NewClient(username, password string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &digest.Transport{
				Username: username,
				Password: password,
			},
		},
	}
}

// Ping issues a manager ping against the server and returns an error when
// the server is unreachable or rejects the request.
func (c *Client) Ping(ctx context.Context, host string, port int, useTLS bool) error {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s:%d/asterisk/rawman?action=ping", scheme, host, port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinging %s:%d: %w", host, port, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pinging %s:%d: unexpected status %d", host, port, resp.StatusCode)
	}
	return nil
}
