package runtime

import (
	"context"
	"fmt"
	"net/http"
)

// VerifyToken checks the configured bearer token against the auth
// verification endpoint. This is the only timed operation in the pipeline:
// the request runs under a fixed timeout and is cancelled on expiry.
func (c *Client) VerifyToken(ctx context.Context) error {
	if c.token == "" {
		return ErrNoToken
	}

	ctx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/verify-token", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	return nil
}
