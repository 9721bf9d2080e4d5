// Package runtime is the HTTP client for the container-runtime control
// service. It covers image list/inspect/load/pull/delete, container run,
// and the used-port query, all bearer-token authenticated.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAuthTimeout = 10 * time.Second

// Client talks to the runtime control service.
type Client struct {
	baseURL     string
	token       string
	httpc       *http.Client
	authTimeout time.Duration
}

// NewClient creates a client for the given base URL. The token is attached
// as a bearer credential on every request; it may be empty, in which case
// callers are expected to refuse operations up front. A zero authTimeout
// falls back to 10s.
func NewClient(baseURL, token string, authTimeout time.Duration) *Client {
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpc:       &http.Client{},
		authTimeout: authTimeout,
	}
}

// Authenticated reports whether a bearer token is configured.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// ListImages fetches the authoritative image list.
func (c *Client) ListImages(ctx context.Context) ([]ImageSummary, error) {
	var images []ImageSummary
	if err := c.do(ctx, http.MethodGet, "/api/images", nil, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// InspectImagePorts returns the image's declared exposed ports
// ("80/tcp", ...) in declaration order.
func (c *Client) InspectImagePorts(ctx context.Context, name string) ([]string, error) {
	var out struct {
		ExposedPorts []string `json:"exposedPorts"`
	}
	path := "/api/images/" + url.PathEscape(name) + "/inspect"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.ExposedPorts, nil
}

// ImageRunning reports whether a running container currently backs the image.
func (c *Client) ImageRunning(ctx context.Context, name string) (bool, error) {
	var out struct {
		Running bool `json:"running"`
	}
	path := "/api/images/" + url.PathEscape(name) + "/containers"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Running, nil
}

// UploadImage streams an image archive to the staging area as a multipart
// form (field "image") and returns the server-side staged filename. The
// report callback receives cumulative source bytes sent against size.
func (c *Client) UploadImage(ctx context.Context, name string, src io.Reader, size int64, report func(sent, total int64)) (string, error) {
	body := &progressReader{r: src, total: size, report: report}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("image", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-image", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeAPIError(resp)
	}

	var out struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.Filename, nil
}

// LoadImage registers a previously staged archive as one or more images.
func (c *Client) LoadImage(ctx context.Context, stagedFilename string) (*LoadResult, error) {
	req := map[string]string{"filename": stagedFilename}
	var out LoadResult
	if err := c.do(ctx, http.MethodPost, "/api/images/load", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PullImage registers a remotely hosted image by reference.
func (c *Client) PullImage(ctx context.Context, image string) error {
	req := map[string]string{"image": image}
	return c.do(ctx, http.MethodPost, "/api/images/pull", req, nil)
}

// DeleteImage removes an image from the runtime.
func (c *Client) DeleteImage(ctx context.Context, req DeleteRequest) error {
	return c.do(ctx, http.MethodPost, "/api/images/delete", req, nil)
}

// UsedPorts returns the host ports currently bound to running containers.
func (c *Client) UsedPorts(ctx context.Context) ([]int, error) {
	var out struct {
		UsedPorts []int `json:"usedPorts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/containers/used-ports", nil, &out); err != nil {
		return nil, err
	}
	return out.UsedPorts, nil
}

// RunContainer asks the runtime to create and start a container.
func (c *Client) RunContainer(ctx context.Context, req RunRequest) (*RunResult, error) {
	var out RunResult
	if err := c.do(ctx, http.MethodPost, "/api/containers/run", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeAPIError extracts a structured error body when possible and falls
// back to the raw status text otherwise.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return apiErr
	}

	switch {
	case body.Error != "":
		apiErr.Message = body.Error
	case body.Message != "":
		apiErr.Message = body.Message
	}
	apiErr.Detail = body.Detail
	return apiErr
}
