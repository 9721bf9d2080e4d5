package runtime

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", 0)
	_, err := c.ListImages(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer secret-token", gotAuth)
}

func TestStructuredErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"image in use","detail":"stop the container first"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 0)
	err := c.DeleteImage(context.Background(), DeleteRequest{ImageName: "app:latest"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.Equal(t, "image in use", apiErr.Message)
	require.Equal(t, "stop the container first", apiErr.Detail)
	require.Equal(t, "image in use: stop the container first", apiErr.Error())
}

func TestUnparseableErrorBodyFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 0)
	err := c.PullImage(context.Background(), "redis:latest")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Contains(t, apiErr.Message, "502")
}

func TestMalformedSuccessBodyIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 0)
	_, err := c.UsedPorts(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestUploadImageStagesAndReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "app.tar", header.Filename)
		w.Write([]byte(`{"filename":"upload-1234-app.tar"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 0)
	payload := make([]byte, 4096)
	var lastSent, total int64
	staged, err := c.UploadImage(context.Background(), "app.tar", bytes.NewReader(payload), int64(len(payload)),
		func(sent, tot int64) {
			require.GreaterOrEqual(t, sent, lastSent)
			lastSent, total = sent, tot
		})
	require.NoError(t, err)
	require.Equal(t, "upload-1234-app.tar", staged)
	require.Equal(t, int64(len(payload)), lastSent)
	require.Equal(t, int64(len(payload)), total)
}

func TestVerifyTokenTimeoutCancelsRequest(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done() // request is cancelled on deadline, not left hanging
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 50*time.Millisecond)
	err := c.VerifyToken(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	<-started
}

func TestVerifyTokenWithoutToken(t *testing.T) {
	c := NewClient("http://unreachable.invalid", "", 0)
	require.ErrorIs(t, c.VerifyToken(context.Background()), ErrNoToken)
}

func TestImageQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/images/redis:latest/inspect":
			w.Write([]byte(`{"exposedPorts":["6379/tcp"]}`))
		case "/api/images/redis:latest/containers":
			w.Write([]byte(`{"running":true}`))
		case "/api/containers/used-ports":
			w.Write([]byte(`{"usedPorts":[6380,8080]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", 0)
	ctx := context.Background()

	exposed, err := c.InspectImagePorts(ctx, "redis:latest")
	require.NoError(t, err)
	require.Equal(t, []string{"6379/tcp"}, exposed)

	running, err := c.ImageRunning(ctx, "redis:latest")
	require.NoError(t, err)
	require.True(t, running)

	ports, err := c.UsedPorts(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{6380, 8080}, ports)
}

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare name", "alpine", "docker.io/library/alpine:latest", false},
		{"name and tag", "alpine:3.18", "docker.io/library/alpine:3.18", false},
		{"qualified", "gcr.io/proj/app:v1", "gcr.io/proj/app:v1", false},
		{"digest", "alpine@sha256:" + validDigestHex, "docker.io/library/alpine@sha256:" + validDigestHex, false},
		{"invalid", "UPPER CASE", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRef(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidReference)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFamiliarRef(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"docker.io/library/redis:latest", "redis:latest"},
		{"docker.io/library/alpine:3.18", "alpine:3.18"},
		{"gcr.io/proj/app:v1", "gcr.io/proj/app:v1"},
		{"redis", "redis:latest"},
		{"not a ref", "not a ref"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.want, FamiliarRef(tt.input))
		})
	}
}

const validDigestHex = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
