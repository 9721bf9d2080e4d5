package api

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/armoureye/intake/lib/pipeline"
)

// maxUploadMemory bounds the in-memory portion of a multipart parse; larger
// files spill to temp files.
const maxUploadMemory = 32 << 20

// Status reports whether the configured runtime credential verifies.
func (s *ApiService) Status(w http.ResponseWriter, r *http.Request) {
	err := s.Runtime.VerifyToken(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"runtimeAuthenticated": err == nil,
	})
}

// ListImages reconciles against the runtime and returns the local image view.
func (s *ApiService) ListImages(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Pipeline.Reconcile(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": s.Pipeline.Images()})
}

// UploadImages accepts one or more archives under the multipart field
// "image" and enters each into the pipeline.
func (s *ApiService) UploadImages(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed multipart form"})
		return
	}
	headers := r.MultipartForm.File["image"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no image files provided"})
		return
	}

	// The form's temp files are reclaimed when this handler returns, while
	// the pipeline reads in the background, so spool each archive to a
	// pipeline-owned temp file. Archives run to gigabytes, never hold one
	// in memory.
	files := make([]pipeline.FileUpload, 0, len(headers))
	for _, fh := range headers {
		spooled, size, err := spoolUpload(fh)
		if err != nil {
			closeUploads(files)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable file: " + fh.Filename})
			return
		}
		files = append(files, pipeline.FileUpload{
			Name: fh.Filename,
			Data: spooled,
			Size: size,
		})
	}

	ids, err := s.Pipeline.SubmitFiles(context.WithoutCancel(r.Context()), files)
	if err != nil {
		// Submitted items close their own sources when they finish.
		closeUploads(files[len(ids):])
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"tasks": ids})
}

// spoolUpload copies one multipart part to a temp file the pipeline can
// stream from after the request body is gone. The file removes itself on
// Close.
func spoolUpload(fh *multipart.FileHeader) (io.ReadCloser, int64, error) {
	part, err := fh.Open()
	if err != nil {
		return nil, 0, err
	}
	defer part.Close()

	tmp, err := os.CreateTemp("", "intake-upload-*")
	if err != nil {
		return nil, 0, err
	}
	size, err := io.Copy(tmp, part)
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, err
	}
	return &spooledFile{File: tmp}, size, nil
}

type spooledFile struct {
	*os.File
}

func (f *spooledFile) Close() error {
	err := f.File.Close()
	os.Remove(f.Name())
	return err
}

func closeUploads(files []pipeline.FileUpload) {
	for _, f := range files {
		if c, ok := f.Data.(io.Closer); ok {
			c.Close()
		}
	}
}

// PullImage enters a registry reference into the pipeline.
func (s *ApiService) PullImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image reference required"})
		return
	}

	id, err := s.Pipeline.Pull(context.WithoutCancel(r.Context()), req.Image)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task": id})
}

// RunImage starts a container for an image from the list.
func (s *ApiService) RunImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image reference required"})
		return
	}

	started, err := s.Pipeline.Run(r.Context(), req.Image)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

// DeleteImage removes an image from the runtime.
func (s *ApiService) DeleteImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageName string `json:"imageName"`
		ImageID   string `json:"imageId"`
		Force     bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image name required"})
		return
	}

	if err := s.Pipeline.Remove(r.Context(), req.ImageName, req.ImageID, req.Force); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
