package pipeline

import (
	"strings"

	"github.com/armoureye/intake/lib/runtime"
)

// Image record statuses. The runtime is the single source of truth; local
// records are a cache corrected only by reconciliation.
const (
	ImageStatusUploading = "uploading"
	ImageStatusPulling   = "pulling"
	ImageStatusComplete  = "complete"
	ImageStatusRunning   = "running"
	ImageStatusError     = "error"
)

// ImageRecord is the local view of one image on the runtime.
type ImageRecord struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	SizeBytes           int64  `json:"sizeBytes"`
	Status              string `json:"status"`
	HasRunningContainer bool   `json:"hasRunningContainer"`
}

// displayName returns the image's first repository tag, or its truncated id
// for untagged images.
func displayName(img runtime.ImageSummary) string {
	for _, tag := range img.RepoTags {
		if tag != "" && tag != "<none>:<none>" {
			return tag
		}
	}

	id := strings.TrimPrefix(img.ID, "sha256:")
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
