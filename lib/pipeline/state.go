package pipeline

import "time"

// Task lifecycle statuses. Transitions are strictly
// preparing -> uploading -> loading -> activating -> done|failed,
// with any state able to jump to failed on the first unrecoverable error.
// Pull items skip uploading.
const (
	StatusPreparing  = "preparing"
	StatusUploading  = "uploading"
	StatusLoading    = "loading"
	StatusActivating = "activating"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Task is the live state of one submitted item: an uploaded archive or a
// pull reference.
type Task struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Error     *string   `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the task has finished, successfully or not.
func (t Task) Terminal() bool {
	return t.Status == StatusDone || t.Status == StatusFailed
}
