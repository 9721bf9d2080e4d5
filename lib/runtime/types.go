package runtime

// ImageSummary is one entry of the runtime's authoritative image list.
type ImageSummary struct {
	ID       string   `json:"id"`
	RepoTags []string `json:"repoTags"`
	Size     int64    `json:"size"`
}

// LoadResult reports the tags and ids registered from a staged archive.
type LoadResult struct {
	LoadedImages   []string `json:"loadedImages"`
	LoadedImageIDs []string `json:"loadedImageIds"`
}

// RunRequest asks the runtime to create and start a container.
// Ports maps container port specifiers ("6379/tcp") to host ports.
type RunRequest struct {
	Image string         `json:"image"`
	Name  string         `json:"name"`
	Ports map[string]int `json:"ports"`
}

// RunResult is the runtime's acknowledgement of a started container.
type RunResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// DeleteRequest removes an image from the runtime.
type DeleteRequest struct {
	ImageName string `json:"imageName"`
	ImageID   string `json:"imageId"`
	Force     bool   `json:"force"`
}
