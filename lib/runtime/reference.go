package runtime

import (
	"fmt"

	"github.com/distribution/reference"
)

// NormalizeRef validates a user-supplied pull reference and normalizes it.
// Examples:
//   - "alpine" -> "docker.io/library/alpine:latest"
//   - "alpine:3.18" -> "docker.io/library/alpine:3.18"
//   - "alpine@sha256:abc..." -> "docker.io/library/alpine@sha256:abc..."
func NormalizeRef(s string) (string, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	// Digest references are already fully pinned.
	if _, ok := named.(reference.Canonical); ok {
		return named.String(), nil
	}

	// Tagged reference - add :latest if missing.
	return reference.TagNameOnly(named).String(), nil
}

// FamiliarRef renders a reference in its short Docker form, the form the
// runtime uses as a repo tag ("docker.io/library/redis:latest" ->
// "redis:latest"). Unparseable input is returned as is.
func FamiliarRef(s string) string {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return s
	}
	if _, ok := named.(reference.Canonical); ok {
		return reference.FamiliarString(named)
	}
	return reference.FamiliarString(reference.TagNameOnly(named))
}
