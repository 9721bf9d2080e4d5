// Package ports computes collision-free host ports for container activation.
package ports

import (
	"context"
	"math/rand/v2"

	"github.com/armoureye/intake/lib/logger"
)

// probeWindow is how many consecutive host ports are tried before giving up
// and picking a random high port.
const probeWindow = 100

// ImageInspector introspects an image's declared exposed ports.
type ImageInspector interface {
	InspectImagePorts(ctx context.Context, name string) ([]string, error)
}

// UsedPortLister reports host ports currently bound to running containers.
type UsedPortLister interface {
	UsedPorts(ctx context.Context) ([]int, error)
}

// Resolver maps an image reference to a container-port -> host-port binding.
// It never fails: unreachable endpoints degrade to best-effort guesses.
type Resolver struct {
	inspector ImageInspector
	lister    UsedPortLister
	randPort  func() int
}

// NewResolver creates a resolver backed by the runtime control service.
func NewResolver(inspector ImageInspector, lister UsedPortLister) *Resolver {
	return &Resolver{
		inspector: inspector,
		lister:    lister,
		randPort: func() int {
			return 30000 + rand.IntN(10000)
		},
	}
}

// Resolve picks the container port for imageRef and maps it to a free host
// port, avoiding every port in the runtime's used-port set.
func (r *Resolver) Resolve(ctx context.Context, imageRef string) map[string]int {
	used := r.usedPortSet(ctx)
	spec, preferred := r.choosePort(ctx, imageRef)
	host := r.probe(preferred, used)

	logger.FromContext(ctx).InfoContext(ctx, "resolved ports",
		"image", imageRef,
		"container_port", spec,
		"host_port", host)

	return map[string]int{spec: host}
}

// usedPortSet fetches the authoritative used-port set. Fails open to an
// empty set so a dead endpoint never blocks allocation.
func (r *Resolver) usedPortSet(ctx context.Context) map[int]struct{} {
	set := make(map[int]struct{})
	ports, err := r.lister.UsedPorts(ctx)
	if err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "used-ports query failed, assuming none", "error", err)
		return set
	}
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return set
}

// choosePort runs the resolution strategies in order and takes the first hit.
// The default strategy is total, so this always yields a binding.
func (r *Resolver) choosePort(ctx context.Context, imageRef string) (string, int) {
	for _, s := range r.strategies() {
		if spec, host, ok := s(ctx, imageRef); ok {
			return spec, host
		}
	}
	return defaultPortSpec, defaultHostPort
}

// probe linearly scans from the preferred port for the first free candidate.
// When the whole window is occupied it falls back to a random high port.
func (r *Resolver) probe(preferred int, used map[int]struct{}) int {
	for i := 0; i < probeWindow; i++ {
		candidate := preferred + i
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
	return r.randPort()
}
