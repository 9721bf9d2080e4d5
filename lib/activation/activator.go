// Package activation turns a registered image into a running container:
// port resolution, instance naming, the run request, and de-duplication of
// concurrent attempts on the same image.
package activation

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/armoureye/intake/lib/logger"
	"github.com/armoureye/intake/lib/runtime"
)

var tracer = otel.Tracer("github.com/armoureye/intake/lib/activation")

// ContainerRunner is the runtime operation that creates and starts a container.
type ContainerRunner interface {
	RunContainer(ctx context.Context, req runtime.RunRequest) (*runtime.RunResult, error)
}

// PortResolver derives the port mapping for an image.
type PortResolver interface {
	Resolve(ctx context.Context, imageRef string) map[string]int
}

// RunningChecker reports whether the image is known, from the last
// reconciliation, to already back a running container.
type RunningChecker interface {
	IsRunning(imageRef string) bool
}

// Notifier surfaces activation notices to the user. Warn is the prominent
// notice used in non-silent mode; the Flash variants are timed banners that
// self-expire, used by silent auto-run flows.
type Notifier interface {
	Warn(key, text string)
	FlashSuccess(key, text string)
	FlashError(key, text string)
}

// Options controls a single activation attempt.
type Options struct {
	// Silent suppresses blocking notices: the "already running" case becomes
	// a plain no-op and failures surface as timed banners.
	Silent bool
}

// Activator starts containers for images, one attempt per image at a time.
type Activator struct {
	runner  ContainerRunner
	ports   PortResolver
	running RunningChecker
	notify  Notifier
	guard   *Guard
	now     func() time.Time
}

// New creates an activator.
func New(runner ContainerRunner, ports PortResolver, running RunningChecker, notify Notifier) *Activator {
	return &Activator{
		runner:  runner,
		ports:   ports,
		running: running,
		notify:  notify,
		guard:   NewGuard(),
		now:     time.Now,
	}
}

// Activate starts a container for imageRef. Returns true only when the
// runtime accepted the run request. A second call while one is in flight,
// or for an image already running, is a no-op returning false, not an error.
func (a *Activator) Activate(ctx context.Context, imageRef string, opts Options) (bool, error) {
	log := logger.FromContext(ctx)

	if !a.guard.TryAcquire(imageRef) {
		log.InfoContext(ctx, "activation already in flight", "image", imageRef)
		return false, nil
	}
	defer a.guard.Release(imageRef)

	if a.running.IsRunning(imageRef) {
		if !opts.Silent {
			a.notify.Warn(imageRef, fmt.Sprintf("A container for %s is already running.", imageRef))
		}
		return false, nil
	}

	ctx, span := tracer.Start(ctx, "activation.Activate", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("image", imageRef), attribute.Bool("silent", opts.Silent))
	defer span.End()

	portMap := a.ports.Resolve(ctx, imageRef)
	name := containerName(imageRef, a.now())

	result, err := a.runner.RunContainer(ctx, runtime.RunRequest{
		Image: imageRef,
		Name:  name,
		Ports: portMap,
	})
	if err != nil {
		span.RecordError(err)
		text := fmt.Sprintf("Failed to start %s: %s", imageRef, err)
		if opts.Silent {
			a.notify.FlashError(imageRef, text)
		} else {
			a.notify.Warn(imageRef, text)
		}
		return false, fmt.Errorf("run container %s: %w", imageRef, err)
	}

	log.InfoContext(ctx, "container started",
		"image", imageRef,
		"container", result.Name,
		"status", result.Status,
		"ports", formatPorts(portMap))
	a.notify.FlashSuccess(imageRef,
		fmt.Sprintf("Started %s (%s), ports %s", result.Name, result.Status, formatPorts(portMap)))
	return true, nil
}

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// containerName synthesizes a unique instance name from the image reference
// and a timestamp. Example: docker.io/library/redis:latest -> redis-latest-1719246000
func containerName(imageRef string, now time.Time) string {
	parts := strings.Split(imageRef, "/")
	nameTag := parts[len(parts)-1]

	sanitized := nameSanitizer.ReplaceAllString(nameTag, "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "container"
	}
	return fmt.Sprintf("%s-%d", sanitized, now.Unix())
}

// formatPorts renders a port map as "80/tcp->8080", sorted for stable output.
func formatPorts(portMap map[string]int) string {
	pairs := make([]string, 0, len(portMap))
	for spec, host := range portMap {
		pairs = append(pairs, fmt.Sprintf("%s->%d", spec, host))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}
