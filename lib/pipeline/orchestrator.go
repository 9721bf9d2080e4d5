// Package pipeline sequences image intake: upload -> load -> activate for
// archives, pull -> activate for registry references, with per-item state
// tracking and reconciliation against the runtime's authoritative view.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/nrednav/cuid2"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/armoureye/intake/lib/activation"
	"github.com/armoureye/intake/lib/logger"
	"github.com/armoureye/intake/lib/ports"
	"github.com/armoureye/intake/lib/runtime"
	"github.com/armoureye/intake/lib/uploads"
)

var tracer = otel.Tracer("github.com/armoureye/intake/lib/pipeline")

// reconcileFanout bounds the per-image running-container probes issued in
// parallel during one reconciliation.
const reconcileFanout = 4

// Config tunes the pipeline.
type Config struct {
	// MaxConcurrentUploads caps in-flight transfers; further submissions queue.
	MaxConcurrentUploads int
	// MessageTTL is the display window for terminal banners and finished tasks.
	MessageTTL time.Duration
}

// FileUpload is one file of a bulk submission.
type FileUpload struct {
	Name string
	Data io.Reader
	Size int64
}

// Pipeline drives items through the intake stages and owns all local state:
// task records, image records, trackers, and banners.
type Pipeline struct {
	client    *runtime.Client
	transport *uploads.Transport
	activator *activation.Activator
	queue     *uploads.Queue
	messages  *uploads.MessageStore

	taskTTL time.Duration
	now     func() time.Time

	tasks    map[string]*Task
	trackers map[string]*ProgressTracker
	records  map[string]*ImageRecord // image ID -> reconciled record
	pending  map[string]*ImageRecord // task ID -> provisional record
	mu       sync.Mutex

	wg sync.WaitGroup
}

// New assembles a pipeline over the given runtime client.
func New(client *runtime.Client, cfg Config) *Pipeline {
	if cfg.MaxConcurrentUploads < 1 {
		cfg.MaxConcurrentUploads = 3
	}
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = 6 * time.Second
	}

	p := &Pipeline{
		client:    client,
		transport: uploads.NewTransport(client),
		queue:     uploads.NewQueue(cfg.MaxConcurrentUploads),
		messages:  uploads.NewMessageStore(cfg.MessageTTL),
		taskTTL:   cfg.MessageTTL,
		now:       time.Now,
		tasks:     make(map[string]*Task),
		trackers:  make(map[string]*ProgressTracker),
		records:   make(map[string]*ImageRecord),
		pending:   make(map[string]*ImageRecord),
	}
	p.activator = activation.New(client, ports.NewResolver(client, client), p, p)
	return p
}

// SubmitFiles enters a bulk file submission into the pipeline. Each file
// becomes an independent item; transfers beyond the concurrency cap queue.
func (p *Pipeline) SubmitFiles(ctx context.Context, files []FileUpload) ([]string, error) {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		id, err := p.SubmitFile(ctx, f.Name, f.Data, f.Size)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SubmitFile enters one uploaded archive into the pipeline and returns its
// task id. Refused up front when no token is configured.
func (p *Pipeline) SubmitFile(ctx context.Context, filename string, src io.Reader, size int64) (string, error) {
	if !p.client.Authenticated() {
		p.messages.Put(filename, uploads.LevelError, "Log in before uploading images.")
		return "", runtime.ErrNoToken
	}

	id := cuid2.Generate()
	p.mu.Lock()
	p.tasks[id] = &Task{ID: id, Source: filename, Status: StatusPreparing, Message: "Preparing upload...", UpdatedAt: p.now()}
	p.trackers[id] = newProgressTracker()
	p.pending[id] = &ImageRecord{Name: filename, Status: ImageStatusUploading}
	p.mu.Unlock()

	p.wg.Add(1)
	pos := p.queue.Enqueue(id, func() {
		defer p.wg.Done()
		defer p.queue.MarkComplete(id)
		defer closeSource(src)
		p.processUpload(ctx, id, filename, src, size)
	})
	if pos > 0 {
		p.transition(id, func(t *Task) {
			if t.Status == StatusPreparing {
				t.Message = fmt.Sprintf("Queued (position %d)...", pos)
			}
		})
	}
	return id, nil
}

// Pull enters a registry reference into the pipeline and returns its task id.
func (p *Pipeline) Pull(ctx context.Context, ref string) (string, error) {
	if !p.client.Authenticated() {
		p.messages.Put(ref, uploads.LevelError, "Log in before pulling images.")
		return "", runtime.ErrNoToken
	}

	normalized, err := runtime.NormalizeRef(ref)
	if err != nil {
		return "", err
	}

	id := cuid2.Generate()
	p.mu.Lock()
	p.tasks[id] = &Task{ID: id, Source: normalized, Status: StatusPreparing, Message: "Preparing pull...", UpdatedAt: p.now()}
	p.trackers[id] = newProgressTracker()
	p.pending[id] = &ImageRecord{Name: normalized, Status: ImageStatusPulling}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.processPull(ctx, id, normalized)
	}()
	return id, nil
}

// Run starts a container for an image from the image list. In this
// non-silent path an already-running image yields one user-facing warning
// and no run call.
func (p *Pipeline) Run(ctx context.Context, imageRef string) (bool, error) {
	if !p.client.Authenticated() {
		p.messages.Put(imageRef, uploads.LevelError, "Log in before starting containers.")
		return false, runtime.ErrNoToken
	}

	started, err := p.activator.Activate(ctx, imageRef, activation.Options{})
	if started {
		p.markRunning(imageRef)
	}
	if _, rerr := p.Reconcile(ctx); rerr != nil {
		logger.FromContext(ctx).WarnContext(ctx, "reconcile after run failed", "error", rerr)
	}
	return started, err
}

// Remove deletes an image from the runtime and drops its local record.
func (p *Pipeline) Remove(ctx context.Context, imageName, imageID string, force bool) error {
	if !p.client.Authenticated() {
		p.messages.Put(imageName, uploads.LevelError, "Log in before deleting images.")
		return runtime.ErrNoToken
	}

	if err := p.client.DeleteImage(ctx, runtime.DeleteRequest{ImageName: imageName, ImageID: imageID, Force: force}); err != nil {
		p.mu.Lock()
		if rec, ok := p.records[imageID]; ok {
			rec.Status = ImageStatusError
		}
		p.mu.Unlock()
		p.messages.Put(imageName, uploads.LevelError, fmt.Sprintf("Failed to delete %s: %s", imageName, err))
		return fmt.Errorf("delete image %s: %w", imageName, err)
	}

	p.mu.Lock()
	delete(p.records, imageID)
	p.mu.Unlock()
	p.messages.Put(imageName, uploads.LevelSuccess, fmt.Sprintf("Deleted %s.", imageName))

	if _, err := p.Reconcile(ctx); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "reconcile after delete failed", "error", err)
	}
	return nil
}

func (p *Pipeline) processUpload(ctx context.Context, id, filename string, src io.Reader, size int64) {
	ctx, span := tracer.Start(ctx, "pipeline.upload")
	defer span.End()
	log := logger.FromContext(ctx)

	p.update(id, StatusUploading, 0, "Uploading to server...")
	staged, err := p.transport.Upload(ctx, filename, src, size, func(pct int) {
		p.progress(id, pct)
	})
	if err != nil {
		p.fail(ctx, id, filename, err)
		return
	}
	log.InfoContext(ctx, "archive staged", "file", filename, "staged", staged)

	p.update(id, StatusLoading, 85, "Loading into Docker...")
	result, err := p.client.LoadImage(ctx, staged)
	if err != nil {
		p.fail(ctx, id, filename, err)
		return
	}

	ref := firstRef(result)
	if ref == "" {
		// The runtime accepted the archive but reported no tag or id, so
		// there is nothing to auto-run.
		p.finish(ctx, id, filename, uploads.LevelInfo, "Image loaded. Start it from the image list.")
		return
	}

	p.update(id, StatusActivating, 90, fmt.Sprintf("Starting %s...", ref))
	if _, err := p.activator.Activate(ctx, ref, activation.Options{Silent: true}); err != nil {
		p.fail(ctx, id, filename, err)
		return
	}
	p.finish(ctx, id, filename, uploads.LevelSuccess, fmt.Sprintf("%s is ready.", ref))
}

func (p *Pipeline) processPull(ctx context.Context, id, ref string) {
	ctx, span := tracer.Start(ctx, "pipeline.pull")
	defer span.End()

	p.update(id, StatusLoading, 10, fmt.Sprintf("Pulling %s...", ref))
	if err := p.client.PullImage(ctx, ref); err != nil {
		p.fail(ctx, id, ref, err)
		return
	}

	p.update(id, StatusActivating, 90, fmt.Sprintf("Starting %s...", ref))
	if _, err := p.activator.Activate(ctx, ref, activation.Options{Silent: true}); err != nil {
		p.fail(ctx, id, ref, err)
		return
	}
	p.finish(ctx, id, ref, uploads.LevelSuccess, fmt.Sprintf("%s is ready.", ref))
}

// Reconcile re-fetches the authoritative image list and merges each image's
// running-container state into the local records. This is the only mechanism
// that corrects stale running flags.
func (p *Pipeline) Reconcile(ctx context.Context) ([]ImageRecord, error) {
	images, err := p.client.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	running := make([]bool, len(images))
	probed := make([]bool, len(images))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(reconcileFanout)
	for i, img := range images {
		grp.Go(func() error {
			ok, err := p.client.ImageRunning(gctx, displayName(img))
			if err != nil {
				// Fail open: keep the previous flag rather than block the merge.
				logger.FromContext(ctx).WarnContext(ctx, "running-container probe failed",
					"image", displayName(img), "error", err)
				return nil
			}
			running[i] = ok
			probed[i] = true
			return nil
		})
	}
	_ = grp.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	fresh := make(map[string]*ImageRecord, len(images))
	for i, img := range images {
		rec, ok := p.records[img.ID]
		if !ok {
			rec = &ImageRecord{ID: img.ID}
		}
		rec.Name = displayName(img)
		rec.SizeBytes = img.Size
		if probed[i] {
			rec.HasRunningContainer = running[i]
		}
		rec.Status = ImageStatusComplete
		fresh[img.ID] = rec
	}
	p.records = fresh

	return snapshotRecords(fresh), nil
}

// Images returns the current local view: reconciled records plus in-flight
// provisional entries.
func (p *Pipeline) Images() []ImageRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := snapshotRecords(p.records)
	out = append(out, snapshotRecords(p.pending)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tasks returns all live tasks. Terminal tasks past their display window
// are swept here, on read.
func (p *Pipeline) Tasks() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepTasksLocked()
	out := lo.Map(lo.Values(p.tasks), func(t *Task, _ int) Task { return *t })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Task returns one task by id.
func (p *Pipeline) Task(id string) (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepTasksLocked()
	task, ok := p.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Subscribe streams state snapshots for one task.
func (p *Pipeline) Subscribe(ctx context.Context, id string) (chan Task, bool) {
	p.mu.Lock()
	tracker, ok := p.trackers[id]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	return tracker.Subscribe(ctx), true
}

// Messages returns the live status banners.
func (p *Pipeline) Messages() []uploads.Message {
	return p.messages.All()
}

// Wait blocks until every submitted item has reached a terminal state.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// IsRunning reports whether the image is known, from the last
// reconciliation, to back a running container. Records are keyed by the
// runtime's short repo tag, so a normalized pull reference is matched in
// its familiar form as well.
func (p *Pipeline) IsRunning(imageRef string) bool {
	familiar := runtime.FamiliarRef(imageRef)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range p.records {
		if rec.Name == imageRef || rec.ID == imageRef || rec.Name == familiar {
			return rec.HasRunningContainer
		}
	}
	return false
}

// Warn surfaces a prominent activation notice.
func (p *Pipeline) Warn(key, text string) {
	p.messages.Put(key, uploads.LevelError, text)
}

// FlashSuccess surfaces a timed success banner.
func (p *Pipeline) FlashSuccess(key, text string) {
	p.messages.Put(key, uploads.LevelSuccess, text)
}

// FlashError surfaces a timed error banner.
func (p *Pipeline) FlashError(key, text string) {
	p.messages.Put(key, uploads.LevelError, text)
}

// transition is the single mutation point for task state.
func (p *Pipeline) transition(id string, fn func(*Task)) {
	p.mu.Lock()
	task, ok := p.tasks[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	fn(task)
	task.UpdatedAt = p.now()
	snapshot := *task
	tracker := p.trackers[id]
	p.mu.Unlock()

	if tracker != nil {
		tracker.Publish(snapshot)
		if snapshot.Terminal() {
			tracker.Close()
		}
	}
}

func (p *Pipeline) update(id, status string, progress int, message string) {
	p.transition(id, func(t *Task) {
		t.Status = status
		if progress > t.Progress {
			t.Progress = progress
		}
		t.Message = message
	})
}

// progress bumps the percentage only; it never regresses.
func (p *Pipeline) progress(id string, pct int) {
	p.transition(id, func(t *Task) {
		if pct > t.Progress {
			t.Progress = pct
		}
	})
}

func (p *Pipeline) finish(ctx context.Context, id, key string, level uploads.Level, message string) {
	p.transition(id, func(t *Task) {
		t.Status = StatusDone
		t.Progress = 100
		t.Message = message
	})
	p.messages.Put(key, level, message)
	p.clearPending(id)

	if _, err := p.Reconcile(ctx); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "reconcile after completion failed", "error", err)
	}
}

func (p *Pipeline) fail(ctx context.Context, id, key string, err error) {
	logger.FromContext(ctx).ErrorContext(ctx, "pipeline item failed",
		"task", id, "source", key, "error", err)

	msg := err.Error()
	p.transition(id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = &msg
		t.Message = fmt.Sprintf("Failed: %s", msg)
	})
	p.messages.Put(key, uploads.LevelError, fmt.Sprintf("%s: %s", key, msg))
	p.clearPending(id)

	if _, rerr := p.Reconcile(ctx); rerr != nil {
		logger.FromContext(ctx).WarnContext(ctx, "reconcile after failure failed", "error", rerr)
	}
}

// markRunning optimistically flips a record after a successful run request;
// the reconciliation that follows settles it against ground truth.
func (p *Pipeline) markRunning(imageRef string) {
	familiar := runtime.FamiliarRef(imageRef)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range p.records {
		if rec.Name == imageRef || rec.ID == imageRef || rec.Name == familiar {
			rec.Status = ImageStatusRunning
			rec.HasRunningContainer = true
			return
		}
	}
}

func (p *Pipeline) clearPending(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *Pipeline) sweepTasksLocked() {
	cutoff := p.now().Add(-p.taskTTL)
	for id, task := range p.tasks {
		if task.Terminal() && task.UpdatedAt.Before(cutoff) {
			delete(p.tasks, id)
			delete(p.trackers, id)
		}
	}
}

// closeSource releases a caller-provided upload source, typically a spooled
// temp file that deletes itself on close.
func closeSource(src io.Reader) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}

func snapshotRecords(m map[string]*ImageRecord) []ImageRecord {
	return lo.Map(lo.Values(m), func(r *ImageRecord, _ int) ImageRecord { return *r })
}

func firstRef(res *runtime.LoadResult) string {
	if len(res.LoadedImages) > 0 {
		return res.LoadedImages[0]
	}
	if len(res.LoadedImageIDs) > 0 {
		return res.LoadedImageIDs[0]
	}
	return ""
}
