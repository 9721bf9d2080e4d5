// Package uploads handles staging image archives on the runtime control
// service: bounded concurrent transfers, scaled progress reporting, and
// self-expiring status banners.
package uploads

import (
	"context"
	"fmt"
	"io"
)

// Byte progress is scaled into [0,80]; the remaining range belongs to the
// downstream load and activate phases so the bar never sits at 100% before
// the image is actually usable. A successful transfer lands on 85.
const (
	transferCap = 80
	stagedPct   = 85
)

// Uploader is the runtime client operation the transport drives.
type Uploader interface {
	UploadImage(ctx context.Context, name string, src io.Reader, size int64, report func(sent, total int64)) (string, error)
}

// Transport streams a local file to the staging area with scaled progress.
type Transport struct {
	uploader Uploader
}

// NewTransport creates a transport over the given uploader.
func NewTransport(uploader Uploader) *Transport {
	return &Transport{uploader: uploader}
}

// Upload streams src and returns the server-side staged filename. The
// report callback receives monotonic percentages in [0,80] during the
// transfer and 85 once the archive is staged.
func (t *Transport) Upload(ctx context.Context, name string, src io.Reader, size int64, report func(pct int)) (string, error) {
	staged, err := t.uploader.UploadImage(ctx, name, src, size, func(sent, total int64) {
		if report == nil || total <= 0 {
			return
		}
		pct := int(float64(sent) / float64(total) * transferCap)
		if pct > transferCap {
			pct = transferCap
		}
		report(pct)
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	if report != nil {
		report(stagedPct)
	}
	return staged, nil
}
