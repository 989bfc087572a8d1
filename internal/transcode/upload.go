package transcode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"streambridge/internal/domain"
)

// UploadResult ties the uploaded bytes to the asset that polling will track.
type UploadResult struct {
	AssetID    string
	PlaybackID string
	InterimRef string
}

// UploadLocal requests an upload target for title and transfers the bytes to
// it, reporting completion via onProgress. Any non-success terminal status or
// transport failure fails the whole operation with an UploadError; no job
// exists downstream if the target request itself failed.
func (c *Client) UploadLocal(ctx context.Context, r io.Reader, size int64, title string, onProgress func(done, total int64)) (*UploadResult, error) {
	target, err := c.RequestUpload(ctx, title)
	if err != nil {
		return nil, &domain.UploadError{Err: err}
	}

	body := r
	if onProgress != nil {
		body = newProgressReader(r, size, onProgress)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.URL, body)
	if err != nil {
		return nil, &domain.UploadError{Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if size > 0 {
		req.ContentLength = size
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &domain.UploadError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UploadError{Err: fmt.Errorf("upload returned status %d", resp.StatusCode)}
	}

	if onProgress != nil {
		onProgress(size, size)
	}
	c.logger.WithField("asset_id", target.Asset.ID).Infof("uploaded %s (%d bytes)", title, size)

	interim := PlaybackURLFor(target.Asset.PlaybackID)
	if target.Asset.PlaybackID == "" {
		interim = "pending-upload-" + uuid.NewString()
	}
	return &UploadResult{
		AssetID:    target.Asset.ID,
		PlaybackID: target.Asset.PlaybackID,
		InterimRef: interim,
	}, nil
}

// progressReader reports transfer progress on each measurable increment,
// throttled so large files do not flood the callback.
type progressReader struct {
	r     io.Reader
	total int64
	cb    func(done, total int64)

	mu       sync.Mutex
	done     int64
	lastFire time.Time
}

func newProgressReader(r io.Reader, total int64, cb func(done, total int64)) *progressReader {
	return &progressReader{r: r, total: total, cb: cb}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.done += int64(n)
		now := time.Now()
		if now.Sub(p.lastFire) >= 200*time.Millisecond || p.done == p.total {
			p.lastFire = now
			p.cb(p.done, p.total)
		}
		p.mu.Unlock()
	}
	return n, err
}
