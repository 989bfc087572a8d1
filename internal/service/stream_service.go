package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"streambridge/internal/domain"
	"streambridge/internal/probe"
	"streambridge/internal/resolver"
	"streambridge/internal/swarm"
	"streambridge/internal/transcode"
)

// StreamService is the consumer-facing surface of the ingestion pipeline: it
// resolves references, routes them to the swarm or the transcode path, and
// runs the upload pipeline for local files.
type StreamService interface {
	Resolve(input string) (domain.ContentSummary, error)
	ResolveDescriptor(raw []byte) (domain.ContentSummary, error)
	TransportSupport(ctx context.Context) domain.TransportSupport
	StartSession(ctx context.Context, summary domain.ContentSummary) (domain.SessionSnapshot, error)
	SubmitForTranscode(ctx context.Context, summary domain.ContentSummary, opts domain.TranscodeOptions) (*domain.TranscodeResult, error)
	UploadLocalFile(ctx context.Context, r io.Reader, size int64, title string, onProgress func(done, total int64)) (*domain.TranscodeResult, error)
}

type Config struct {
	ReadyTimeout time.Duration
	Logger       *logrus.Logger
}

type streamService struct {
	cfg          Config
	resolver     *resolver.Resolver
	probe        *probe.Probe
	manager      swarm.Manager
	client       *transcode.Client
	orchestrator *transcode.Orchestrator
}

func NewStreamService(
	cfg Config,
	res *resolver.Resolver,
	prb *probe.Probe,
	manager swarm.Manager,
	client *transcode.Client,
	orchestrator *transcode.Orchestrator,
) StreamService {
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &streamService{
		cfg:          cfg,
		resolver:     res,
		probe:        prb,
		manager:      manager,
		client:       client,
		orchestrator: orchestrator,
	}
}

func (s *streamService) Resolve(input string) (domain.ContentSummary, error) {
	return s.resolver.Resolve(input)
}

func (s *streamService) ResolveDescriptor(raw []byte) (domain.ContentSummary, error) {
	return s.resolver.ResolveDescriptor(raw)
}

func (s *streamService) TransportSupport(ctx context.Context) domain.TransportSupport {
	return s.probe.Check(ctx)
}

// StartSession joins the swarm for a magnet or descriptor summary. Direct URL
// summaries never touch the swarm path.
func (s *streamService) StartSession(ctx context.Context, summary domain.ContentSummary) (domain.SessionSnapshot, error) {
	if summary.Kind == domain.KindURL {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: direct media URLs are played via the transcode path", domain.ErrInvalidReference)
	}
	if support := s.probe.Check(ctx); !support.Supported {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: %s", domain.ErrTransportUnavailable, support.Reason)
	}
	return s.manager.StartSession(ctx, summary)
}

// SubmitForTranscode implements the control flow of the pipeline: URL
// references go straight to the transcoding service; swarm references are
// joined, their largest video file streamed through the upload pipeline, and
// the resulting job polled to a terminal outcome.
func (s *streamService) SubmitForTranscode(ctx context.Context, summary domain.ContentSummary, opts domain.TranscodeOptions) (*domain.TranscodeResult, error) {
	title := opts.Title
	if title == "" {
		title = summary.Title
	}

	if summary.Kind == domain.KindURL {
		asset, err := s.client.CreateAssetFromURL(ctx, title, summary.SourceURL, opts.StaticCopy)
		if err != nil {
			return nil, err
		}
		return s.orchestrator.Await(ctx, asset.ID)
	}

	snap, err := s.StartSession(ctx, summary)
	if err != nil {
		return nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	if err := s.manager.WaitReady(readyCtx, snap.InfoHash); err != nil {
		return nil, fmt.Errorf("wait for session %s: %w", snap.InfoHash, err)
	}

	reader, entry, err := s.manager.LargestVideoReader(snap.InfoHash)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if title == "" {
		title = entry.Name
	}

	logger := s.cfg.Logger.WithField("info_hash", snap.InfoHash)
	progress := newUploadProgressLogger(logger)
	upload, err := s.client.UploadLocal(ctx, reader, entry.Size, title, progress)
	if err != nil {
		return nil, err
	}

	return s.orchestrator.Await(ctx, upload.AssetID)
}

// UploadLocalFile runs the upload pipeline for caller-supplied bytes and
// polls the created job to a terminal outcome.
func (s *streamService) UploadLocalFile(ctx context.Context, r io.Reader, size int64, title string, onProgress func(done, total int64)) (*domain.TranscodeResult, error) {
	upload, err := s.client.UploadLocal(ctx, r, size, title, onProgress)
	if err != nil {
		return nil, err
	}
	return s.orchestrator.Await(ctx, upload.AssetID)
}

func newUploadProgressLogger(logger *logrus.Entry) func(done, total int64) {
	var lastLog time.Time
	return func(done, total int64) {
		now := time.Now()
		if now.Sub(lastLog) < 500*time.Millisecond && done != total {
			return
		}
		lastLog = now
		if total > 0 {
			logger.Infof("upload progress: %.1f%% (%s/%s)", float64(done)/float64(total)*100, formatBytes(done), formatBytes(total))
		} else {
			logger.Infof("upload progress: %s uploaded", formatBytes(done))
		}
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB",
		float64(b)/float64(div),
		"KMGTPE"[exp],
	)
}

var _ StreamService = (*streamService)(nil)
