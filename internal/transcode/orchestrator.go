package transcode

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"streambridge/internal/domain"
)

// statusFetcher is the slice of Client the poller needs.
type statusFetcher interface {
	GetAsset(ctx context.Context, id string) (*Asset, error)
}

type OrchestratorConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	Logger       *logrus.Logger
}

// Orchestrator drives a submitted job to a terminal outcome by polling job
// status under a bounded attempt budget. Polls for one job are strictly
// sequential and stop at the first terminal or timeout state.
type Orchestrator struct {
	client statusFetcher
	cfg    OrchestratorConfig
}

func NewOrchestrator(client statusFetcher, cfg OrchestratorConfig) *Orchestrator {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 60
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Orchestrator{client: client, cfg: cfg}
}

// Await polls the asset until it reaches a terminal phase or the attempt
// budget runs out. A failed phase surfaces the service-reported error text; a
// spent budget surfaces ErrProcessingTimeout so callers can tell "retry" apart
// from "content is broken".
func (o *Orchestrator) Await(ctx context.Context, assetID string) (*domain.TranscodeResult, error) {
	logger := o.cfg.Logger.WithField("asset_id", assetID)

	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.PollInterval):
			}
		}

		asset, err := o.client.GetAsset(ctx, assetID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// One missed poll is transient; it still spends an attempt.
			logger.Warnf("poll %d/%d failed: %v", attempt+1, o.cfg.MaxAttempts, err)
			continue
		}

		job := asset.toJob()
		switch job.Phase {
		case domain.PhaseReady, domain.PhaseCompleted:
			logger.Info("transcode ready")
			return resultFromJob(job), nil
		case domain.PhaseFailed:
			detail := job.ErrorDetail
			if detail == "" {
				detail = "unknown error"
			}
			return nil, &domain.ProcessingError{Message: detail}
		case domain.PhaseWaiting, domain.PhaseProcessing, domain.PhaseUploading:
			logger.Debugf("transcode in progress: %.0f%%", job.Progress)
		default:
			logger.Warnf("unknown job phase %q, treating as transient", job.Phase)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts", domain.ErrProcessingTimeout, o.cfg.MaxAttempts)
}

func resultFromJob(job domain.TranscodeJob) *domain.TranscodeResult {
	playback := job.PlaybackURL
	if playback == "" {
		// The service occasionally omits the playback URL; it is
		// deterministically derivable from the playback id.
		playback = PlaybackURLFor(job.PlaybackID)
	}
	return &domain.TranscodeResult{
		AssetID:     job.AssetID,
		PlaybackID:  job.PlaybackID,
		PlaybackURL: playback,
		DownloadURL: job.DownloadURL,
	}
}

// PlaybackURLFor constructs the HLS playback reference for a playback id.
func PlaybackURLFor(playbackID string) string {
	return fmt.Sprintf("https://lp-playback.com/hls/%s/index.m3u8", playbackID)
}
