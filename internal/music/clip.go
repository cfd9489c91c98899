package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/media/ffmpeg"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services/blobstore"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/textutil"
)

// Downloader fetches a remote track into a local file.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// AudioEditor performs the local clip edits.
type AudioEditor interface {
	Trim(ctx context.Context, inputPath, outputPath string, clipLength time.Duration) error
	MixWatermark(ctx context.Context, clipPath, outputPath string, spec ffmpeg.WatermarkSpec) error
}

// ClipProducer turns one finished track per tick into the published
// promotional clip: download, trim, watermark, upload. Each step maps to its
// own failure status so an operator can see exactly where production stopped.
type ClipProducer struct {
	store      *store.Store
	cfg        *config.Config
	downloader Downloader
	editor     AudioEditor
	uploader   blobstore.Uploader
	logger     *slog.Logger
	notifier   notifications.Service
	now        func() time.Time
}

// NewClipProducer constructs the processor using default dependencies,
// including a live connection to the clip bucket.
func NewClipProducer(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*ClipProducer, error) {
	uploader, err := blobstore.New(ctx, blobstore.Config{
		Bucket:              cfg.Storage.Bucket,
		CredentialsFile:     cfg.Storage.CredentialsFile,
		ObjectPrefix:        cfg.Storage.ClipPrefix,
		SignedURLExpiryMins: cfg.Storage.SignedURLExpiryMins,
	})
	if err != nil {
		return nil, err
	}
	return NewClipProducerWithDependencies(cfg, st, logger,
		newHTTPDownloader(), ffmpeg.New(cfg.Media.FFmpegBinary), uploader,
		notifications.NewService(cfg)), nil
}

// NewClipProducerWithDependencies allows injecting collaborators (used in tests).
func NewClipProducerWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, downloader Downloader, editor AudioEditor, uploader blobstore.Uploader, notifier notifications.Service) *ClipProducer {
	return &ClipProducer{
		store:      st,
		cfg:        cfg,
		downloader: downloader,
		editor:     editor,
		uploader:   uploader,
		logger:     logging.NewComponentLogger(logger, "music-clip"),
		notifier:   notifier,
		now:        time.Now,
	}
}

// Name implements stage.Processor.
func (p *ClipProducer) Name() string { return "music-clip" }

// Tick claims and produces at most one clip.
func (p *ClipProducer) Tick(ctx context.Context) error {
	req, err := p.store.OldestMusicRequest(ctx, store.MusicStatusAudioReady, p.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ctx = services.WithRecordID(ctx, req.ID)
	logger := logging.WithContext(ctx, p.logger)
	if err := p.store.MarkMusicClipStarted(ctx, req.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Debug("request already claimed")
			return nil
		}
		return err
	}

	p.produceOne(ctx, logger, req)
	return nil
}

func (p *ClipProducer) produceOne(ctx context.Context, logger *slog.Logger, req *store.MusicRequest) {
	workDir := filepath.Join(p.cfg.StagingDir(), req.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		p.fail(ctx, logger, req, store.MusicStatusErrorClip, fmt.Errorf("create staging dir: %w", err))
		return
	}
	defer os.RemoveAll(workDir)

	fullPath := filepath.Join(workDir, "full.mp3")
	if err := p.downloader.Download(ctx, req.AudioURL, fullPath); err != nil {
		p.fail(ctx, logger, req, store.MusicStatusErrorDownload, err)
		return
	}

	clipPath := filepath.Join(workDir, "clip.mp3")
	clipLength := time.Duration(p.cfg.Media.ClipSeconds) * time.Second
	if err := p.editor.Trim(ctx, fullPath, clipPath, clipLength); err != nil {
		p.fail(ctx, logger, req, store.MusicStatusErrorClip, err)
		return
	}

	finalPath := clipPath
	if watermark := strings.TrimSpace(p.cfg.Media.WatermarkPath); watermark != "" {
		markedPath := filepath.Join(workDir, "clip-marked.mp3")
		err := p.editor.MixWatermark(ctx, clipPath, markedPath, ffmpeg.WatermarkSpec{
			Path:   watermark,
			GainDB: p.cfg.Media.WatermarkGainDB,
			Delay:  time.Duration(p.cfg.Media.WatermarkDelay) * time.Millisecond,
		})
		if err != nil {
			p.fail(ctx, logger, req, store.MusicStatusErrorMark, err)
			return
		}
		finalPath = markedPath
	}

	clipURL, err := p.uploader.UploadFile(ctx, clipObjectName(req), finalPath, "audio/mpeg")
	if err != nil {
		p.fail(ctx, logger, req, store.MusicStatusErrorUpload, err)
		return
	}

	if err := p.store.MarkMusicClipReady(ctx, req.ID, clipURL); err != nil {
		logger.Error("persist clip url", logging.Error(err))
		return
	}
	logger.Info("clip produced", logging.String("clip_url", clipURL))
}

func (p *ClipProducer) fail(ctx context.Context, logger *slog.Logger, req *store.MusicRequest, to store.MusicStatus, cause error) {
	logger.Error("clip production failed",
		logging.String("status", string(to)), logging.Error(cause))
	if err := p.store.FailMusicRequest(ctx, req.ID,
		store.MusicStatusGeneratingClip, to, cause.Error()); err != nil {
		logger.Error("record clip failure", logging.Error(err))
	}
	_ = p.notifier.NotifyStageError(ctx, p.Name(), req.ID, cause)
}

func clipObjectName(req *store.MusicRequest) string {
	token := textutil.SanitizeToken(req.Recipient)
	if token == "" {
		return req.ID + ".mp3"
	}
	return fmt.Sprintf("%s-%s.mp3", token, req.ID)
}

// HealthCheck implements stage.Processor.
func (p *ClipProducer) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(p.cfg.Storage.Bucket) == "" {
		return stage.Unhealthy(p.Name(), "clip bucket not configured")
	}
	if p.cfg.Media.ClipSeconds <= 0 {
		return stage.Unhealthy(p.Name(), "clip length not configured")
	}
	return stage.Healthy(p.Name())
}

type httpDownloader struct {
	client *http.Client
}

func newHTTPDownloader() *httpDownloader {
	return &httpDownloader{client: &http.Client{Timeout: 2 * time.Minute}}
}

// Download streams the track to disk without buffering it in memory.
func (d *httpDownloader) Download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download track: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download track: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download track: unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("download track: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("download track: %w", err)
	}
	return f.Close()
}
