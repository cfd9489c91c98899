package music_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/media/ffmpeg"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/music"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/testsupport"
)

type fakeDownloader struct {
	err  error
	urls []string
}

func (f *fakeDownloader) Download(_ context.Context, url, destPath string) error {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, []byte("full track"), 0o644)
}

type fakeEditor struct {
	trimErr    error
	mixErr     error
	clipLength time.Duration
	spec       ffmpeg.WatermarkSpec
	mixCalls   int
}

func (f *fakeEditor) Trim(_ context.Context, inputPath, outputPath string, clipLength time.Duration) error {
	if f.trimErr != nil {
		return f.trimErr
	}
	f.clipLength = clipLength
	return copyFile(inputPath, outputPath)
}

func (f *fakeEditor) MixWatermark(_ context.Context, clipPath, outputPath string, spec ffmpeg.WatermarkSpec) error {
	if f.mixErr != nil {
		return f.mixErr
	}
	f.mixCalls++
	f.spec = spec
	return copyFile(clipPath, outputPath)
}

func copyFile(from, to string) error {
	data, err := os.ReadFile(from)
	if err != nil {
		return err
	}
	return os.WriteFile(to, data, 0o644)
}

type fakeUploader struct {
	err        error
	objectName string
	localPath  string
	uploaded   bool
}

func (f *fakeUploader) UploadFile(_ context.Context, objectName, localPath, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	f.objectName = objectName
	f.localPath = localPath
	f.uploaded = true
	return "https://signed.example/" + objectName, nil
}

func newClipStageRequest(t *testing.T, st *store.Store) *store.MusicRequest {
	t.Helper()
	ctx := context.Background()
	req := newLaunchStageRequest(t, st)
	if err := st.MarkMusicProcessing(ctx, req.ID, "task-clip"); err != nil {
		t.Fatalf("MarkMusicProcessing failed: %v", err)
	}
	if _, err := st.CompleteMusicTask(ctx, "task-clip", "https://cdn.example/full.mp3", time.Now()); err != nil {
		t.Fatalf("CompleteMusicTask failed: %v", err)
	}
	return req
}

func TestClipProducerPublishesWatermarkedClip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.WatermarkPath = filepath.Join(t.TempDir(), "mark.mp3")
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	req := newClipStageRequest(t, st)

	downloader := &fakeDownloader{}
	editor := &fakeEditor{}
	uploader := &fakeUploader{}
	producer := music.NewClipProducerWithDependencies(cfg, st, logging.NewNop(),
		downloader, editor, uploader, notifications.NewService(cfg))

	if err := producer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	fetched, err := st.MusicRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("MusicRequestByID failed: %v", err)
	}
	if fetched.Status != store.MusicStatusSendPending {
		t.Fatalf("expected send-music, got %s", fetched.Status)
	}
	if !strings.HasPrefix(fetched.ClipURL, "https://signed.example/") {
		t.Fatalf("expected signed clip url, got %q", fetched.ClipURL)
	}

	if len(downloader.urls) != 1 || downloader.urls[0] != "https://cdn.example/full.mp3" {
		t.Fatalf("expected full track download, got %v", downloader.urls)
	}
	if editor.clipLength != time.Duration(cfg.Media.ClipSeconds)*time.Second {
		t.Fatalf("unexpected clip length: %s", editor.clipLength)
	}
	if editor.mixCalls != 1 || editor.spec.Path != cfg.Media.WatermarkPath {
		t.Fatalf("expected watermark mix with configured file, got %+v", editor.spec)
	}
	if !uploader.uploaded || !strings.HasSuffix(uploader.objectName, ".mp3") {
		t.Fatalf("expected mp3 upload, got %+v", uploader)
	}

	// Staging files are scratch space and must not outlive the tick.
	if _, err := os.Stat(filepath.Join(cfg.StagingDir(), req.ID)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected staging dir removed, stat returned %v", err)
	}
}

func TestClipProducerSkipsWatermarkWhenUnconfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.WatermarkPath = ""
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	req := newClipStageRequest(t, st)

	editor := &fakeEditor{}
	producer := music.NewClipProducerWithDependencies(cfg, st, logging.NewNop(),
		&fakeDownloader{}, editor, &fakeUploader{}, notifications.NewService(cfg))

	if err := producer.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	fetched, err := st.MusicRequestByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("MusicRequestByID failed: %v", err)
	}
	if fetched.Status != store.MusicStatusSendPending {
		t.Fatalf("expected send-music, got %s", fetched.Status)
	}
	if editor.mixCalls != 0 {
		t.Fatalf("expected no watermark pass, got %d", editor.mixCalls)
	}
}

func TestClipProducerMapsStepFailuresToStatuses(t *testing.T) {
	cases := []struct {
		name       string
		downloader *fakeDownloader
		editor     *fakeEditor
		uploader   *fakeUploader
		want       store.MusicStatus
	}{
		{
			name:       "download",
			downloader: &fakeDownloader{err: errors.New("cdn unavailable")},
			editor:     &fakeEditor{},
			uploader:   &fakeUploader{},
			want:       store.MusicStatusErrorDownload,
		},
		{
			name:       "trim",
			downloader: &fakeDownloader{},
			editor:     &fakeEditor{trimErr: errors.New("ffmpeg exploded")},
			uploader:   &fakeUploader{},
			want:       store.MusicStatusErrorClip,
		},
		{
			name:       "watermark",
			downloader: &fakeDownloader{},
			editor:     &fakeEditor{mixErr: errors.New("bad filter")},
			uploader:   &fakeUploader{},
			want:       store.MusicStatusErrorMark,
		},
		{
			name:       "upload",
			downloader: &fakeDownloader{},
			editor:     &fakeEditor{},
			uploader:   &fakeUploader{err: errors.New("bucket denied")},
			want:       store.MusicStatusErrorUpload,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			cfg.Media.WatermarkPath = filepath.Join(t.TempDir(), "mark.mp3")
			st := testsupport.MustOpenStore(t, cfg)
			ctx := context.Background()
			req := newClipStageRequest(t, st)

			producer := music.NewClipProducerWithDependencies(cfg, st, logging.NewNop(),
				tc.downloader, tc.editor, tc.uploader, notifications.NewService(cfg))
			if err := producer.Tick(ctx); err != nil {
				t.Fatalf("Tick failed: %v", err)
			}

			fetched, err := st.MusicRequestByID(ctx, req.ID)
			if err != nil {
				t.Fatalf("MusicRequestByID failed: %v", err)
			}
			if fetched.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, fetched.Status)
			}
			if fetched.ErrorMessage == "" {
				t.Fatal("expected error message recorded")
			}
		})
	}
}
