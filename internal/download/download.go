// Package download fetches synthetic face images from a generator endpoint
// into the fake split directories.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
)

var (
	// ErrInvalidImage marks a payload that does not decode as an image.
	ErrInvalidImage = errors.New("payload is not a valid image")
	// ErrGaveUp is returned when too many consecutive attempts failed before
	// the target count was reached.
	ErrGaveUp = errors.New("download gave up")
)

// maxImageBytes caps one response body.
const maxImageBytes = 20 << 20

// Options tune the fetch loop.
type Options struct {
	URL         string
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	RateDelay   time.Duration
	// LogEvery logs progress after this many saved images.
	LogEvery int
}

// Downloader saves validated images as fake_%06d.jpg.
type Downloader struct {
	opts   Options
	client *http.Client
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(opts Options, log *zap.Logger) *Downloader {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = 10
	}
	if log == nil {
		log = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Downloader{
		opts: opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		log:   log,
		sleep: sleepContext,
	}
}

// Close releases idle connections.
func (d *Downloader) Close() {
	d.client.CloseIdleConnections()
}

// Fetch retrieves one payload.
func (d *Downloader) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.opts.UserAgent != "" {
		req.Header.Set("User-Agent", d.opts.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxImageBytes))
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return data, nil
}

// Download saves target images into outDir, numbering files from startIndex.
// A failed request waits Backoff times the current attempt count; an invalid
// payload waits Backoff. The attempt counter resets after every saved image
// and the loop stops once it reaches MaxAttempts*target.
func (d *Downloader) Download(ctx context.Context, target int, outDir string, startIndex int) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	saved, attempts, idx := 0, 0, startIndex
	limit := d.opts.MaxAttempts * target

	for saved < target && attempts < limit {
		data, err := d.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return saved, ctx.Err()
			}
			attempts++
			wait := d.opts.Backoff * time.Duration(attempts)
			d.log.Warn("request failed, backing off",
				zap.Error(err),
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait))
			if err := d.sleep(ctx, wait); err != nil {
				return saved, err
			}
			continue
		}

		if err := validate(data); err != nil {
			attempts++
			d.log.Warn("discarding payload", zap.Error(err), zap.Int("attempt", attempts))
			if err := d.sleep(ctx, d.opts.Backoff); err != nil {
				return saved, err
			}
			continue
		}

		path := filepath.Join(outDir, fmt.Sprintf("fake_%06d.jpg", idx))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return saved, fmt.Errorf("failed to save %s: %w", path, err)
		}
		saved++
		idx++
		attempts = 0

		if saved%d.opts.LogEvery == 0 {
			d.log.Info("saved", zap.Int("saved", saved), zap.Int("target", target), zap.String("path", path))
		}
		if err := d.sleep(ctx, d.opts.RateDelay); err != nil {
			return saved, err
		}
	}

	if saved < target {
		return saved, fmt.Errorf("%w: saved %d of %d into %s", ErrGaveUp, saved, target, outDir)
	}
	return saved, nil
}

func validate(data []byte) error {
	if !dataset.IsImage(bytes.NewReader(data)) {
		return fmt.Errorf("%w (%d bytes)", ErrInvalidImage, len(data))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
