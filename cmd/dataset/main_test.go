package main

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/deepfake-detector/internal/evaluate"
	"github.com/Brownie44l1/deepfake-detector/internal/split"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
	}
}

func TestCountCommand(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", "b.PNG", "c.webp", "notes.txt")

	out, err := execute(t, "count", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Total images: 3")
	assert.Contains(t, out, ".jpg: 1")
	assert.Contains(t, out, ".png: 1")
	assert.Contains(t, out, ".webp: 1")
}

func TestCountCommandMissingDir(t *testing.T) {
	_, err := execute(t, "count", filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "directory not found")
}

func TestSplitCommand(t *testing.T) {
	base := t.TempDir()
	realDir := filepath.Join(base, "raw", "real")
	fakeDir := filepath.Join(base, "raw", "fake")
	outDir := filepath.Join(base, "out")

	var reals, fakes []string
	for i := 0; i < 10; i++ {
		reals = append(reals, fmt.Sprintf("r%02d.jpg", i))
	}
	for i := 0; i < 20; i++ {
		fakes = append(fakes, fmt.Sprintf("f%02d.png", i))
	}
	touch(t, realDir, reals...)
	touch(t, fakeDir, fakes...)

	out, err := execute(t, "split",
		"--real-dir", realDir,
		"--fake-dir", fakeDir,
		"--output-dir", outDir,
		"--seed-size", "8",
		"--validation-size", "4",
		"--quartiles", "2",
		"--random-seed", "7",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Final dataset distribution")

	md, err := split.ReadMetadata(filepath.Join(outDir, split.MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, int64(7), md.RandomSeed)
	assert.Equal(t, 30, md.Output.GrandTotal())
	assert.Equal(t, 8, md.Output.Seed.Total)
	assert.Equal(t, 4, md.Output.Validation.Total)
	assert.True(t, md.QuartilesAdjusted)
}

func TestSplitCommandStrictMismatch(t *testing.T) {
	base := t.TempDir()
	realDir := filepath.Join(base, "real")
	fakeDir := filepath.Join(base, "fake")
	touch(t, realDir, "r.jpg")
	touch(t, fakeDir, "f.jpg")

	_, err := execute(t, "split",
		"--real-dir", realDir,
		"--fake-dir", fakeDir,
		"--output-dir", filepath.Join(base, "out"),
		"--seed-size", "0",
		"--validation-size", "0",
		"--strict-quartiles",
	)
	assert.ErrorIs(t, err, split.ErrConfiguration)
}

func TestDownloadCommandUsesConfiguredOutputDir(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	dataDir := filepath.Join(t.TempDir(), "data")
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`dataset:
  output_dir: %s
download:
  url: %s
  backoff: 1ms
  rate_delay: 1ms
`, dataDir, srv.URL)), 0o644))

	out, err := execute(t, "--config", cfgPath, "download-fake", "--train", "1", "--val", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "saved 1/1")

	assert.FileExists(t, filepath.Join(dataDir, "seed", "fake", "fake_000000.jpg"))
	assert.FileExists(t, filepath.Join(dataDir, "validation", "fake", "fake_000001.jpg"))
}

func TestEvaluateCommandUsesDataDir(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DATA_DIR", dataDir)

	_, err := execute(t, "evaluate")
	require.ErrorIs(t, err, evaluate.ErrNoSamples)
	assert.ErrorContains(t, err, filepath.Join(dataDir, "validation"))
}
