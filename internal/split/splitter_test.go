package split

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
)

type corpus struct {
	realDir string
	fakeDir string
}

func makeCorpus(t *testing.T, nReal, nFake int) corpus {
	t.Helper()
	root := t.TempDir()
	c := corpus{
		realDir: filepath.Join(root, "raw", "real"),
		fakeDir: filepath.Join(root, "raw", "fake"),
	}
	require.NoError(t, os.MkdirAll(c.realDir, 0o755))
	require.NoError(t, os.MkdirAll(c.fakeDir, 0o755))

	for i := 0; i < nReal; i++ {
		name := fmt.Sprintf("real_%03d.jpg", i)
		require.NoError(t, os.WriteFile(filepath.Join(c.realDir, name), []byte(name), 0o644))
	}
	for i := 0; i < nFake; i++ {
		name := fmt.Sprintf("fake_%03d.png", i)
		require.NoError(t, os.WriteFile(filepath.Join(c.fakeDir, name), []byte(name), 0o644))
	}
	return c
}

func (c corpus) options(outDir string) Options {
	opts := scenarioOptions()
	opts.RealDir = c.realDir
	opts.FakeDir = c.fakeDir
	opts.OutputDir = outDir
	return opts
}

func sortedNames(t *testing.T, dir string) []string {
	t.Helper()
	set, err := dataset.FileNames(dir)
	require.NoError(t, err)
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func TestRunScenario(t *testing.T) {
	c := makeCorpus(t, 40, 40)
	out := t.TempDir()

	s := New(c.options(out), zaptest.NewLogger(t))
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	md, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SplitCounts{Real: 4, Fake: 4, Total: 8, Balance: "50.0% fake"}, md.Output.Seed)
	assert.Equal(t, SplitCounts{Real: 2, Fake: 2, Total: 4, Balance: "50.0% fake"}, md.Output.Validation)
	assert.Equal(t, SplitCounts{Real: 34, Fake: 34, Total: 68, Balance: "50.0% fake"}, md.Output.Pool)
	assert.Equal(t, Input{FakeImages: 40, RealImages: 40, Total: 80}, md.Input)
	assert.Equal(t, "2026-10-18T12:00:00Z", md.Timestamp)
	assert.False(t, md.QuartilesAdjusted)

	var seedStrat []int
	for _, qc := range md.Stratification.Seed {
		seedStrat = append(seedStrat, qc.Count)
	}
	assert.Equal(t, []int{1, 1, 1, 1}, seedStrat)

	for _, label := range dataset.Labels {
		src := c.realDir
		if label == dataset.Fake {
			src = c.fakeDir
		}
		var union []string
		for _, sp := range Splits {
			union = append(union, sortedNames(t, classDir(out, sp, label))...)
		}
		slices.Sort(union)
		assert.Equal(t, sortedNames(t, src), union, "class %s", label)
	}

	// sources are copied, not moved
	assert.Len(t, sortedNames(t, c.realDir), 40)
	assert.Len(t, sortedNames(t, c.fakeDir), 40)

	body, err := os.ReadFile(filepath.Join(out, MetadataFile))
	require.NoError(t, err)
	assert.True(t, json.Valid(body))

	onDisk, err := CountSplits(out)
	require.NoError(t, err)
	written, err := ReadMetadata(filepath.Join(out, MetadataFile))
	require.NoError(t, err)
	for _, sp := range Splits {
		assert.Equal(t, onDisk.Get(sp).Total, written.Output.Get(sp).Total, sp)
	}
	assert.Len(t, written.Quartiles, 4)
	assert.Equal(t, c.fakeDir, written.Paths.FakeDir)
}

func TestRunMetadataKeys(t *testing.T) {
	c := makeCorpus(t, 8, 8)
	out := t.TempDir()
	opts := c.options(out)
	opts.SeedSize, opts.ValidationSize, opts.ExpectedFakeImages = 4, 2, 8

	_, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(out, MetadataFile))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	for _, key := range []string{"timestamp", "random_seed", "configuration", "input", "quartiles", "output", "paths"} {
		assert.Contains(t, raw, key)
	}

	var quartiles []map[string]any
	require.NoError(t, json.Unmarshal(raw["quartiles"], &quartiles))
	require.NotEmpty(t, quartiles)
	for _, key := range []string{"quartile", "name", "range", "total", "seed", "validation", "pool"} {
		assert.Contains(t, quartiles[0], key)
	}
}

func TestRunIsReproducible(t *testing.T) {
	c := makeCorpus(t, 40, 40)
	outA, outB := t.TempDir(), t.TempDir()

	_, err := New(c.options(outA), zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)
	_, err = New(c.options(outB), zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	for _, sp := range Splits {
		for _, l := range dataset.Labels {
			assert.Equal(t, sortedNames(t, classDir(outA, sp, l)), sortedNames(t, classDir(outB, sp, l)), "%s/%s", sp, l)
		}
	}
}

func TestRunMissingSourceFailsBeforeCopy(t *testing.T) {
	c := makeCorpus(t, 4, 4)
	out := t.TempDir()
	opts := c.options(out)
	opts.FakeDir = filepath.Join(out, "does-not-exist")

	_, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
	require.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, statErr := os.Stat(filepath.Join(out, string(Seed)))
	assert.True(t, os.IsNotExist(statErr), "no output tree before preconditions pass")
}

func TestRunEmptySourceFails(t *testing.T) {
	c := makeCorpus(t, 4, 0)
	out := t.TempDir()

	_, err := New(c.options(out), zaptest.NewLogger(t)).Run(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRunCancelledLeavesNoMetadata(t *testing.T) {
	c := makeCorpus(t, 12, 12)
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(c.options(out), zaptest.NewLogger(t)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(filepath.Join(out, MetadataFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunStaged(t *testing.T) {
	t.Run("commits into place", func(t *testing.T) {
		c := makeCorpus(t, 40, 40)
		out := t.TempDir()
		opts := c.options(out)
		opts.Staged = true

		md, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 80, md.Output.GrandTotal())

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), ".split-staging-"), "staging dir left behind: %s", e.Name())
			assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
		}
	})

	t.Run("cancel removes staging", func(t *testing.T) {
		c := makeCorpus(t, 12, 12)
		out := t.TempDir()
		opts := c.options(out)
		opts.Staged = true

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := New(opts, zaptest.NewLogger(t)).Run(ctx)
		require.ErrorIs(t, err, context.Canceled)

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("refuses populated destination", func(t *testing.T) {
		c := makeCorpus(t, 12, 12)
		out := t.TempDir()
		opts := c.options(out)
		opts.Staged = true

		stale := classDir(out, Pool, dataset.Real)
		require.NoError(t, os.MkdirAll(stale, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(stale, "old.jpg"), []byte("x"), 0o644))

		_, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
		require.ErrorIs(t, err, ErrConfiguration)
		assert.Equal(t, []string{"old.jpg"}, sortedNames(t, stale))
	})

	t.Run("refuses stray file in split directory", func(t *testing.T) {
		c := makeCorpus(t, 12, 12)
		out := t.TempDir()
		opts := c.options(out)
		opts.Staged = true

		valDir := filepath.Join(out, string(Validation))
		require.NoError(t, os.MkdirAll(valDir, 0o755))
		readme := filepath.Join(valDir, "README.txt")
		require.NoError(t, os.WriteFile(readme, []byte("notes"), 0o644))

		_, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
		require.ErrorIs(t, err, ErrConfiguration)

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, string(Validation), entries[0].Name())

		data, err := os.ReadFile(readme)
		require.NoError(t, err)
		assert.Equal(t, "notes", string(data))
	})

	t.Run("refuses stray directory in split directory", func(t *testing.T) {
		c := makeCorpus(t, 12, 12)
		out := t.TempDir()
		opts := c.options(out)
		opts.Staged = true
		require.NoError(t, os.MkdirAll(filepath.Join(out, string(Pool), "extra"), 0o755))

		_, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
		require.ErrorIs(t, err, ErrConfiguration)
		assert.NoDirExists(t, filepath.Join(out, string(Seed)))
	})

	t.Run("replaces empty destination", func(t *testing.T) {
		c := makeCorpus(t, 12, 12)
		out := t.TempDir()
		opts := c.options(out)
		opts.Staged = true
		opts.ExpectedFakeImages = 12
		require.NoError(t, setupDirectories(out))

		md, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 24, md.Output.GrandTotal())
	})
}

func TestCommitStagingRollsBack(t *testing.T) {
	out := t.TempDir()
	staging := filepath.Join(out, ".split-staging-test")
	seedReal := classDir(staging, Seed, dataset.Real)
	require.NoError(t, os.MkdirAll(seedReal, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seedReal, "a.jpg"), []byte("a"), 0o644))

	// validation was never staged, so its rename fails after seed moved
	err := commitStaging(staging, out)
	require.ErrorIs(t, err, fs.ErrNotExist)

	assert.Equal(t, []string{"a.jpg"}, sortedNames(t, seedReal))
	assert.NoDirExists(t, filepath.Join(out, string(Seed)))
}

var errDiskFull = errors.New("no space left on device")

// failAfter lets n copies through and fails every later one.
func failAfter(n int) func(src, dstDir string) error {
	done := 0
	return func(src, dstDir string) error {
		if done >= n {
			return fmt.Errorf("failed to copy %s: %w", src, errDiskFull)
		}
		done++
		return dataset.CopyFile(src, dstDir)
	}
}

func TestRunCopyError(t *testing.T) {
	t.Run("leaves partial output without metadata", func(t *testing.T) {
		c := makeCorpus(t, 12, 12)
		out := t.TempDir()
		s := New(c.options(out), zaptest.NewLogger(t))
		s.copyFile = failAfter(5)

		_, err := s.Run(context.Background())
		require.ErrorIs(t, err, errDiskFull)

		counts, err := CountSplits(out)
		require.NoError(t, err)
		assert.Equal(t, 4, counts.Seed.Real)
		assert.Equal(t, 1, counts.Seed.Fake)
		assert.Equal(t, 5, counts.GrandTotal())
		assert.NoFileExists(t, filepath.Join(out, MetadataFile))
	})

	t.Run("destination collision", func(t *testing.T) {
		c := makeCorpus(t, 12, 12)
		out := t.TempDir()
		for _, sp := range Splits {
			require.NoError(t, os.MkdirAll(filepath.Join(classDir(out, sp, dataset.Real), "real_005.jpg"), 0o755))
		}

		_, err := New(c.options(out), zaptest.NewLogger(t)).Run(context.Background())
		require.Error(t, err)
		assert.ErrorContains(t, err, "real_005.jpg")
		assert.NoFileExists(t, filepath.Join(out, MetadataFile))
	})

	t.Run("staged run removes staging", func(t *testing.T) {
		c := makeCorpus(t, 12, 12)
		out := t.TempDir()
		opts := c.options(out)
		opts.Staged = true
		s := New(opts, zaptest.NewLogger(t))
		s.copyFile = failAfter(5)

		_, err := s.Run(context.Background())
		require.ErrorIs(t, err, errDiskFull)

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestRunSymlinkedSources(t *testing.T) {
	c := makeCorpus(t, 12, 12)
	linked := filepath.Join(t.TempDir(), "fake")
	require.NoError(t, os.MkdirAll(linked, 0o755))
	for _, n := range sortedNames(t, c.fakeDir) {
		require.NoError(t, os.Symlink(filepath.Join(c.fakeDir, n), filepath.Join(linked, n)))
	}

	out := t.TempDir()
	opts := c.options(out)
	opts.FakeDir = linked
	opts.ExpectedFakeImages = 12

	md, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, md.Input.FakeImages)
	assert.Equal(t, 12, md.Output.FakeTotal())

	info, err := os.Lstat(filepath.Join(classDir(out, Pool, dataset.Fake), sortedNames(t, classDir(out, Pool, dataset.Fake))[0]))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestRunRerunWithoutStagingIsNotIdempotent(t *testing.T) {
	c := makeCorpus(t, 40, 40)
	out := t.TempDir()

	_, err := New(c.options(out), zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	opts := c.options(out)
	opts.RandomSeed = 99
	md, err := New(opts, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	// a different seed puts some files in a second split; the on-disk total
	// now exceeds the input
	assert.Greater(t, md.Output.GrandTotal(), 80)
}

func TestNewSplitCounts(t *testing.T) {
	assert.Equal(t, SplitCounts{Balance: "N/A"}, NewSplitCounts(0, 0))
	assert.Equal(t, "25.0% fake", NewSplitCounts(3, 1).Balance)
}

func TestWriteMetadataReplacesExisting(t *testing.T) {
	dir := t.TempDir()

	_, err := WriteMetadata(dir, &Metadata{RandomSeed: 1})
	require.NoError(t, err)
	path, err := WriteMetadata(dir, &Metadata{RandomSeed: 2})
	require.NoError(t, err)

	md, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), md.RandomSeed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
