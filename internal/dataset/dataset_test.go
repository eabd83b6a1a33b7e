package dataset

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestListImagesFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.png", "x")
	writeFile(t, dir, "a.JPG", "x")
	writeFile(t, dir, "c.jpeg", "x")
	writeFile(t, dir, "notes.txt", "x")
	writeFile(t, dir, "d.webp", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	records, err := ListImages(dir, Fake, SplitExtensions)
	require.NoError(t, err)

	var names []string
	for _, r := range records {
		names = append(names, r.Name())
		assert.Equal(t, Fake, r.Label)
	}
	assert.Equal(t, []string{"a.JPG", "b.png", "c.jpeg"}, names)
}

func TestListImagesFollowsSymlinks(t *testing.T) {
	src := t.TempDir()
	dir := t.TempDir()
	for _, n := range []string{"f1.png", "f2.png"} {
		target := writeFile(t, src, n, "x")
		require.NoError(t, os.Symlink(target, filepath.Join(dir, n)))
	}
	require.NoError(t, os.Symlink(filepath.Join(src, "gone.png"), filepath.Join(dir, "dangling.png")))
	require.NoError(t, os.Symlink(src, filepath.Join(dir, "folder.png")))

	records, err := ListImages(dir, Fake, SplitExtensions)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "f1.png", records[0].Name())
	assert.Equal(t, "f2.png", records[1].Name())

	names, err := FileNames(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"f1.png": {}, "f2.png": {}}, names)

	total, _, err := CountByExtension(dir, SplitExtensions)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	out := t.TempDir()
	require.NoError(t, CopyFile(records[0].Path, out))
	info, err := os.Lstat(filepath.Join(out, "f1.png"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "copy holds the target's content, not a link")
}

func TestListImagesMissingDir(t *testing.T) {
	_, err := ListImages(filepath.Join(t.TempDir(), "missing"), Real, SplitExtensions)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileNamesMissingDirIsEmpty(t *testing.T) {
	names, err := FileNames(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)

	n, err := CountFiles(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.jpg", "x")
	writeFile(t, dir, "2.JPG", "x")
	writeFile(t, dir, "3.png", "x")
	writeFile(t, dir, "4.tiff", "x")
	writeFile(t, dir, "5.txt", "x")

	total, rows, err := CountByExtension(dir, CountExtensions)
	require.NoError(t, err)

	assert.Equal(t, 4, total)
	assert.Equal(t, []ExtensionCount{
		{Extension: ".jpg", Count: 2},
		{Extension: ".png", Count: 1},
		{Extension: ".tiff", Count: 1},
	}, rows)
}

func TestRemoveImages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.jpg", "x")
	writeFile(t, dir, "2.png", "x")
	writeFile(t, dir, "keep.txt", "x")

	n, err := RemoveImages(dir, SplitExtensions)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names, err := FileNames(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"keep.txt": {}}, names)
}

func TestCopyFilePreservesContentAndTimes(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := writeFile(t, srcDir, "face.jpg", "pixels")
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	require.NoError(t, CopyFile(src, dstDir))

	got, err := os.ReadFile(filepath.Join(dstDir, "face.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(got))

	info, err := os.Stat(filepath.Join(dstDir, "face.jpg"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	_, err = os.Stat(src)
	assert.NoError(t, err, "source must survive the copy")
}

func TestCopyFileOverwrites(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := writeFile(t, srcDir, "face.jpg", "new")
	writeFile(t, dstDir, "face.jpg", "old and longer")

	require.NoError(t, CopyFile(src, dstDir))

	got, err := os.ReadFile(filepath.Join(dstDir, "face.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestCopyFileMissingSource(t *testing.T) {
	err := CopyFile(filepath.Join(t.TempDir(), "gone.jpg"), t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecode(t *testing.T) {
	data := pngBytes(t)

	img, format, err := DecodeImage(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, img.Bounds().Dx())

	assert.True(t, IsImage(bytes.NewReader(data)))
	assert.False(t, IsImage(bytes.NewReader([]byte("<html>rate limited</html>"))))

	path := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = DecodeFile(path)
	assert.NoError(t, err)
}
