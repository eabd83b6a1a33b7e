// Package dataset holds the file-system side of the image corpus: discovering
// labeled images, counting them and copying them between directory trees.
package dataset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Label is the class an image belongs to, taken from its parent directory.
type Label string

const (
	Real Label = "real"
	Fake Label = "fake"
)

// Labels lists both classes in output order.
var Labels = []Label{Real, Fake}

// SplitExtensions are the formats the splitter picks up.
var SplitExtensions = []string{".jpg", ".jpeg", ".png"}

// CountExtensions are the formats reported by the count command.
var CountExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff", ".webp"}

// ImageRecord is a reference to one image on disk. Nothing is decoded.
type ImageRecord struct {
	Path  string
	Label Label
}

// Name is the file name used for ordering and for the destination copy.
func (r ImageRecord) Name() string { return filepath.Base(r.Path) }

// HasExtension reports whether name ends in one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// ListImages returns the regular files and symlinks to regular files in dir
// (non-recursive) whose extension
// is in exts, sorted by file name.
func ListImages(dir string, label Label, exts []string) ([]ImageRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	records := make([]ImageRecord, 0, len(entries))
	for _, e := range entries {
		if !HasExtension(e.Name(), exts) || !isFile(dir, e) {
			continue
		}
		records = append(records, ImageRecord{Path: filepath.Join(dir, e.Name()), Label: label})
	}

	SortByName(records)
	return records, nil
}

// SortByName orders records by base file name. Ties, which only happen with
// identical names from different directories, keep their relative order.
func SortByName(records []ImageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Name() < records[j].Name()
	})
}

// CountFiles returns the number of regular files directly inside dir.
// A missing directory counts as zero.
func CountFiles(dir string) (int, error) {
	names, err := FileNames(dir)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// FileNames returns the set of file names directly inside dir, counting
// symlinks whose target is a regular file.
// A missing directory yields an empty set.
func FileNames(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if isFile(dir, e) {
			names[e.Name()] = struct{}{}
		}
	}
	return names, nil
}

// isFile reports whether e is a regular file or a symlink resolving to one.
func isFile(dir string, e fs.DirEntry) bool {
	t := e.Type()
	if t.IsRegular() {
		return true
	}
	if t&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.Mode().IsRegular()
}

// ExtensionCount is one row of a per-extension breakdown.
type ExtensionCount struct {
	Extension string
	Count     int
}

// CountByExtension counts images in dir grouped by lower-cased extension.
// Rows are sorted by extension.
func CountByExtension(dir string, exts []string) (total int, rows []ExtensionCount, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	counts := make(map[string]int)
	for _, e := range entries {
		if !HasExtension(e.Name(), exts) || !isFile(dir, e) {
			continue
		}
		counts[strings.ToLower(filepath.Ext(e.Name()))]++
		total++
	}

	for ext, n := range counts {
		rows = append(rows, ExtensionCount{Extension: ext, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Extension < rows[j].Extension })
	return total, rows, nil
}

// RemoveImages deletes files with one of exts directly inside dir and
// returns how many were removed. Individual failures are skipped.
func RemoveImages(dir string, exts []string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		if !HasExtension(e.Name(), exts) || !isFile(dir, e) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
