package split

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetadataFile is the name of the record written next to the split trees.
const MetadataFile = "split_metadata.json"

// Metadata summarises one completed run. It is written once and not touched
// again.
type Metadata struct {
	Timestamp         string          `json:"timestamp"`
	RandomSeed        int64           `json:"random_seed"`
	Configuration     Configuration   `json:"configuration"`
	Input             Input           `json:"input"`
	Quartiles         []QuartileStats `json:"quartiles"`
	QuartilesAdjusted bool            `json:"quartiles_adjusted"`
	Output            Output          `json:"output"`
	Stratification    Stratification  `json:"stratification"`
	Paths             Paths           `json:"paths"`
}

// Configuration echoes the requested sizes.
type Configuration struct {
	SeedSize           int `json:"seed_size"`
	ValidationSize     int `json:"validation_size"`
	NumQuartiles       int `json:"num_quartiles"`
	ExpectedFakeImages int `json:"expected_fake_images"`
}

// Input holds the source counts.
type Input struct {
	FakeImages int `json:"fake_images"`
	RealImages int `json:"real_images"`
	Total      int `json:"total"`
}

// SplitCounts are the on-disk counts of one split.
type SplitCounts struct {
	Real    int    `json:"real"`
	Fake    int    `json:"fake"`
	Total   int    `json:"total"`
	Balance string `json:"balance"`
}

// NewSplitCounts fills Total and Balance from the class counts.
func NewSplitCounts(realCount, fakeCount int) SplitCounts {
	total := realCount + fakeCount
	balance := "N/A"
	if total > 0 {
		balance = fmt.Sprintf("%.1f%% fake", float64(fakeCount)/float64(total)*100)
	}
	return SplitCounts{Real: realCount, Fake: fakeCount, Total: total, Balance: balance}
}

// Output holds the counts for every split.
type Output struct {
	Seed       SplitCounts `json:"seed"`
	Validation SplitCounts `json:"validation"`
	Pool       SplitCounts `json:"pool"`
}

// Get returns the counts for s.
func (o Output) Get(s Split) SplitCounts {
	switch s {
	case Seed:
		return o.Seed
	case Validation:
		return o.Validation
	default:
		return o.Pool
	}
}

func (o *Output) set(s Split, c SplitCounts) {
	switch s {
	case Seed:
		o.Seed = c
	case Validation:
		o.Validation = c
	default:
		o.Pool = c
	}
}

// RealTotal sums the authentic images over all splits.
func (o Output) RealTotal() int { return o.Seed.Real + o.Validation.Real + o.Pool.Real }

// FakeTotal sums the synthetic images over all splits.
func (o Output) FakeTotal() int { return o.Seed.Fake + o.Validation.Fake + o.Pool.Fake }

// GrandTotal sums every split.
func (o Output) GrandTotal() int { return o.RealTotal() + o.FakeTotal() }

// QuartileCount is how many images of one band were found in a split.
type QuartileCount struct {
	Quartile int    `json:"quartile"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// Stratification is the per-band presence check for seed and validation.
type Stratification struct {
	Seed       []QuartileCount `json:"seed"`
	Validation []QuartileCount `json:"validation"`
}

// Paths records where the run read from and wrote to.
type Paths struct {
	FakeDir   string `json:"fake_dir"`
	RealDir   string `json:"real_dir"`
	OutputDir string `json:"output_dir"`
}

// WriteMetadata writes md as indented JSON to outDir/split_metadata.json.
// The file is written to a temporary name in the same directory and renamed,
// so readers never see a partial record.
func WriteMetadata(outDir string, md *Metadata) (string, error) {
	dest := filepath.Join(outDir, MetadataFile)

	tmp, err := os.CreateTemp(outDir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create metadata file: %w", err)
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(md); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close metadata: %w", err)
	}
	_ = os.Chmod(tmpPath, 0o644)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}
	return dest, nil
}

// ReadMetadata loads a record written by WriteMetadata.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &md, nil
}
