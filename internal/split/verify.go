package split

import (
	"path/filepath"

	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
)

// CountSplits re-scans the six destination directories under outDir.
func CountSplits(outDir string) (Output, error) {
	var out Output
	for _, s := range Splits {
		realCount, err := dataset.CountFiles(classDir(outDir, s, dataset.Real))
		if err != nil {
			return Output{}, err
		}
		fakeCount, err := dataset.CountFiles(classDir(outDir, s, dataset.Fake))
		if err != nil {
			return Output{}, err
		}
		out.set(s, NewSplitCounts(realCount, fakeCount))
	}
	return out, nil
}

// CheckStratification counts, for seed and validation, how many images of
// each band are present in the split's fake directory. It reports what is on
// disk and enforces nothing.
func CheckStratification(p *Plan, outDir string) (Stratification, error) {
	seed, err := bandPresence(p, classDir(outDir, Seed, dataset.Fake))
	if err != nil {
		return Stratification{}, err
	}
	val, err := bandPresence(p, classDir(outDir, Validation, dataset.Fake))
	if err != nil {
		return Stratification{}, err
	}
	return Stratification{Seed: seed, Validation: val}, nil
}

func bandPresence(p *Plan, dir string) ([]QuartileCount, error) {
	present, err := dataset.FileNames(dir)
	if err != nil {
		return nil, err
	}

	counts := make([]QuartileCount, 0, len(p.Quartiles))
	for _, q := range p.Quartiles {
		n := 0
		for _, rec := range p.SortedFake[q.Start:q.End] {
			if _, ok := present[rec.Name()]; ok {
				n++
			}
		}
		counts = append(counts, QuartileCount{Quartile: q.Index, Name: q.Name, Count: n})
	}
	return counts, nil
}

func classDir(root string, s Split, l dataset.Label) string {
	return filepath.Join(root, string(s), string(l))
}
