package split

import (
	"fmt"
	"math/rand/v2"

	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
)

// Split names one of the three output partitions.
type Split string

const (
	Seed       Split = "seed"
	Validation Split = "validation"
	Pool       Split = "pool"
)

// Splits lists the partitions in copy and report order.
var Splits = []Split{Seed, Validation, Pool}

// Options configures one splitter run.
type Options struct {
	RealDir   string
	FakeDir   string
	OutputDir string

	SeedSize       int
	ValidationSize int
	NumQuartiles   int
	RandomSeed     int64

	// ExpectedFakeImages is the synthetic image count the quartile layout was
	// designed for. Zero disables the check.
	ExpectedFakeImages int
	// StrictQuartiles turns a count mismatch into ErrConfiguration instead of
	// recomputing the bands from the observed count.
	StrictQuartiles bool
	// Staged copies into a staging directory and renames it into place only
	// after every file was copied.
	Staged bool
	// ProgressEvery logs copy progress every N files. Zero disables it.
	ProgressEvery int
}

// Quotas splits a total between the classes: real gets half rounded down and
// fake absorbs the odd unit.
func Quotas(total int) (realCount, fakeCount int) {
	realCount = total / 2
	return realCount, total - realCount
}

// Assignment is the set of images planned for one split.
type Assignment struct {
	Real []dataset.ImageRecord
	Fake []dataset.ImageRecord
}

// Len is the number of images in the assignment.
func (a Assignment) Len() int { return len(a.Real) + len(a.Fake) }

// QuartileStats records how one band was divided.
type QuartileStats struct {
	Quartile   int    `json:"quartile"`
	Name       string `json:"name"`
	Range      string `json:"range"`
	Total      int    `json:"total"`
	Seed       int    `json:"seed"`
	Validation int    `json:"validation"`
	Pool       int    `json:"pool"`
}

// Plan is the complete in-memory assignment of every input image to a split.
// Building a plan touches no files.
type Plan struct {
	Quartiles []Quartile
	Stats     []QuartileStats
	// Adjusted is set when the observed synthetic count differed from the
	// expected one and the bands were recomputed.
	Adjusted bool
	Warnings []string

	// SortedFake is the synthetic list in band order, before shuffling.
	SortedFake []dataset.ImageRecord

	RealTotal int
	FakeTotal int

	SeedReal, SeedFake             int
	ValidationReal, ValidationFake int

	assignments map[Split]*Assignment
}

// Assignment returns the images planned for s.
func (p *Plan) Assignment(s Split) Assignment {
	if a, ok := p.assignments[s]; ok {
		return *a
	}
	return Assignment{}
}

// Total is the number of input images.
func (p *Plan) Total() int { return p.RealTotal + p.FakeTotal }

// BuildPlan assigns every record to exactly one split.
//
// Synthetic images are sorted by file name, cut into opts.NumQuartiles bands
// and each band is shuffled with rng before the seed, validation and pool
// slices are taken from it; the last band also takes the remainder of the
// per-band quotas. Authentic images are shuffled once, after all bands, and
// sliced directly. The same rng state and inputs always give the same plan.
func BuildPlan(reals, fakes []dataset.ImageRecord, opts Options, rng *rand.Rand) (*Plan, error) {
	if len(reals) == 0 || len(fakes) == 0 {
		return nil, fmt.Errorf("%w: no images found (real: %d, fake: %d)", ErrConfiguration, len(reals), len(fakes))
	}
	k := opts.NumQuartiles
	if k < 1 {
		return nil, fmt.Errorf("%w: quartile count must be at least 1, got %d", ErrConfiguration, k)
	}

	sortedFake := append([]dataset.ImageRecord(nil), fakes...)
	dataset.SortByName(sortedFake)
	shuffledReal := append([]dataset.ImageRecord(nil), reals...)
	dataset.SortByName(shuffledReal)

	p := &Plan{
		SortedFake: sortedFake,
		RealTotal:  len(reals),
		FakeTotal:  len(fakes),
		assignments: map[Split]*Assignment{
			Seed:       {},
			Validation: {},
			Pool:       {},
		},
	}

	if opts.ExpectedFakeImages > 0 && len(fakes) != opts.ExpectedFakeImages {
		if opts.StrictQuartiles {
			return nil, fmt.Errorf("%w: expected %d fake images, found %d",
				ErrConfiguration, opts.ExpectedFakeImages, len(fakes))
		}
		p.Adjusted = true
		p.Warnings = append(p.Warnings, fmt.Sprintf(
			"expected %d fake images, found %d; quartile boundaries recomputed",
			opts.ExpectedFakeImages, len(fakes)))
	}
	p.Quartiles = ComputeQuartiles(len(sortedFake), k)

	p.SeedReal, p.SeedFake = Quotas(opts.SeedSize)
	p.ValidationReal, p.ValidationFake = Quotas(opts.ValidationSize)
	seedPerBand := p.SeedFake / k
	valPerBand := p.ValidationFake / k

	seed, val, pool := p.assignments[Seed], p.assignments[Validation], p.assignments[Pool]

	for i, q := range p.Quartiles {
		band := append([]dataset.ImageRecord(nil), sortedFake[q.Start:q.End]...)
		if len(band) == 0 {
			p.Warnings = append(p.Warnings, fmt.Sprintf("%s: no images in this quartile", q.Name))
			continue
		}

		rng.Shuffle(len(band), func(a, b int) { band[a], band[b] = band[b], band[a] })

		qSeed, qVal := seedPerBand, valPerBand
		if i == k-1 {
			qSeed += p.SeedFake % k
			qVal += p.ValidationFake % k
		}

		s, v, rest := cut(band, qSeed, qVal)
		seed.Fake = append(seed.Fake, s...)
		val.Fake = append(val.Fake, v...)
		pool.Fake = append(pool.Fake, rest...)

		p.Stats = append(p.Stats, QuartileStats{
			Quartile:   q.Index,
			Name:       q.Name,
			Range:      q.Range(),
			Total:      len(band),
			Seed:       len(s),
			Validation: len(v),
			Pool:       len(rest),
		})
	}

	rng.Shuffle(len(shuffledReal), func(a, b int) {
		shuffledReal[a], shuffledReal[b] = shuffledReal[b], shuffledReal[a]
	})
	seed.Real, val.Real, pool.Real = cut(shuffledReal, p.SeedReal, p.ValidationReal)

	return p, nil
}

// NewRand returns the generator used for a run with the given seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// cut takes the first a items, the next b items and the rest. Counts are
// clamped to what is available.
func cut(items []dataset.ImageRecord, a, b int) (first, second, rest []dataset.ImageRecord) {
	a = clamp(a, len(items))
	b = clamp(b, len(items)-a)
	return items[:a], items[a : a+b], items[a+b:]
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
