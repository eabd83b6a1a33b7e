package split

import (
	"fmt"
	"strconv"
)

// Quartile is a contiguous band [Start, End) over the name-sorted synthetic
// images. Bands are numbered from 1.
type Quartile struct {
	Index int
	Start int
	End   int
	Name  string
}

// Len is the number of images in the band.
func (q Quartile) Len() int { return q.End - q.Start }

// Range renders the band as "start-end".
func (q Quartile) Range() string { return fmt.Sprintf("%d-%d", q.Start, q.End) }

// ComputeQuartiles partitions n items into k contiguous bands of n/k items,
// the last band taking the remainder. k < 1 is treated as 1.
func ComputeQuartiles(n, k int) []Quartile {
	if k < 1 {
		k = 1
	}
	size := n / k

	bands := make([]Quartile, 0, k)
	for i := 0; i < k; i++ {
		start := i * size
		end := (i + 1) * size
		if i == k-1 {
			end = n
		}
		bands = append(bands, Quartile{
			Index: i + 1,
			Start: start,
			End:   end,
			Name:  fmt.Sprintf("Q%d: Images %s-%s", i+1, groupThousands(start), groupThousands(end)),
		})
	}
	return bands
}

// groupThousands formats n with comma separators: 80001 -> "80,001".
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	out := make([]byte, 0, len(s)+len(s)/3)
	head := len(s) % 3
	if head == 0 {
		head = 3
	}
	out = append(out, s[:head]...)
	for i := head; i < len(s); i += 3 {
		out = append(out, ',')
		out = append(out, s[i:i+3]...)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
