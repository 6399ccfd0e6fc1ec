// Package diff converts two versions of a text document into an ordered list
// of line operations and replays such lists.
package diff

import (
	"github.com/minio/highwayhash"

	"myvc/internal/vc"
)

// DefaultThreshold is the line count above which the approximate algorithm is used.
const DefaultThreshold = 1000

// hashKey is a fixed HighwayHash key. Line hashes never leave the process,
// so the key only needs to be stable.
var hashKey = []byte("myvc-line-identity-hash-key-0001")

// Mode identifies which algorithm produced a diff.
type Mode int

const (
	ModeExact Mode = iota
	ModeApproximate
)

func (m Mode) String() string {
	if m == ModeApproximate {
		return "approximate"
	}
	return "exact"
}

// SelectMode returns the algorithm used for documents of the given sizes.
func SelectMode(oldLines, newLines, threshold int) Mode {
	if oldLines <= threshold && newLines <= threshold {
		return ModeExact
	}
	return ModeApproximate
}

// Stats describes the most recent diff computed by a Differ.
type Stats struct {
	Mode       Mode
	OldLines   int
	NewLines   int
	Operations int
}

// Option configures a Differ.
type Option func(*Differ)

// WithThreshold overrides DefaultThreshold. Values below 1 are ignored.
func WithThreshold(n int) Option {
	return func(d *Differ) {
		if n > 0 {
			d.threshold = n
		}
	}
}

// WithClock sets the clock used to timestamp operations.
func WithClock(c vc.Clock) Option {
	return func(d *Differ) { d.clock = c }
}

// Differ computes line operations between two versions of a document.
// A Differ is not safe for concurrent use.
type Differ struct {
	threshold int
	clock     vc.Clock
	last      Stats
}

// New creates a Differ with the given options.
func New(opts ...Option) *Differ {
	d := &Differ{
		threshold: DefaultThreshold,
		clock:     vc.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold returns the configured exact/approximate cutoff.
func (d *Differ) Threshold() int { return d.threshold }

// Stats returns statistics about the last call to Diff.
func (d *Differ) Stats() Stats { return d.last }

// Diff returns the operations that turn before into after, in document order.
// delete and replace carry the line index in before; insert carries the
// index in after. Identical inputs yield an empty result.
func (d *Differ) Diff(before, after []byte, author string) []vc.Operation {
	oldLines := SplitLines(before)
	newLines := SplitLines(after)

	mode := SelectMode(len(oldLines), len(newLines), d.threshold)
	var ops []vc.Operation
	if mode == ModeExact {
		ops = d.exact(oldLines, newLines, author)
	} else {
		ops = d.approximate(oldLines, newLines, author)
	}

	d.last = Stats{
		Mode:       mode,
		OldLines:   len(oldLines),
		NewLines:   len(newLines),
		Operations: len(ops),
	}
	return ops
}

func (d *Differ) op(kind vc.OpKind, line int, text, author string) vc.Operation {
	return vc.Operation{
		Kind:      kind,
		Line:      line,
		Text:      text,
		Author:    author,
		Timestamp: d.clock.Now(),
	}
}

// hashedLine caches a line's hash so LCS comparisons are cheap.
type hashedLine struct {
	text string
	hash uint64
}

func hashLines(lines []string) []hashedLine {
	out := make([]hashedLine, len(lines))
	for i, l := range lines {
		out[i] = hashedLine{text: l, hash: highwayhash.Sum64([]byte(l), hashKey)}
	}
	return out
}

func (a hashedLine) equal(b hashedLine) bool {
	return a.hash == b.hash && len(a.text) == len(b.text) && a.text == b.text
}

// exact computes a minimal edit script from the longest common subsequence.
func (d *Differ) exact(oldLines, newLines []string, author string) []vc.Operation {
	a := hashLines(oldLines)
	b := hashLines(newLines)
	n, m := len(a), len(b)

	// table[i][j] = LCS length of a[:i] and b[:j].
	width := m + 1
	table := make([]int32, (n+1)*width)
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch {
			case a[i-1].equal(b[j-1]):
				table[i*width+j] = table[(i-1)*width+j-1] + 1
			case table[(i-1)*width+j] >= table[i*width+j-1]:
				table[i*width+j] = table[(i-1)*width+j]
			default:
				table[i*width+j] = table[i*width+j-1]
			}
		}
	}

	var ops []vc.Operation
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1].equal(b[j-1]):
			i--
			j--
		case j > 0 && (i == 0 || table[i*width+j-1] >= table[(i-1)*width+j]):
			ops = append(ops, d.op(vc.OpInsert, j-1, b[j-1].text, author))
			j--
		default:
			ops = append(ops, d.op(vc.OpDelete, i-1, a[i-1].text, author))
			i--
		}
	}

	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return ops
}

// approximate pairs lines by position. It is linear but not minimal.
func (d *Differ) approximate(oldLines, newLines []string, author string) []vc.Operation {
	var ops []vc.Operation
	common := min(len(oldLines), len(newLines))
	for i := 0; i < common; i++ {
		if oldLines[i] != newLines[i] {
			ops = append(ops, d.op(vc.OpReplace, i, newLines[i], author))
		}
	}
	for j := common; j < len(newLines); j++ {
		ops = append(ops, d.op(vc.OpInsert, j, newLines[j], author))
	}
	for i := common; i < len(oldLines); i++ {
		ops = append(ops, d.op(vc.OpDelete, i, oldLines[i], author))
	}
	return ops
}
