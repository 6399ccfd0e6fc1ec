package diff

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"myvc/internal/testutil"
	"myvc/internal/vc"
)

type opSummary struct {
	Kind vc.OpKind
	Line int
	Text string
}

func summarize(ops []vc.Operation) []opSummary {
	out := make([]opSummary, len(ops))
	for i, op := range ops {
		out[i] = opSummary{op.Kind, op.Line, op.Text}
	}
	return out
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"empty", "", nil},
		{"single unterminated", "a", []string{"a"}},
		{"single terminated", "a\n", []string{"a", ""}},
		{"trailing fragment", "a\nb", []string{"a", "b"}},
		{"blank line kept", "a\n\nb\n", []string{"a", "", "b", ""}},
		{"only newline", "\n", []string{"", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitLines([]byte(tt.content)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitLines(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestDiff_SingleLineReplacement(t *testing.T) {
	d := New(WithClock(testutil.FixedClock()))

	ops := d.Diff([]byte("a\nb\nc"), []byte("a\nx\nc"), "alice")

	want := []opSummary{
		{vc.OpDelete, 1, "b"},
		{vc.OpInsert, 1, "x"},
	}
	if got := summarize(ops); !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff() = %+v, want %+v", got, want)
	}
	for _, op := range ops {
		if op.Author != "alice" {
			t.Errorf("Author = %q, want %q", op.Author, "alice")
		}
		if op.Column != 0 {
			t.Errorf("Column = %d, want 0", op.Column)
		}
	}
}

func TestDiff_Exact(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
		want   []opSummary
	}{
		{
			name:   "identical",
			before: "a\nb\n",
			after:  "a\nb\n",
			want:   []opSummary{},
		},
		{
			name:   "both empty",
			before: "",
			after:  "",
			want:   []opSummary{},
		},
		{
			name:   "trailing newline added",
			before: "a\nb",
			after:  "a\nb\n",
			want:   []opSummary{{vc.OpInsert, 2, ""}},
		},
		{
			name:   "trailing newline removed",
			before: "a\n",
			after:  "a",
			want:   []opSummary{{vc.OpDelete, 1, ""}},
		},
		{
			name:   "append line",
			before: "a\n",
			after:  "a\nb\n",
			want:   []opSummary{{vc.OpInsert, 1, "b"}},
		},
		{
			name:   "remove first line",
			before: "a\nb\n",
			after:  "b\n",
			want:   []opSummary{{vc.OpDelete, 0, "a"}},
		},
		{
			name:   "from empty",
			before: "",
			after:  "x\ny\n",
			want:   []opSummary{{vc.OpInsert, 0, "x"}, {vc.OpInsert, 1, "y"}, {vc.OpInsert, 2, ""}},
		},
		{
			name:   "to empty",
			before: "x\ny\n",
			after:  "",
			want:   []opSummary{{vc.OpDelete, 0, "x"}, {vc.OpDelete, 1, "y"}, {vc.OpDelete, 2, ""}},
		},
		{
			name:   "prepend line",
			before: "a\nb\n",
			after:  "x\na\n",
			want:   []opSummary{{vc.OpInsert, 0, "x"}, {vc.OpDelete, 1, "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			got := summarize(d.Diff([]byte(tt.before), []byte(tt.after), "bob"))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff() = %+v, want %+v", got, tt.want)
			}
			if d.Stats().Mode != ModeExact {
				t.Errorf("Stats().Mode = %v, want exact", d.Stats().Mode)
			}
		})
	}
}

func TestDiff_Approximate(t *testing.T) {
	d := New(WithThreshold(2))

	ops := d.Diff([]byte("a\nb\nc"), []byte("a\nx\nc\nd\ne"), "carol")

	want := []opSummary{
		{vc.OpReplace, 1, "x"},
		{vc.OpInsert, 3, "d"},
		{vc.OpInsert, 4, "e"},
	}
	if got := summarize(ops); !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff() = %+v, want %+v", got, want)
	}
	if s := d.Stats(); s.Mode != ModeApproximate || s.OldLines != 3 || s.NewLines != 5 || s.Operations != 3 {
		t.Errorf("Stats() = %+v", s)
	}

	ops = d.Diff([]byte("a\nb\nc"), []byte("z"), "carol")
	want = []opSummary{
		{vc.OpReplace, 0, "z"},
		{vc.OpDelete, 1, "b"},
		{vc.OpDelete, 2, "c"},
	}
	if got := summarize(ops); !reflect.DeepEqual(got, want) {
		t.Errorf("Diff() shrink = %+v, want %+v", got, want)
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		oldLines, newLines int
		want               Mode
	}{
		{0, 0, ModeExact},
		{1000, 1000, ModeExact},
		{1001, 10, ModeApproximate},
		{10, 1001, ModeApproximate},
	}
	for _, tt := range tests {
		if got := SelectMode(tt.oldLines, tt.newLines, DefaultThreshold); got != tt.want {
			t.Errorf("SelectMode(%d, %d) = %v, want %v", tt.oldLines, tt.newLines, got, tt.want)
		}
	}
}

func TestDiff_TimestampsFromClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := New(WithClock(testutil.NewTickingClock(start, time.Millisecond)))

	ops := d.Diff(nil, []byte("a\nb\nc"), "dave")
	if len(ops) != 3 {
		t.Fatalf("len(ops) = %d, want 3", len(ops))
	}
	for i, op := range ops {
		want := start.Add(time.Duration(i) * time.Millisecond)
		if !op.Timestamp.Equal(want) {
			t.Errorf("ops[%d].Timestamp = %v, want %v", i, op.Timestamp, want)
		}
	}
}

// lcsLength is an independent reference used to check minimality.
func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		cur := make([]int, len(b)+1)
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev = cur
	}
	return prev[len(b)]
}

func randomDocument(r *rand.Rand, maxLines int) []byte {
	alphabet := []string{"a", "b", "c", "", "func main() {", "}"}
	n := r.Intn(maxLines + 1)
	lines := make([]string, n)
	for i := range lines {
		lines[i] = alphabet[r.Intn(len(alphabet))]
	}
	doc := JoinLines(lines)
	if n > 0 && r.Intn(2) == 0 {
		doc = append(doc, '\n')
	}
	return doc
}

func TestDiff_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		maxLines  int
	}{
		{"exact", DefaultThreshold, 40},
		{"approximate", 5, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rand.New(rand.NewSource(42))
			d := New(WithThreshold(tt.threshold))
			for i := 0; i < 300; i++ {
				before := randomDocument(r, tt.maxLines)
				after := randomDocument(r, tt.maxLines)

				ops := d.Diff(before, after, "fuzz")
				got, err := Apply(before, ops)
				if err != nil {
					t.Fatalf("Apply() error = %v\nbefore=%q\nafter=%q\nops=%+v", err, before, after, summarize(ops))
				}
				if !bytes.Equal(got, after) {
					t.Fatalf("Apply(before, Diff(before, after)) = %q, want %q\nops=%+v", got, after, summarize(ops))
				}
			}
		})
	}
}

func TestDiff_ExactIsMinimal(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	d := New()
	for i := 0; i < 200; i++ {
		before := randomDocument(r, 30)
		after := randomDocument(r, 30)
		a, b := SplitLines(before), SplitLines(after)

		ops := d.Diff(before, after, "fuzz")
		want := len(a) + len(b) - 2*lcsLength(a, b)
		if len(ops) != want {
			t.Fatalf("len(ops) = %d, want %d for %q -> %q", len(ops), want, before, after)
		}
	}
}

func TestDiff_OrderedPositions(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	d := New()
	for i := 0; i < 200; i++ {
		ops := d.Diff(randomDocument(r, 25), randomDocument(r, 25), "fuzz")
		lastDelete, lastInsert := -1, -1
		for _, op := range ops {
			switch op.Kind {
			case vc.OpDelete:
				if op.Line <= lastDelete {
					t.Fatalf("delete lines not increasing: %+v", summarize(ops))
				}
				lastDelete = op.Line
			case vc.OpInsert:
				if op.Line <= lastInsert {
					t.Fatalf("insert lines not increasing: %+v", summarize(ops))
				}
				lastInsert = op.Line
			}
		}
	}
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ops     []vc.Operation
		wantErr error
	}{
		{
			name:    "delete past end",
			content: "a\n",
			ops:     []vc.Operation{{Kind: vc.OpDelete, Line: 3}},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "insert past end",
			content: "a\n",
			ops:     []vc.Operation{{Kind: vc.OpInsert, Line: 5, Text: "x"}},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "replace behind cursor",
			content: "a\nb\n",
			ops: []vc.Operation{
				{Kind: vc.OpDelete, Line: 1},
				{Kind: vc.OpReplace, Line: 0, Text: "x"},
			},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "file level operation",
			content: "a\n",
			ops:     []vc.Operation{{Kind: vc.OpCreate}},
			wantErr: ErrNotLineOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply([]byte(tt.content), tt.ops)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Apply() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApply_KeepsTrailingNewline(t *testing.T) {
	ops := []vc.Operation{{Kind: vc.OpReplace, Line: 0, Text: "b"}}

	got, err := Apply([]byte("a"), ops)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if string(got) != "b" {
		t.Errorf("Apply() = %q, want %q", got, "b")
	}

	got, err = Apply([]byte("a\n"), ops)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if string(got) != "b\n" {
		t.Errorf("Apply() = %q, want %q", got, "b\n")
	}
}

func TestDiff_TrailingNewlineRoundTrip(t *testing.T) {
	tests := []struct {
		before string
		after  string
	}{
		{"a", "a\n"},
		{"a\n", "a"},
		{"x\ny", "x\ny\n"},
		{"x\ny\n", "x\ny\n\n"},
		{"\n", ""},
		{"", "\n"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q to %q", tt.before, tt.after), func(t *testing.T) {
			ops := New().Diff([]byte(tt.before), []byte(tt.after), "erin")
			if len(ops) == 0 {
				t.Fatal("Diff() returned no operations")
			}
			got, err := Apply([]byte(tt.before), ops)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if string(got) != tt.after {
				t.Errorf("Apply() = %q, want %q", got, tt.after)
			}
		})
	}
}
