package diff

import (
	"errors"
	"fmt"

	"myvc/internal/vc"
)

var (
	// ErrOutOfRange is returned when an operation's line index does not fit
	// the document being replayed.
	ErrOutOfRange = errors.New("operation out of range")
	// ErrNotLineOperation is returned for file-level operations.
	ErrNotLineOperation = errors.New("not a line operation")
)

// Apply replays ops, as produced by one call to Differ.Diff, against content.
// Replay is a single forward merge over the old lines: delete and replace
// address old lines, insert addresses the position in the output.
func Apply(content []byte, ops []vc.Operation) ([]byte, error) {
	old := SplitLines(content)
	out := make([]string, 0, len(old)+len(ops))
	next := 0 // first old line not yet consumed

	for _, op := range ops {
		switch op.Kind {
		case vc.OpDelete, vc.OpReplace:
			if op.Line < next || op.Line >= len(old) {
				return nil, fmt.Errorf("%w: %s at line %d (document has %d lines, cursor %d)",
					ErrOutOfRange, op.Kind, op.Line, len(old), next)
			}
			out = append(out, old[next:op.Line]...)
			if op.Kind == vc.OpReplace {
				out = append(out, op.Text)
			}
			next = op.Line + 1
		case vc.OpInsert:
			for len(out) < op.Line && next < len(old) {
				out = append(out, old[next])
				next++
			}
			if len(out) != op.Line {
				return nil, fmt.Errorf("%w: insert at line %d (output has %d lines)",
					ErrOutOfRange, op.Line, len(out))
			}
			out = append(out, op.Text)
		default:
			return nil, fmt.Errorf("%w: %s", ErrNotLineOperation, op.Kind)
		}
	}
	out = append(out, old[next:]...)
	return JoinLines(out), nil
}
