package vc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// OpKind identifies what an Operation does to a document.
type OpKind int

const (
	OpInsert OpKind = iota
	OpDelete
	OpReplace
	OpCreate
	OpDeleteFile
)

var opKindNames = map[OpKind]string{
	OpInsert:     "insert",
	OpDelete:     "delete",
	OpReplace:    "replace",
	OpCreate:     "create",
	OpDeleteFile: "delete_file",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseOpKind maps a wire op_type string back to an OpKind.
func ParseOpKind(s string) (OpKind, error) {
	for k, name := range opKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOpKind, s)
}

var (
	// ErrUnknownOpKind is returned when an op_type string is not recognized.
	ErrUnknownOpKind = errors.New("unknown operation kind")
	// ErrInvalidOperation is returned by Validate.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Operation is one line-level edit produced by the diff engine, or a
// file-level event produced by the Service. Operations are values and are
// never mutated after they are recorded.
type Operation struct {
	Kind      OpKind
	Line      int
	Column    int // reserved, always 0
	Text      string
	Author    string
	Timestamp time.Time
	// Path is the project-relative file the operation applies to. It is
	// empty for operations that have not been attributed to a file yet.
	Path string
}

// Validate checks the structural invariants of an operation.
// Blank lines are legal insert and replace payloads, so Text may be empty for
// any kind; delete-file must carry no text.
func (op Operation) Validate() error {
	if _, ok := opKindNames[op.Kind]; !ok {
		return fmt.Errorf("%w: kind %d", ErrInvalidOperation, int(op.Kind))
	}
	if op.Line < 0 {
		return fmt.Errorf("%w: negative line %d", ErrInvalidOperation, op.Line)
	}
	if op.Column < 0 {
		return fmt.Errorf("%w: negative column %d", ErrInvalidOperation, op.Column)
	}
	if op.Kind == OpDeleteFile && op.Text != "" {
		return fmt.Errorf("%w: delete_file carries text", ErrInvalidOperation)
	}
	return nil
}

// wireOperation is the on-disk and on-wire JSON shape of an Operation.
type wireOperation struct {
	OpType    string `json:"op_type"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Path      string `json:"path,omitempty"`
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// MarshalJSON encodes the operation as a wire record with a Unix-nanosecond
// timestamp. The zero time is encoded as 0.
func (op Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOperation{
		OpType:    op.Kind.String(),
		Line:      op.Line,
		Column:    op.Column,
		Text:      op.Text,
		Author:    op.Author,
		Timestamp: unixNano(op.Timestamp),
		Path:      op.Path,
	})
}

// UnmarshalJSON decodes a wire record.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := ParseOpKind(w.OpType)
	if err != nil {
		return err
	}
	*op = Operation{
		Kind:      kind,
		Line:      w.Line,
		Column:    w.Column,
		Text:      w.Text,
		Author:    w.Author,
		Timestamp: fromUnixNano(w.Timestamp),
		Path:      w.Path,
	}
	return nil
}
