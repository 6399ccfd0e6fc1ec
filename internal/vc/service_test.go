package vc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"myvc/internal/diff"
	"myvc/internal/outbox"
	"myvc/internal/store"
	"myvc/internal/testutil"
	"myvc/internal/vc"
	"myvc/internal/versioning"
)

type serviceFixture struct {
	svc   *vc.Service
	root  string
	fs    *testutil.MockFilesystemManager
	store *store.Store
	sink  *testutil.RecordingSink
	out   vc.Outbox
	clock *testutil.StubClock
}

func newServiceFixture(t *testing.T, mutate func(*vc.Deps)) *serviceFixture {
	t.Helper()
	root := t.TempDir()
	clock := testutil.NewTickingClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), time.Millisecond)
	if err := store.InitDirectory(root, clock); err != nil {
		t.Fatalf("InitDirectory() error = %v", err)
	}
	st, err := store.Open(root, store.WithClock(clock), store.WithIDGenerator(testutil.NewStubIDGenerator()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	fsmgr := testutil.NewMockFilesystemManager()
	differ := diff.New(diff.WithClock(clock))
	sink := testutil.NewRecordingSink()
	out := outbox.NewMemoryOutbox()

	deps := vc.Deps{
		Versioner: versioning.NewManager(fsmgr, differ, vc.NewNopLogger()),
		Store:     st,
		Outbox:    out,
		Sink:      sink,
		Fsmgr:     fsmgr,
		Clock:     clock,
	}
	if mutate != nil {
		mutate(&deps)
	}

	return &serviceFixture{
		svc:   vc.NewService(root, "alice", deps),
		root:  root,
		fs:    fsmgr,
		store: st,
		sink:  sink,
		out:   out,
		clock: clock,
	}
}

func (f *serviceFixture) path(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

func (f *serviceFixture) change(t *testing.T, rel string, kind vc.ChangeKind) []vc.Operation {
	t.Helper()
	ops, err := f.svc.HandleChange(vc.FileEvent{Path: f.path(rel), Kind: kind})
	if err != nil {
		t.Fatalf("HandleChange(%s, %v) error = %v", rel, kind, err)
	}
	return ops
}

func kinds(ops []vc.Operation) []vc.OpKind {
	out := make([]vc.OpKind, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}

func TestService_Track(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.fs.AddFile(f.path("a.txt"), []byte("one\n"))
	f.fs.AddFile(f.path("b.txt"), []byte("two\n"))

	n := f.svc.Track([]string{f.path("a.txt"), f.path("b.txt"), f.path("missing.txt")})
	if n != 2 {
		t.Errorf("Track() = %d, want 2", n)
	}
	if n := f.svc.Track([]string{f.path("a.txt")}); n != 0 {
		t.Errorf("second Track() = %d, want 0", n)
	}

	entries, err := f.store.LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Track recorded %d operations, want 0", len(entries))
	}
}

func TestService_HandleChange(t *testing.T) {
	f := newServiceFixture(t, nil)

	f.fs.AddFile(f.path("src/main.txt"), []byte("hello\n"))
	ops := f.change(t, "src/main.txt", vc.Created)
	if len(ops) != 1 || ops[0].Kind != vc.OpCreate {
		t.Fatalf("create ops = %v, want one create", kinds(ops))
	}
	if ops[0].Text != "hello\n" || ops[0].Path != "src/main.txt" || ops[0].Author != "alice" {
		t.Errorf("create op = %+v", ops[0])
	}

	f.fs.AddFile(f.path("src/main.txt"), []byte("hello\nworld\n"))
	ops = f.change(t, "src/main.txt", vc.Modified)
	if len(ops) != 1 || ops[0].Kind != vc.OpInsert || ops[0].Line != 1 || ops[0].Text != "world" {
		t.Fatalf("modify ops = %+v, want insert of line 1", ops)
	}
	if ops[0].Path != "src/main.txt" {
		t.Errorf("Path = %q, want src/main.txt", ops[0].Path)
	}

	// Same mtime, no new operations.
	if ops := f.change(t, "src/main.txt", vc.Modified); len(ops) != 0 {
		t.Errorf("unchanged file produced %d ops", len(ops))
	}

	f.fs.Remove(f.path("src/main.txt"))
	ops = f.change(t, "src/main.txt", vc.Deleted)
	if len(ops) != 1 || ops[0].Kind != vc.OpDeleteFile || ops[0].Text != "" {
		t.Fatalf("delete ops = %+v, want one delete_file", ops)
	}

	// Deleting an untracked file records nothing.
	if ops := f.change(t, "src/main.txt", vc.Deleted); len(ops) != 0 {
		t.Errorf("second delete produced %d ops", len(ops))
	}

	entries, err := f.store.LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("log has %d entries, want 3", len(entries))
	}
	for i, want := range []string{"create", "insert", "delete_file"} {
		if entries[i].Kind != want {
			t.Errorf("entry %d kind = %q, want %q", i, entries[i].Kind, want)
		}
	}

	if n, _ := f.out.Count(); n != 3 {
		t.Errorf("outbox count = %d, want 3", n)
	}
	select {
	case <-f.svc.Pending():
	default:
		t.Error("Pending() not signalled")
	}
}

func TestService_HandleChange_ModifiedUntracked(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.fs.AddFile(f.path("late.txt"), []byte("x\n"))

	ops := f.change(t, "late.txt", vc.Modified)
	if len(ops) != 1 || ops[0].Kind != vc.OpCreate {
		t.Fatalf("ops = %v, want one create", kinds(ops))
	}
}

func TestService_HandleChange_OutsideRoot(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.HandleChange(vc.FileEvent{Path: filepath.Join(filepath.Dir(f.root), "other.txt"), Kind: vc.Created})
	if err == nil {
		t.Fatal("HandleChange() outside root succeeded")
	}
}

func TestService_HandleChange_Verify(t *testing.T) {
	applied := 0
	f := newServiceFixture(t, func(d *vc.Deps) {
		d.Apply = func(content []byte, ops []vc.Operation) ([]byte, error) {
			applied++
			return diff.Apply(content, ops)
		}
	})

	f.fs.AddFile(f.path("a.txt"), []byte("a\nb\nc\n"))
	f.change(t, "a.txt", vc.Created)
	f.fs.AddFile(f.path("a.txt"), []byte("a\nB\nc\nd\n"))
	ops := f.change(t, "a.txt", vc.Modified)
	if len(ops) == 0 {
		t.Fatal("no ops for modification")
	}
	if applied != 1 {
		t.Errorf("Apply called %d times, want 1", applied)
	}
}

func TestService_HandleChange_Ignored(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.fs.Ignore("build/")
	f.fs.AddFile(f.path("build/out.txt"), []byte("x\n"))

	if ops := f.change(t, "build/out.txt", vc.Created); len(ops) != 0 {
		t.Errorf("ignored file produced %d ops", len(ops))
	}
	if f.fs.Reads(f.path("build/out.txt")) != 0 {
		t.Error("ignored file was read")
	}
}

func TestService_HandleRemote(t *testing.T) {
	f := newServiceFixture(t, nil)

	op := vc.Operation{Kind: vc.OpInsert, Line: 2, Text: "remote", Author: "bob", Timestamp: f.clock.Now(), Path: "doc.txt"}
	ref, err := f.svc.HandleRemote(op)
	if err != nil {
		t.Fatalf("HandleRemote() error = %v", err)
	}
	got, err := f.store.LoadOperation(ref)
	if err != nil {
		t.Fatalf("LoadOperation() error = %v", err)
	}
	if got.Author != "bob" || got.Text != "remote" {
		t.Errorf("stored op = %+v", got)
	}
	if n, _ := f.out.Count(); n != 0 {
		t.Errorf("remote op queued for delivery, outbox count = %d", n)
	}
	if f.fs.Reads(f.path("doc.txt")) > 0 {
		t.Error("remote op touched the working tree")
	}

	_, err = f.svc.HandleRemote(vc.Operation{Kind: vc.OpInsert, Line: -1, Author: "bob", Timestamp: f.clock.Now()})
	if !errors.Is(err, vc.ErrInvalidOperation) {
		t.Errorf("HandleRemote(invalid) error = %v, want ErrInvalidOperation", err)
	}
}

func TestService_Flush(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	f.sink.SetOffline(true)
	f.fs.AddFile(f.path("a.txt"), []byte("1\n"))
	f.change(t, "a.txt", vc.Created)
	f.fs.AddFile(f.path("a.txt"), []byte("1\n2\n"))
	f.change(t, "a.txt", vc.Modified)

	n, err := f.svc.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush() offline error = %v", err)
	}
	if n != 0 {
		t.Errorf("Flush() offline delivered %d", n)
	}
	if c, _ := f.out.Count(); c != 2 {
		t.Fatalf("outbox count = %d, want 2", c)
	}

	f.sink.SetOffline(false)
	n, err = f.svc.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Flush() delivered %d, want 2", n)
	}
	sent := f.sink.Sent()
	if got := kinds(sent); len(got) != 2 || got[0] != vc.OpCreate || got[1] != vc.OpInsert {
		t.Errorf("sent kinds = %v, want [create insert]", got)
	}
	if c, _ := f.out.Count(); c != 0 {
		t.Errorf("outbox count after flush = %d", c)
	}
}

func TestService_RunFlusher(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunFlusher(ctx, time.Hour)
		close(done)
	}()

	f.fs.AddFile(f.path("a.txt"), []byte("x\n"))
	f.change(t, "a.txt", vc.Created)

	deadline := time.After(5 * time.Second)
	for len(f.sink.Sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("flusher did not deliver the operation")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestService_Checkpoint(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.fs.AddFile(f.path("a.txt"), []byte("x\n"))
	f.change(t, "a.txt", vc.Created)

	cp, err := f.svc.Checkpoint("first")
	if err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	if cp.Message != "first" || cp.Author != "alice" || len(cp.Operations) != 1 {
		t.Errorf("checkpoint = %+v", cp)
	}

	status, err := f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Checkpoints != 1 || status.LastCheckpoint == nil || status.LastCheckpoint.ID != cp.ID {
		t.Errorf("status checkpoints = %d, last = %+v", status.Checkpoints, status.LastCheckpoint)
	}
}

func TestService_Status(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.sink.SetOffline(true)
	f.fs.AddFile(f.path("a.txt"), []byte("x\n"))
	f.change(t, "a.txt", vc.Created)
	f.fs.AddFile(f.path("a.txt"), []byte("x\ny\n"))
	f.change(t, "a.txt", vc.Modified)

	status, err := f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Root != f.root {
		t.Errorf("Root = %q, want %q", status.Root, f.root)
	}
	if len(status.Tracked) != 1 {
		t.Errorf("Tracked = %v, want one file", status.Tracked)
	}
	if status.Operations != 2 || status.LogEntries != 2 {
		t.Errorf("Operations = %d, LogEntries = %d, want 2 and 2", status.Operations, status.LogEntries)
	}
	if status.Pending != 2 {
		t.Errorf("Pending = %d, want 2", status.Pending)
	}
	if status.LastCheckpoint != nil {
		t.Errorf("LastCheckpoint = %+v, want nil", status.LastCheckpoint)
	}
}

func TestService_Log(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.fs.AddFile(f.path("a.txt"), []byte("1\n"))
	f.change(t, "a.txt", vc.Created)
	f.fs.AddFile(f.path("a.txt"), []byte("1\n2\n"))
	f.change(t, "a.txt", vc.Modified)
	f.fs.AddFile(f.path("a.txt"), []byte("1\n2\n3\n"))
	f.change(t, "a.txt", vc.Modified)

	tests := []struct {
		limit int
		want  int
	}{
		{0, 3},
		{2, 2},
		{10, 3},
	}
	for _, tt := range tests {
		records, err := f.svc.Log(tt.limit)
		if err != nil {
			t.Fatalf("Log(%d) error = %v", tt.limit, err)
		}
		if len(records) != tt.want {
			t.Errorf("Log(%d) = %d records, want %d", tt.limit, len(records), tt.want)
		}
	}

	records, _ := f.svc.Log(0)
	if records[0].Operation.Text != "3" || records[2].Operation.Kind != vc.OpCreate {
		t.Errorf("Log() not newest first: %+v", records)
	}
}

func TestService_SnapshotRestore(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.fs.AddFile(f.path("notes/todo.md"), []byte("- milk\n"))

	id, err := f.svc.Snapshot(f.path("notes/todo.md"))
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	snaps, err := f.svc.Snapshots()
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(snaps) != 1 || snaps[0].ID != id || snaps[0].Path != "notes/todo.md" {
		t.Fatalf("Snapshots() = %+v", snaps)
	}

	f.fs.AddFile(f.path("notes/todo.md"), []byte("- eggs\n"))

	t.Run("in place", func(t *testing.T) {
		written, err := f.svc.Restore(id, "")
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if written != f.path("notes/todo.md") {
			t.Errorf("Restore() wrote %q", written)
		}
		got, _ := f.fs.ReadFile(written)
		if string(got) != "- milk\n" {
			t.Errorf("restored content = %q", got)
		}
	})

	t.Run("to out path", func(t *testing.T) {
		out := f.path("restored.md")
		written, err := f.svc.Restore(id, out)
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if written != out {
			t.Errorf("Restore() wrote %q, want %q", written, out)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := f.svc.Restore("nope", ""); err == nil {
			t.Error("Restore(unknown) succeeded")
		}
	})

	t.Run("directory", func(t *testing.T) {
		f.fs.AddDirectory(f.path("notes"))
		if _, err := f.svc.Snapshot(f.path("notes")); err == nil {
			t.Error("Snapshot(directory) succeeded")
		}
	})
}

func TestService_RestoreEncrypted(t *testing.T) {
	enc := testutil.NewTestEncryptor()
	root := t.TempDir()
	clock := testutil.FixedClock()
	if err := store.InitDirectory(root, clock); err != nil {
		t.Fatalf("InitDirectory() error = %v", err)
	}
	st, err := store.Open(root, store.WithClock(clock), store.WithEncryptor(enc))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	fsmgr := testutil.NewMockFilesystemManager()
	svc := vc.NewService(root, "alice", vc.Deps{
		Versioner: versioning.NewManager(fsmgr, diff.New(), vc.NewNopLogger()),
		Store:     st,
		Outbox:    outbox.NewMemoryOutbox(),
		Sink:      testutil.NewRecordingSink(),
		Fsmgr:     fsmgr,
		Clock:     clock,
	})

	path := filepath.Join(root, "key.txt")
	fsmgr.AddFile(path, []byte("secret\n"))
	id, err := svc.Snapshot(path)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if _, err := svc.Restore(id, ""); !errors.Is(err, store.ErrEncrypted) {
		t.Fatalf("Restore() before unlock error = %v, want ErrEncrypted", err)
	}

	dc, err := enc.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	st.Unlock(dc)
	fsmgr.AddFile(path, []byte("changed\n"))
	if _, err := svc.Restore(id, ""); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	got, _ := fsmgr.ReadFile(path)
	if string(got) != "secret\n" {
		t.Errorf("restored content = %q", got)
	}
}

func TestService_Push(t *testing.T) {
	vault := testutil.NewTestVault()
	f := newServiceFixture(t, func(d *vc.Deps) { d.Vault = vault })

	f.fs.AddFile(f.path("a.txt"), []byte("x\n"))
	f.change(t, "a.txt", vc.Created)
	cp, err := f.svc.Checkpoint("one")
	if err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}

	result, err := f.svc.Push("proj")
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if result.Bundles != 1 || !result.CheckpointsSent || !result.LogSent {
		t.Errorf("Push() = %+v", result)
	}

	var buf bytes.Buffer
	if err := vault.GetMetadata("proj", vc.MetadataCheckpoints, &buf); err != nil {
		t.Fatalf("GetMetadata(checkpoints) error = %v", err)
	}
	var manifest []vc.CheckpointManifestEntry
	if err := json.Unmarshal(buf.Bytes(), &manifest); err != nil {
		t.Fatalf("decoding manifest: %v", err)
	}
	if len(manifest) != 1 || manifest[0].ID != cp.ID {
		t.Fatalf("manifest = %+v", manifest)
	}

	buf.Reset()
	if err := vault.GetContent(manifest[0].Checksum, &buf); err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if sum := testutil.SHA256Hex(buf.Bytes()); sum != manifest[0].Checksum {
		t.Errorf("bundle checksum = %s, manifest says %s", sum, manifest[0].Checksum)
	}
	var bundle vc.CheckpointBundle
	if err := json.Unmarshal(buf.Bytes(), &bundle); err != nil {
		t.Fatalf("decoding bundle: %v", err)
	}
	if len(bundle.Operations) != 1 || bundle.Operations[0].Kind != vc.OpCreate {
		t.Errorf("bundle operations = %+v", bundle.Operations)
	}

	if v, _ := vault.GetMetadataVersion("proj", vc.MetadataLog); v != 1 {
		t.Errorf("log version = %d, want 1", v)
	}

	// Nothing new: both metadata items are skipped.
	result, err = f.svc.Push("proj")
	if err != nil {
		t.Fatalf("second Push() error = %v", err)
	}
	if result.Bundles != 0 || result.CheckpointsSent || result.LogSent {
		t.Errorf("second Push() = %+v, want nothing sent", result)
	}
}

func TestService_Unavailable(t *testing.T) {
	f := newServiceFixture(t, nil)
	if _, err := f.svc.Push("proj"); !errors.Is(err, vc.ErrUnavailable) {
		t.Errorf("Push() error = %v, want ErrUnavailable", err)
	}
	if _, err := f.svc.History(10); !errors.Is(err, vc.ErrUnavailable) {
		t.Errorf("History() error = %v, want ErrUnavailable", err)
	}
}

func TestService_History(t *testing.T) {
	var db vc.Database
	f := newServiceFixture(t, func(d *vc.Deps) {
		db = testutil.NewTestDatabase(t, d.Clock)
		d.Database = db
	})

	for _, cmd := range []string{"init", "watch", "status"} {
		run, err := db.CreateCommandRun(f.root, cmd, "")
		if err != nil {
			t.Fatalf("CreateCommandRun() error = %v", err)
		}
		if err := db.FinishCommandRun(run.ID, "success"); err != nil {
			t.Fatalf("FinishCommandRun() error = %v", err)
		}
	}

	runs, err := f.svc.History(2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 2 || runs[0].Command != "status" || runs[1].Command != "watch" {
		t.Errorf("History(2) = %+v", runs)
	}
}
