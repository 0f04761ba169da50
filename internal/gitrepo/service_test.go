package gitrepo

import (
	"testing"
)

func TestEnsureDocumentRepoIdempotent(t *testing.T) {
	svc := New(t.TempDir())

	initial := Snapshot{Title: "Draft", Content: "<p>first</p>"}
	if err := svc.EnsureDocumentRepo("doc-1", initial, "Ada"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	if err := svc.EnsureDocumentRepo("doc-1", Snapshot{Title: "Other"}, "Ada"); err != nil {
		t.Fatalf("second EnsureDocumentRepo() error = %v", err)
	}

	history, err := svc.History("doc-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 version after repeated ensure, got %d", len(history))
	}
	if history[0].Author != "Ada" {
		t.Errorf("author = %q, want Ada", history[0].Author)
	}
}

func TestCommitSnapshotAndHistory(t *testing.T) {
	svc := New(t.TempDir())

	if err := svc.EnsureDocumentRepo("doc-1", Snapshot{Title: "Draft", Content: "<p>v1</p>"}, "Ada"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}

	v2, err := svc.CommitSnapshot("doc-1", Snapshot{Title: "Draft", Content: "<p>v2</p>"}, "Ada", "Edit intro")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if v2.Hash == "" || len(v2.Hash) != 7 {
		t.Errorf("expected short hash, got %q", v2.Hash)
	}

	v3, err := svc.CommitSnapshot("doc-1", Snapshot{Title: "Final", Content: "<p>v3</p>"}, "Ada", "Retitle")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	history, err := svc.History("doc-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(history))
	}
	// Newest first
	if history[0].Hash != v3.Hash {
		t.Errorf("first history entry = %q, want %q", history[0].Hash, v3.Hash)
	}
	if history[0].Message != "Retitle" {
		t.Errorf("message = %q, want Retitle", history[0].Message)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := New(t.TempDir())

	if err := svc.EnsureDocumentRepo("doc-1", Snapshot{Title: "T", Content: "v1"}, "Ada"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	for _, content := range []string{"v2", "v3", "v4"} {
		if _, err := svc.CommitSnapshot("doc-1", Snapshot{Title: "T", Content: content}, "Ada", "edit "+content); err != nil {
			t.Fatalf("CommitSnapshot() error = %v", err)
		}
	}

	history, err := svc.History("doc-1", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 versions with limit, got %d", len(history))
	}
}

func TestGetSnapshot(t *testing.T) {
	svc := New(t.TempDir())

	if err := svc.EnsureDocumentRepo("doc-1", Snapshot{Title: "Draft", Content: "<p>v1</p>"}, "Ada"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	v2, err := svc.CommitSnapshot("doc-1", Snapshot{Title: "Draft", Content: "<p>v2</p>"}, "Ada", "Edit")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	history, err := svc.History("doc-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	first := history[len(history)-1]

	snapshot, err := svc.GetSnapshot("doc-1", first.Hash)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snapshot.Content != "<p>v1</p>" {
		t.Errorf("oldest snapshot content = %q, want <p>v1</p>", snapshot.Content)
	}

	snapshot, err = svc.GetSnapshot("doc-1", v2.Hash)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snapshot.Content != "<p>v2</p>" {
		t.Errorf("latest snapshot content = %q, want <p>v2</p>", snapshot.Content)
	}
}

func TestGetSnapshotUnknownHash(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureDocumentRepo("doc-1", Snapshot{Title: "T"}, "Ada"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	if _, err := svc.GetSnapshot("doc-1", "abcdef0"); err == nil {
		t.Fatal("expected error for unknown hash")
	}
}

func TestDeleteDocumentRepo(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureDocumentRepo("doc-1", Snapshot{Title: "T"}, "Ada"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	if err := svc.DeleteDocumentRepo("doc-1"); err != nil {
		t.Fatalf("DeleteDocumentRepo() error = %v", err)
	}
	if _, err := svc.History("doc-1", 0); err == nil {
		t.Fatal("expected error listing history of deleted repo")
	}
}

func TestSanitizeEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ada Lovelace", "Ada.Lovelace"},
		{"mr_x", "mr.x"},
		{"!!!", "user"},
	}
	for _, tt := range tests {
		if got := sanitizeEmail(tt.in); got != tt.want {
			t.Errorf("sanitizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
