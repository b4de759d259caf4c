package replaylog

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteHeaderThenRevisionsAppendInOrder(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	if err := l.WriteHeader("https://svn.example.com/repo"); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := l.WriteRevision(Entry{Revnum: 1, TreeID: "tree1", RevisionID: "rev1", BlobCount: 2, DirCount: 1}); err != nil {
		t.Fatalf("WriteRevision: %v", err)
	}
	if err := l.WriteRevision(Entry{Revnum: 2, TreeID: "tree2", RevisionID: "rev2", BlobCount: 0, DirCount: 0}); err != nil {
		t.Fatalf("WriteRevision: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 2 header lines + 2 revision lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "svn.example.com") {
		t.Fatalf("expected header to mention the SVN URL, got %q", lines[0])
	}
	if lines[2] != "1\ttree1\trev1\t2\t1" {
		t.Fatalf("unexpected revision 1 line: %q", lines[2])
	}
	if lines[3] != "2\ttree2\trev2\t0\t0" {
		t.Fatalf("unexpected revision 2 line: %q", lines[3])
	}
}
