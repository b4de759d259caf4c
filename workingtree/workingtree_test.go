package workingtree

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	dir := t.TempDir()
	tr, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestWriteFileCreatesParentDirs(t *testing.T) {
	tr := newTestTree(t)
	if err := tr.WriteFile("a/b/c.txt", []byte("hello"), false, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := tr.ReadFile("a/b/c.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q want %q", got, "hello")
	}
}

func TestWriteFileExecutableBitIsSet(t *testing.T) {
	tr := newTestTree(t)
	if err := tr.WriteFile("script.sh", []byte("#!/bin/sh\n"), true, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(filepath.Join(tr.Dir, "script.sh"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode()&0111 == 0 {
		t.Fatalf("expected executable bit set, got mode %v", info.Mode())
	}
}

func TestWriteFileSymlinkExtractsTarget(t *testing.T) {
	tr := newTestTree(t)
	if err := tr.WriteFile("link.txt", []byte("link ../real.txt"), false, true); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	target, err := os.Readlink(filepath.Join(tr.Dir, "link.txt"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "../real.txt" {
		t.Fatalf("got target %q want %q", target, "../real.txt")
	}
}

func TestWriteFileSymlinkRejectsMissingPrefix(t *testing.T) {
	tr := newTestTree(t)
	if err := tr.WriteFile("bad.txt", []byte("not a link"), false, true); err == nil {
		t.Fatalf("expected error for svn:special content missing the link prefix")
	}
}

func TestRemoveDeletesSubtree(t *testing.T) {
	tr := newTestTree(t)
	tr.WriteFile("dir/a.txt", []byte("a"), false, false)
	tr.WriteFile("dir/b.txt", []byte("b"), false, false)
	if err := tr.Remove("dir"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tr.Dir, "dir")); !os.IsNotExist(err) {
		t.Fatalf("expected dir to be removed, stat err: %v", err)
	}
}

func TestExportCopiesSubtree(t *testing.T) {
	tr := newTestTree(t)
	tr.WriteFile("branches/stable/x.txt", []byte("x"), false, false)
	if err := tr.Export("branches/stable", "trunk"); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got, err := tr.ReadFile("trunk/x.txt")
	if err != nil {
		t.Fatalf("ReadFile after export: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("got %q want %q", got, "x")
	}
}

func TestExportIntoPreparesDestAndInvokesFetch(t *testing.T) {
	tr := newTestTree(t)
	var gotDir string
	err := tr.ExportInto("branches/b1", func(absDestDir string) error {
		gotDir = absDestDir
		return os.WriteFile(filepath.Join(absDestDir, "f.txt"), []byte("fetched"), 0644)
	})
	if err != nil {
		t.Fatalf("ExportInto: %v", err)
	}
	if gotDir != filepath.Join(tr.Dir, "branches", "b1") {
		t.Fatalf("got dest %q", gotDir)
	}
	got, err := tr.ReadFile("branches/b1/f.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "fetched" {
		t.Fatalf("got %q want %q", got, "fetched")
	}
}

func TestExportIntoPropagatesFetchError(t *testing.T) {
	tr := newTestTree(t)
	wantErr := os.ErrPermission
	err := tr.ExportInto("x", func(absDestDir string) error { return wantErr })
	if err == nil {
		t.Fatalf("expected error from fetch to propagate")
	}
}

func TestWalkVisitsRegularFilesWithRelativeSlashPaths(t *testing.T) {
	tr := newTestTree(t)
	tr.WriteFile("a/b.txt", []byte("b"), false, false)
	tr.WriteFile("a/c.sh", []byte("#!/bin/sh\n"), true, false)

	seen := map[string]bool{}
	execSeen := map[string]bool{}
	err := tr.Walk(func(relPath string, executable, symlink bool) error {
		seen[relPath] = true
		execSeen[relPath] = executable
		if symlink {
			t.Fatalf("unexpected symlink reported for %s", relPath)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if !seen["a/b.txt"] || !seen["a/c.sh"] {
		t.Fatalf("expected both files visited, got %v", seen)
	}
	if execSeen["a/b.txt"] {
		t.Fatalf("a/b.txt should not be marked executable")
	}
	if !execSeen["a/c.sh"] {
		t.Fatalf("a/c.sh should be marked executable")
	}
}
