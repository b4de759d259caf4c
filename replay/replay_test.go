package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/svnarchive/loader/hashtree"
	"github.com/svnarchive/loader/objecthash"
	"github.com/svnarchive/loader/workingtree"
)

// fakeSource answers copyfrom export requests from an in-memory map
// of path -> file content, mimicking an SVN session's export() RPC
// without needing a real repository.
type fakeSource struct {
	files map[string]string // "path@rev" -> content
}

func (f *fakeSource) ExportPath(path string, rev int64, destDir string) error {
	key := fullKey(path, rev)
	content, ok := f.files[key]
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(filepath.Join(destDir, filepath.Base(path)), []byte(content), 0644)
}

func fullKey(path string, rev int64) string {
	return path + "@" + itoa(rev)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func newTestEditor(t *testing.T, rev int64, src CopySource) (*Editor, *workingtree.Tree, *hashtree.Tree) {
	t.Helper()
	wt, err := workingtree.New(t.TempDir())
	if err != nil {
		t.Fatalf("workingtree.New: %v", err)
	}
	ht := hashtree.New()
	return New(rev, wt, ht, src), wt, ht
}

func TestSimpleFileAddAndClose(t *testing.T) {
	e, _, ht := newTestEditor(t, 1, &fakeSource{})
	if err := e.OpenRoot(); err != nil {
		t.Fatalf("OpenRoot: %v", err)
	}
	if err := e.AddDirectory("trunk", false, "", 0); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	if err := e.AddFile("trunk/a.txt", false, "", 0); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	// whole-file insert: op=insert(2) length=4 -> byte 0x84
	diff := []byte{'S', 'V', 'N', 0, 0, 0, 4, 1, 4, 0x84, 'd', 'a', 't', 'a'}
	if err := e.ApplyTextDelta("trunk/a.txt", diff); err != nil {
		t.Fatalf("ApplyTextDelta: %v", err)
	}
	if err := e.CloseFile("trunk/a.txt"); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if err := e.CloseEdit(); err != nil {
		t.Fatalf("CloseEdit: %v", err)
	}

	if !ht.Exists("trunk/a.txt") {
		t.Fatalf("expected trunk/a.txt to exist in the hash tree")
	}
	expected := hashtree.New()
	expected.PutFile("trunk/a.txt", objecthash.Blob([]byte("data")), hashtree.PermFile)
	if ht.RootID() != expected.RootID() {
		t.Fatalf("root id %s does not match expected blob-backed tree %s", ht.RootID(), expected.RootID())
	}
}

func TestExecutablePropertySetsPermBit(t *testing.T) {
	e, wt, _ := newTestEditor(t, 1, &fakeSource{})
	e.OpenRoot()
	e.AddFile("run.sh", false, "", 0)
	diff := []byte{'S', 'V', 'N', 0, 0, 0, 2, 1, 2, 0x82, '#', '!'}
	if err := e.ApplyTextDelta("run.sh", diff); err != nil {
		t.Fatalf("ApplyTextDelta: %v", err)
	}
	if err := e.ChangeFileProp("run.sh", propExecutable, "*"); err != nil {
		t.Fatalf("ChangeFileProp: %v", err)
	}
	if err := e.CloseFile("run.sh"); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	info, err := os.Stat(filepath.Join(wt.Dir, "run.sh"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode()&0111 == 0 {
		t.Fatalf("expected executable bit set")
	}
}

func TestSpecialPropertyWritesSymlink(t *testing.T) {
	e, wt, _ := newTestEditor(t, 1, &fakeSource{})
	e.OpenRoot()
	e.AddFile("link.txt", false, "", 0)
	content := []byte("link target.txt")
	diff := buildWholeFileDiff(content)
	if err := e.ApplyTextDelta("link.txt", diff); err != nil {
		t.Fatalf("ApplyTextDelta: %v", err)
	}
	if err := e.ChangeFileProp("link.txt", propSpecial, "*"); err != nil {
		t.Fatalf("ChangeFileProp: %v", err)
	}
	if err := e.CloseFile("link.txt"); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	target, err := os.Readlink(filepath.Join(wt.Dir, "link.txt"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "target.txt" {
		t.Fatalf("got target %q want %q", target, "target.txt")
	}
}

func TestSpecialPropertyHashesBareTargetNotSvnPayload(t *testing.T) {
	e, _, ht := newTestEditor(t, 1, &fakeSource{})
	e.OpenRoot()
	e.AddFile("link.txt", false, "", 0)
	diff := buildWholeFileDiff([]byte("link target.txt"))
	if err := e.ApplyTextDelta("link.txt", diff); err != nil {
		t.Fatalf("ApplyTextDelta: %v", err)
	}
	if err := e.ChangeFileProp("link.txt", propSpecial, "*"); err != nil {
		t.Fatalf("ChangeFileProp: %v", err)
	}
	if err := e.CloseFile("link.txt"); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	want := objecthash.Blob([]byte("target.txt"))
	if !ht.Exists("link.txt") {
		t.Fatalf("expected link.txt to exist in the hash tree")
	}
	expected := hashtree.New()
	expected.PutFile("link.txt", want, hashtree.PermSymlink)
	if ht.RootID() != expected.RootID() {
		t.Fatalf("symlink blob must hash the bare target, not the \"link \" payload")
	}
}

func TestEOLStylePropertyNormalizesBeforeHashing(t *testing.T) {
	e, _, _ := newTestEditor(t, 1, &fakeSource{})
	e.OpenRoot()
	e.AddFile("a.txt", false, "", 0)
	diff := buildWholeFileDiff([]byte("A\r\nB\r\n"))
	if err := e.ApplyTextDelta("a.txt", diff); err != nil {
		t.Fatalf("ApplyTextDelta: %v", err)
	}
	if err := e.ChangeFileProp("a.txt", propEOLStyle, "native"); err != nil {
		t.Fatalf("ChangeFileProp: %v", err)
	}
	if err := e.CloseFile("a.txt"); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	got, err := e.wt.ReadFile("a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "A\nB\n" {
		t.Fatalf("got %q want normalized LF content", got)
	}
}

func TestDeleteEntryRemovesFromBothTrees(t *testing.T) {
	e, _, _ := newTestEditor(t, 1, &fakeSource{})
	e.OpenRoot()
	e.AddFile("a.txt", false, "", 0)
	diff := buildWholeFileDiff([]byte("x"))
	e.ApplyTextDelta("a.txt", diff)
	e.CloseFile("a.txt")

	if err := e.DeleteEntry("a.txt"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if e.ht.Exists("a.txt") {
		t.Fatalf("expected a.txt removed from hash tree")
	}
	if _, err := e.wt.ReadFile("a.txt"); err == nil {
		t.Fatalf("expected a.txt removed from working tree")
	}
}

func TestAddDirectoryWithCopyFromReingestsSubtree(t *testing.T) {
	src := &fakeSource{files: map[string]string{"trunk@10": "copied"}}
	e, _, _ := newTestEditor(t, 20, src)
	e.OpenRoot()
	if err := e.AddDirectory("branches/b1", true, "trunk", 10); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	if !e.ht.Exists("branches/b1/trunk") {
		t.Fatalf("expected copied file to be reingested under branches/b1")
	}
}

func TestAddFileWithCopyFromSeedsContentWithoutCreatingADirectory(t *testing.T) {
	src := &fakeSource{files: map[string]string{"trunk/a.txt@10": "copied content"}}
	e, wt, _ := newTestEditor(t, 20, src)
	e.OpenRoot()
	if err := e.AddFile("branches/b1/a.txt", true, "trunk/a.txt", 10); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := e.CloseFile("branches/b1/a.txt"); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	got, err := wt.ReadFile("branches/b1/a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "copied content" {
		t.Fatalf("got %q want %q", got, "copied content")
	}
}

func TestReingestSubtreeHashesSymlinkTargetNotFollowedContent(t *testing.T) {
	e, wt, ht := newTestEditor(t, 1, &fakeSource{})
	e.OpenRoot()
	if err := wt.AddDir("trunk"); err != nil {
		t.Fatalf("AddDir: %v", err)
	}
	if err := wt.WriteFile("trunk/link.txt", []byte("link missing-target.txt"), false, true); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := e.reingestSubtree("trunk"); err != nil {
		t.Fatalf("reingestSubtree: %v", err)
	}
	want := objecthash.Blob([]byte("missing-target.txt"))
	expected := hashtree.New()
	expected.PutDir("trunk")
	expected.PutFile("trunk/link.txt", want, hashtree.PermSymlink)
	if ht.RootID() != expected.RootID() {
		t.Fatalf("reingested symlink must hash its bare target, not the dangling link's followed content")
	}
}

func TestCloseEditFailsWithUnclosedFile(t *testing.T) {
	e, _, _ := newTestEditor(t, 1, &fakeSource{})
	e.OpenRoot()
	e.AddFile("a.txt", false, "", 0)
	if err := e.CloseEdit(); err == nil {
		t.Fatalf("expected error for an unclosed file baton")
	}
}

func TestCloseEditFailsWithoutOpenRoot(t *testing.T) {
	e, _, _ := newTestEditor(t, 1, &fakeSource{})
	if err := e.CloseEdit(); err == nil {
		t.Fatalf("expected error when close_edit precedes open_root")
	}
}

func buildWholeFileDiff(content []byte) []byte {
	b := []byte{'S', 'V', 'N', 0}
	b = append(b, 0, 0, byte(len(content)))
	instructions := []byte{byte(2<<6 | len(content))}
	b = append(b, byte(len(instructions)), byte(len(content)))
	b = append(b, instructions...)
	b = append(b, content...)
	return b
}
