// Package hashtree implements the in-memory Merkle tree that mirrors
// the Working Tree: every directory caches its own content-addressed
// identifier and only recomputes it when something beneath it
// changed. The shape generalizes the teacher's node.Node path tree —
// recursive children keyed by name, no parent back-pointers — but
// each node now carries either a blob id and permission bits (a file)
// or a set of child entries plus a dirty bit (a directory).
package hashtree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/svnarchive/loader/objecthash"
)

// Permission bits used as TreeEntry.Perm values, matching the git
// loose-object tree format.
const (
	PermFile       = "100644"
	PermExecutable = "100755"
	PermSymlink    = "120000"
	PermDir        = "40000"
)

type dirNode struct {
	entries map[string]*entry
	dirty   bool
	id      objecthash.ID
}

type entry struct {
	isDir bool
	perm  string // meaningful for files only
	blob  objecthash.ID
	dir   *dirNode
}

func newDirNode() *dirNode {
	return &dirNode{entries: make(map[string]*entry), dirty: true}
}

// Tree is the root of one revision's Hash Tree.
type Tree struct {
	root *dirNode
}

// New returns an empty Hash Tree, as used at the start of a load that
// begins at revision 1.
func New() *Tree {
	return &Tree{root: newDirNode()}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// walkToParent walks parts[:len(parts)-1] from the root and returns
// the directory node that should hold parts[len(parts)-1].
//
// create controls whether missing intermediate directories are
// created (PutFile, PutDir, the destination side of Move); mark
// controls whether visited directories are marked dirty because the
// caller is about to mutate something beneath them (every mutator,
// including Remove which passes create=false but mark=true). Pure
// read-only callers (Exists, IsDir) pass both false and leave the
// tree untouched.
func (t *Tree) walkToParent(parts []string, create, mark bool) (*dirNode, error) {
	cur := t.root
	if mark {
		cur.dirty = true
	}
	for i := 0; i < len(parts)-1; i++ {
		name := parts[i]
		e, ok := cur.entries[name]
		if !ok {
			if !create {
				return nil, fmt.Errorf("hashtree: no directory %q", strings.Join(parts[:i+1], "/"))
			}
			e = &entry{isDir: true, dir: newDirNode()}
			cur.entries[name] = e
		}
		if !e.isDir {
			return nil, fmt.Errorf("hashtree: %q is a file, not a directory", strings.Join(parts[:i+1], "/"))
		}
		if mark {
			e.dir.dirty = true
		}
		cur = e.dir
	}
	return cur, nil
}

// PutFile inserts or replaces the file at path. perm must be one of
// the File/Executable/Symlink permission constants above.
func (t *Tree) PutFile(path string, blobID objecthash.ID, perm string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return fmt.Errorf("hashtree: empty path")
	}
	parent, err := t.walkToParent(parts, true, true)
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	if e, ok := parent.entries[name]; ok && e.isDir {
		return fmt.Errorf("hashtree: %q already exists as a directory", path)
	}
	parent.entries[name] = &entry{perm: perm, blob: blobID}
	return nil
}

// PutDir creates an empty directory at path if it doesn't already
// exist. Existing directories are left untouched (their entries are
// not cleared).
func (t *Tree) PutDir(path string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil // the root always exists
	}
	parent, err := t.walkToParent(parts, true, true)
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	if e, ok := parent.entries[name]; ok {
		if !e.isDir {
			return fmt.Errorf("hashtree: %q already exists as a file", path)
		}
		return nil
	}
	parent.entries[name] = &entry{isDir: true, dir: newDirNode()}
	return nil
}

// Remove deletes the file or directory subtree at path. Removing a
// path that doesn't exist is a no-op, mirroring the SVN replay
// stream's delete_entry semantics where a prior add in the same
// revision may already have produced the effect.
func (t *Tree) Remove(path string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return fmt.Errorf("hashtree: cannot remove the root")
	}
	parent, err := t.walkToParent(parts, false, true)
	if err != nil {
		return nil
	}
	delete(parent.entries, parts[len(parts)-1])
	return nil
}

// Move relocates the subtree at src to dst. Identifiers of the moved
// nodes are preserved since the nodes themselves (and their cached
// ids) are relinked rather than rebuilt.
func (t *Tree) Move(src, dst string) error {
	srcParts := splitPath(src)
	if len(srcParts) == 0 {
		return fmt.Errorf("hashtree: cannot move the root")
	}
	srcParent, err := t.walkToParent(srcParts, false, true)
	if err != nil {
		return err
	}
	name := srcParts[len(srcParts)-1]
	e, ok := srcParent.entries[name]
	if !ok {
		return fmt.Errorf("hashtree: no entry %q to move", src)
	}
	delete(srcParent.entries, name)

	dstParts := splitPath(dst)
	if len(dstParts) == 0 {
		return fmt.Errorf("hashtree: cannot move to the root")
	}
	dstParent, err := t.walkToParent(dstParts, true, true)
	if err != nil {
		return err
	}
	dstParent.entries[dstParts[len(dstParts)-1]] = e
	return nil
}

// RootID recomputes every dirty directory bottom-up and returns the
// root tree identifier.
func (t *Tree) RootID() objecthash.ID {
	return resolve(t.root, nil)
}

// TouchedDir pairs a directory recomputed by ResolveTouched with its
// serialized body, in the order it was recomputed: every directory's
// children appear before it, since resolve recurses into them first —
// exactly the post-order the archive submission step requires.
type TouchedDir struct {
	ID   objecthash.ID
	Body []byte
}

// ResolveTouched recomputes every dirty directory bottom-up like
// RootID, additionally collecting the body of each directory actually
// recomputed this call — the set of directories the current revision
// touched, which the caller must submit to the archive alongside the
// revision's blobs.
func (t *Tree) ResolveTouched() (objecthash.ID, []TouchedDir) {
	var touched []TouchedDir
	root := resolve(t.root, &touched)
	return root, touched
}

func resolve(d *dirNode, touched *[]TouchedDir) objecthash.ID {
	if !d.dirty {
		return d.id
	}
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	// Directories sort as if their name carried a trailing '/', which
	// the serialization itself never emits.
	sort.Slice(names, func(i, j int) bool {
		return sortKey(names[i], d.entries[names[i]].isDir) < sortKey(names[j], d.entries[names[j]].isDir)
	})

	entries := make([]objecthash.TreeEntry, 0, len(names))
	for _, name := range names {
		e := d.entries[name]
		if e.isDir {
			entries = append(entries, objecthash.TreeEntry{
				Perm:     PermDir,
				Name:     name,
				TargetID: resolve(e.dir, touched),
			})
		} else {
			entries = append(entries, objecthash.TreeEntry{
				Perm:     e.perm,
				Name:     name,
				TargetID: e.blob,
			})
		}
	}
	id, body := objecthash.Tree(entries)
	d.id = id
	d.dirty = false
	if touched != nil {
		*touched = append(*touched, TouchedDir{ID: id, Body: body})
	}
	return id
}

func sortKey(name string, isDir bool) string {
	if isDir {
		return name + "/"
	}
	return name
}

// FileEntry pairs a file's blob id and permission, as returned by
// Files, keyed there by the file's full slash path.
type FileEntry struct {
	Blob objecthash.ID
	Perm string
}

// Files returns every file in the tree, keyed by its full slash
// path, for callers that need a flat snapshot to diff against a prior
// one (cmd/svnfastexport's commit-file-list construction).
func (t *Tree) Files() map[string]FileEntry {
	out := make(map[string]FileEntry)
	collectFiles(t.root, "", out)
	return out
}

func collectFiles(d *dirNode, prefix string, out map[string]FileEntry) {
	for name, e := range d.entries {
		p := name
		if prefix != "" {
			p = prefix + "/" + name
		}
		if e.isDir {
			collectFiles(e.dir, p, out)
		} else {
			out[p] = FileEntry{Blob: e.blob, Perm: e.perm}
		}
	}
}

// IsDir reports whether path names a directory in the current tree.
func (t *Tree) IsDir(path string) bool {
	parts := splitPath(path)
	if len(parts) == 0 {
		return true
	}
	parent, err := t.walkToParent(parts, false, false)
	if err != nil {
		return false
	}
	e, ok := parent.entries[parts[len(parts)-1]]
	return ok && e.isDir
}

// Exists reports whether path names any entry (file or directory).
func (t *Tree) Exists(path string) bool {
	parts := splitPath(path)
	if len(parts) == 0 {
		return true
	}
	parent, err := t.walkToParent(parts, false, false)
	if err != nil {
		return false
	}
	_, ok := parent.entries[parts[len(parts)-1]]
	return ok
}
