// Package workingtree manages the on-disk scratch directory that
// mirrors the SVN working copy for the revision currently being
// built: no .svn metadata, no keyword expansion, byte-identical to
// what `svn export --ignore-keywords` would produce.
//
// File placement follows the teacher's writeBlob/getBlobIDPath
// pattern of os.MkdirAll followed by os.Create, adapted from a
// content-addressed blob store layout (hashed-prefix directories) to
// a working copy that mirrors SVN paths directly.
package workingtree

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Tree is a scratch directory rooted at Dir.
type Tree struct {
	Dir string
}

// New creates (if necessary) and returns a working tree rooted at dir.
func New(dir string) (*Tree, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "workingtree: creating root %s", dir)
	}
	return &Tree{Dir: dir}, nil
}

func (t *Tree) abs(path string) string {
	return filepath.Join(t.Dir, filepath.FromSlash(path))
}

// AddDir creates an empty directory at path.
func (t *Tree) AddDir(path string) error {
	full := t.abs(path)
	if err := os.MkdirAll(full, 0755); err != nil {
		return errors.Wrapf(err, "workingtree: add_dir %s", path)
	}
	return nil
}

// Remove deletes the file or directory subtree at path.
func (t *Tree) Remove(path string) error {
	full := t.abs(path)
	if err := os.RemoveAll(full); err != nil {
		return errors.Wrapf(err, "workingtree: remove %s", path)
	}
	return nil
}

// WriteFile writes bytes (already EOL-normalized by the caller) to
// path, creating parent directories as needed, and sets the POSIX
// mode appropriate for executable flag and the symlink flag. A
// symlink write expects data to be the raw "link <target>" SVN
// special-file content; the target is extracted and a real symlink
// is created on disk so the working tree stays faithful to what an
// actual SVN checkout would contain.
func (t *Tree) WriteFile(path string, data []byte, executable, symlink bool) error {
	full := t.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.Wrapf(err, "workingtree: creating parent dir for %s", path)
	}

	if symlink {
		target, err := SymlinkTarget(data)
		if err != nil {
			return errors.Wrapf(err, "workingtree: %s", path)
		}
		_ = os.Remove(full) // os.Symlink fails if full already exists
		if err := os.Symlink(target, full); err != nil {
			return errors.Wrapf(err, "workingtree: symlink %s -> %s", path, target)
		}
		return nil
	}

	mode := os.FileMode(0644)
	if executable {
		mode = 0755
	}
	if err := os.WriteFile(full, data, mode); err != nil {
		return errors.Wrapf(err, "workingtree: write_file %s", path)
	}
	return nil
}

const symlinkPrefix = "link "

// SymlinkTarget extracts the target path from raw svn:special file
// content ("link <target>"), verbatim — no whitespace trimming, since
// SVN itself never pads this field. Exported so callers that need the
// bare target (rather than the on-disk symlink WriteFile creates) can
// derive it the same way, e.g. to hash the blob per spec (the blob
// content for a symlink is the target path, not the "link " wrapper).
func SymlinkTarget(data []byte) (string, error) {
	s := string(data)
	if len(s) < len(symlinkPrefix) || s[:len(symlinkPrefix)] != symlinkPrefix {
		return "", errors.Errorf("svn:special content missing %q prefix", symlinkPrefix)
	}
	return s[len(symlinkPrefix):], nil
}

// Export bulk-repopulates dst (relative to t.Dir) by recursively
// copying everything currently under src (also relative to t.Dir).
// It is the local counterpart of ExportInto; the Replay Editor does
// not call it (add_directory(copyfrom) goes through ExportInto, and a
// resumed load replays history instead of copying on disk).
func (t *Tree) Export(src, dst string) error {
	absSrc := t.abs(src)
	absDst := t.abs(dst)
	info, err := os.Lstat(absSrc)
	if err != nil {
		return errors.Wrapf(err, "workingtree: export source %s", src)
	}
	return copyRecursive(absSrc, absDst, info)
}

func copyRecursive(src, dst string, info os.FileInfo) error {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return errors.Wrapf(err, "reading symlink %s", src)
		}
		return os.Symlink(target, dst)
	}
	if info.IsDir() {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return errors.Wrapf(err, "creating %s", dst)
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return errors.Wrapf(err, "reading dir %s", src)
		}
		for _, e := range entries {
			childInfo, err := e.Info()
			if err != nil {
				return err
			}
			if err := copyRecursive(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name()), childInfo); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "reading %s", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	mode := os.FileMode(0644)
	if info.Mode()&0111 != 0 {
		mode = 0755
	}
	return os.WriteFile(dst, data, mode)
}

// ExportFile fetches the content of a single-file copyfrom source: it
// stages fetch's output in a scratch directory (removed before
// returning) and reads back the file named for sourceName's base name
// — the file-level counterpart to ExportInto, used for
// add_file(copyfrom) where the copy source is one file rather than a
// directory subtree, so nothing is ever written at the destination
// path itself before the caller decides what to do with the content.
func (t *Tree) ExportFile(fetch func(stagingDir string) error, sourceName string) ([]byte, error) {
	staging, err := os.MkdirTemp(t.Dir, "copyfrom-")
	if err != nil {
		return nil, errors.Wrap(err, "workingtree: creating copyfrom staging dir")
	}
	defer os.RemoveAll(staging)
	if err := fetch(staging); err != nil {
		return nil, errors.Wrap(err, "workingtree: exporting copyfrom source")
	}
	data, err := os.ReadFile(filepath.Join(staging, filepath.Base(sourceName)))
	if err != nil {
		return nil, errors.Wrap(err, "workingtree: reading exported copyfrom file")
	}
	return data, nil
}

// ExportInto creates dest (relative to t.Dir) and hands its absolute
// path to fetch, which is expected to populate it from the SVN
// session — the remote counterpart of Export, used for every
// add_directory(copyfrom), whether or not the copy source is still
// unmodified in the current working tree.
func (t *Tree) ExportInto(dest string, fetch func(absDestDir string) error) error {
	full := t.abs(dest)
	if err := os.MkdirAll(full, 0755); err != nil {
		return errors.Wrapf(err, "workingtree: preparing export destination %s", dest)
	}
	if err := fetch(full); err != nil {
		return errors.Wrapf(err, "workingtree: export into %s", dest)
	}
	return nil
}

// ReadFile returns the current on-disk content at path, used to apply
// a text delta against the previous revision's bytes.
func (t *Tree) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(t.abs(path))
	if err != nil {
		return nil, errors.Wrapf(err, "workingtree: read %s", path)
	}
	return data, nil
}

// ReadLink returns the raw target of the symlink at path, as stored on
// disk — unlike ReadFile, it does not follow the link, so it works
// even when the target itself isn't present in this working tree.
func (t *Tree) ReadLink(path string) (string, error) {
	target, err := os.Readlink(t.abs(path))
	if err != nil {
		return "", errors.Wrapf(err, "workingtree: readlink %s", path)
	}
	return target, nil
}

// Walk invokes fn for every non-directory entry (regular files and
// symlinks, which are not followed) currently under the working tree,
// with paths relative to the tree root in slash form. Used by the
// Replay Editor to re-ingest a copied subtree into the Hash Tree.
func (t *Tree) Walk(fn func(relPath string, executable, symlink bool) error) error {
	return filepath.Walk(t.Dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(t.Dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		symlink := info.Mode()&os.ModeSymlink != 0
		executable := !symlink && info.Mode()&0111 != 0
		return fn(rel, executable, symlink)
	})
}
