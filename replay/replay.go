// Package replay implements the Replay Editor: it consumes the
// sequence of SVN editor callbacks for one revision and mutates a
// Working Tree and a Hash Tree in lockstep, exactly as spec §4.D
// describes.
//
// Rather than reproduce SVN's own late-bound baton/handler dispatch
// (spec §9: "do not attempt to reproduce the source's reliance on
// late-bound method lookup"), callbacks are plain methods on Editor,
// one per operation, keyed by path — an SVN session driver calls them
// directly instead of threading opaque batons through a handler
// table.
package replay

import (
	"fmt"
	"strings"

	"github.com/svnarchive/loader/eol"
	"github.com/svnarchive/loader/hashtree"
	"github.com/svnarchive/loader/loaderror"
	"github.com/svnarchive/loader/objecthash"
	"github.com/svnarchive/loader/svndelta"
	"github.com/svnarchive/loader/workingtree"
)

// CopySource fetches the content of path as of rev into destDir,
// bypassing the Working Tree's own (possibly since-mutated) state.
// It is the remote counterpart to a local copyfrom: the SVN session
// is the only collaborator that can answer "what did this path look
// like at an arbitrary earlier revision".
type CopySource interface {
	ExportPath(path string, rev int64, destDir string) error
}

// fileBaton accumulates everything known about one file add/open
// until close_file resolves it into a blob.
type fileBaton struct {
	path        string
	props       map[string]string
	content     []byte
	hasContent  bool // apply_textdelta ran (vs. a pure prop-only change)
	copyFromRev int64
	hadCopyFrom bool
}

// Editor drives a Working Tree and a Hash Tree through one revision's
// worth of editor callbacks.
type Editor struct {
	rev int64
	wt  *workingtree.Tree
	ht  *hashtree.Tree
	src CopySource

	// EOLOverride, when non-nil, forces an EOL style for paths it
	// matches regardless of svn:eol-style — wired to
	// config.Config.ResolveEOLOverride by the caller.
	EOLOverride func(path string) (eol.Style, bool)

	dirProps map[string]map[string]string
	files    map[string]*fileBaton
	rootOpen bool
	blobs    map[objecthash.ID][]byte
}

// New returns an Editor that will replay revision rev against wt/ht,
// using src to fetch the content of every copyfrom source.
func New(rev int64, wt *workingtree.Tree, ht *hashtree.Tree, src CopySource) *Editor {
	return &Editor{
		rev:      rev,
		wt:       wt,
		ht:       ht,
		src:      src,
		dirProps: make(map[string]map[string]string),
		files:    make(map[string]*fileBaton),
		blobs:    make(map[objecthash.ID][]byte),
	}
}

// OpenRoot begins the revision.
func (e *Editor) OpenRoot() error {
	e.rootOpen = true
	return nil
}

// OpenDirectory records that an existing directory is being visited;
// its on-disk/HashTree state is already correct, so this is a no-op
// beyond bookkeeping.
func (e *Editor) OpenDirectory(path string) error {
	return nil
}

// AddDirectory creates a new directory at path, optionally seeded
// from copyFromPath@copyFromRev (hasCopyFrom distinguishes a copy
// from "svn mkdir", since revision 0 is a legal copy source).
func (e *Editor) AddDirectory(path string, hasCopyFrom bool, copyFromPath string, copyFromRev int64) error {
	if !hasCopyFrom {
		if err := e.wt.AddDir(path); err != nil {
			return loaderror.New(loaderror.WorkingTreeIoError, e.rev, err)
		}
		if err := e.ht.PutDir(path); err != nil {
			return loaderror.New(loaderror.UnsupportedRevisionShape, e.rev, err)
		}
		return nil
	}

	if err := e.wt.ExportInto(path, func(destDir string) error {
		return e.src.ExportPath(copyFromPath, copyFromRev, destDir)
	}); err != nil {
		return loaderror.New(loaderror.SvnProtocolError, e.rev, err)
	}
	return e.reingestSubtree(path)
}

// reingestSubtree walks path in the Working Tree (already populated
// on disk) and registers every file it finds with the Hash Tree,
// backing add_directory(copyfrom)'s "bulk-copy then re-ingest" step.
func (e *Editor) reingestSubtree(path string) error {
	if err := e.ht.PutDir(path); err != nil {
		return loaderror.New(loaderror.UnsupportedRevisionShape, e.rev, err)
	}
	prefix := path + "/"
	err := e.wt.Walk(func(relPath string, executable, symlink bool) error {
		if relPath != path && !strings.HasPrefix(relPath, prefix) {
			return nil
		}
		var data []byte
		if symlink {
			target, err := e.wt.ReadLink(relPath)
			if err != nil {
				return err
			}
			data = []byte(target)
		} else {
			d, err := e.wt.ReadFile(relPath)
			if err != nil {
				return err
			}
			data = d
		}
		blobID := objecthash.Blob(data)
		e.blobs[blobID] = data
		perm := hashtree.PermFile
		switch {
		case symlink:
			perm = hashtree.PermSymlink
		case executable:
			perm = hashtree.PermExecutable
		}
		return e.ht.PutFile(relPath, blobID, perm)
	})
	if err != nil {
		return loaderror.New(loaderror.WorkingTreeIoError, e.rev, err)
	}
	return nil
}

// ChangeDirProp records a directory property (e.g. svn:externals) in
// a side map keyed by path; it is never consulted for EOL decisions.
func (e *Editor) ChangeDirProp(path, name, value string) error {
	props, ok := e.dirProps[path]
	if !ok {
		props = make(map[string]string)
		e.dirProps[path] = props
	}
	props[name] = value
	return nil
}

// DirProps returns the directory properties recorded for path, for
// callers (e.g. the archive submission path) that want to surface
// svn:externals or similar metadata. Returns nil if none were set.
func (e *Editor) DirProps(path string) map[string]string {
	return e.dirProps[path]
}

// DeleteEntry removes path (file or directory subtree) from both
// trees.
func (e *Editor) DeleteEntry(path string) error {
	if err := e.wt.Remove(path); err != nil {
		return loaderror.New(loaderror.WorkingTreeIoError, e.rev, err)
	}
	if err := e.ht.Remove(path); err != nil {
		return loaderror.New(loaderror.UnsupportedRevisionShape, e.rev, err)
	}
	return nil
}

func (e *Editor) openFileBaton(path string) *fileBaton {
	b, ok := e.files[path]
	if !ok {
		b = &fileBaton{path: path, props: make(map[string]string)}
		e.files[path] = b
	}
	return b
}

// AddFile pushes a new file baton, optionally with a copyfrom source
// whose content seeds the delta base.
func (e *Editor) AddFile(path string, hasCopyFrom bool, copyFromPath string, copyFromRev int64) error {
	b := e.openFileBaton(path)
	if hasCopyFrom {
		b.hadCopyFrom = true
		b.copyFromRev = copyFromRev
		data, err := e.wt.ExportFile(func(stagingDir string) error {
			return e.src.ExportPath(copyFromPath, copyFromRev, stagingDir)
		}, copyFromPath)
		if err != nil {
			return loaderror.New(loaderror.SvnProtocolError, e.rev, err)
		}
		b.content = data
		b.hasContent = true
	}
	return nil
}

// OpenFile pushes a baton for an existing file that is about to be
// modified.
func (e *Editor) OpenFile(path string) error {
	e.openFileBaton(path)
	return nil
}

// ApplyTextDelta applies an svndiff1 stream against the file's prior
// content (its current Working Tree bytes, or whatever copyfrom
// seeded), producing the pending new content held in the baton until
// close_file.
func (e *Editor) ApplyTextDelta(path string, diff []byte) error {
	b := e.openFileBaton(path)
	source := b.content
	if !b.hasContent {
		if existing, err := e.wt.ReadFile(path); err == nil {
			source = existing
		}
	}
	newContent, err := svndelta.Apply(source, diff)
	if err != nil {
		return loaderror.New(loaderror.SvndiffApplyError, e.rev, err)
	}
	b.content = newContent
	b.hasContent = true
	return nil
}

// ChangeFileProp records a file property in the baton; it is the
// authoritative source for EOL handling at close_file.
func (e *Editor) ChangeFileProp(path, name, value string) error {
	b := e.openFileBaton(path)
	b.props[name] = value
	return nil
}

const (
	propEOLStyle   = "svn:eol-style"
	propExecutable = "svn:executable"
	propSpecial    = "svn:special"
)

// CloseFile resolves the accumulated properties and pending content
// into a normalized blob, writes it into the Working Tree, and
// registers it with the Hash Tree.
func (e *Editor) CloseFile(path string) error {
	b, ok := e.files[path]
	if !ok {
		return loaderror.New(loaderror.UnsupportedRevisionShape, e.rev, fmt.Errorf("close_file with no open baton for %q", path))
	}
	delete(e.files, path)

	content := b.content
	_, executable := b.props[propExecutable]
	_, special := b.props[propSpecial]

	if !special {
		style := eol.ParseStyle(b.props[propEOLStyle])
		if e.EOLOverride != nil {
			if forced, ok := e.EOLOverride(path); ok {
				style = forced
			}
		}
		content = eol.Normalize(content, style)
	}

	if err := e.wt.WriteFile(path, content, executable, special); err != nil {
		return loaderror.New(loaderror.WorkingTreeIoError, e.rev, err)
	}

	blobContent := content
	if special {
		target, err := workingtree.SymlinkTarget(content)
		if err != nil {
			return loaderror.New(loaderror.UnsupportedRevisionShape, e.rev, err)
		}
		blobContent = []byte(target)
	}

	blobID := objecthash.Blob(blobContent)
	e.blobs[blobID] = blobContent
	perm := hashtree.PermFile
	switch {
	case special:
		perm = hashtree.PermSymlink
	case executable:
		perm = hashtree.PermExecutable
	}
	if err := e.ht.PutFile(path, blobID, perm); err != nil {
		return loaderror.New(loaderror.UnsupportedRevisionShape, e.rev, err)
	}
	return nil
}

// Blobs returns every blob produced while replaying this revision,
// keyed by identifier, for the caller to hand to the Revision Builder
// alongside the touched directories from the Hash Tree.
func (e *Editor) Blobs() map[objecthash.ID][]byte {
	return e.blobs
}

// CloseDirectory is a no-op: the Hash Tree propagates dirty bits
// lazily and resolves them on demand at RootID.
func (e *Editor) CloseDirectory(path string) error {
	return nil
}

// CloseEdit finalizes the revision; any file batons still open at
// this point indicate a malformed callback stream.
func (e *Editor) CloseEdit() error {
	if !e.rootOpen {
		return loaderror.New(loaderror.UnsupportedRevisionShape, e.rev, fmt.Errorf("close_edit without a matching open_root"))
	}
	if len(e.files) > 0 {
		paths := make([]string, 0, len(e.files))
		for p := range e.files {
			paths = append(paths, p)
		}
		return loaderror.New(loaderror.UnsupportedRevisionShape, e.rev, fmt.Errorf("close_edit with unclosed files: %v", paths))
	}
	return nil
}

// RootID returns the Hash Tree's current root identifier, recomputing
// any dirty directories.
func (e *Editor) RootID() objecthash.ID {
	return e.ht.RootID()
}
