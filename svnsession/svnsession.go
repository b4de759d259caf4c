// Package svnsession defines the SVN session contract the Replay
// Editor and History Walker consume (spec §6) and provides an
// in-memory Fake that drives Editor callbacks from a scripted
// sequence of operations, since the real SVN remote-access library is
// explicitly out of this system's scope (spec §1).
package svnsession

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/svnarchive/loader/replay"
)

// LogEntry mirrors spec §6's get_log record shape.
type LogEntry struct {
	Revnum        int64
	Author        string
	DateEpochUsec int64
	Message       string
	ChangedPaths  []string
}

// Editor is the subset of replay.Editor's callback surface a session
// driver invokes while replaying one revision.
type Editor interface {
	OpenRoot() error
	AddDirectory(path string, hasCopyFrom bool, copyFromPath string, copyFromRev int64) error
	OpenDirectory(path string) error
	ChangeDirProp(path, name, value string) error
	DeleteEntry(path string) error
	AddFile(path string, hasCopyFrom bool, copyFromPath string, copyFromRev int64) error
	OpenFile(path string) error
	ApplyTextDelta(path string, diff []byte) error
	ChangeFileProp(path, name, value string) error
	CloseFile(path string) error
	CloseDirectory(path string) error
	CloseEdit() error
}

// Session is the full SVN collaborator surface (spec §6).
type Session interface {
	replay.CopySource
	GetUUID() (string, error)
	GetHeadRevision() (int64, error)
	GetLog(from, to int64) ([]LogEntry, error)
	DoReplay(rev int64, editor Editor) error
}

// Op is one scripted editor call, used to build a Fake's replay
// script for a revision without hand-writing a callback dispatcher in
// every test.
type Op struct {
	Kind         OpKind
	Path         string
	Name, Value  string // ChangeDirProp/ChangeFileProp
	Diff         []byte // ApplyTextDelta
	HasCopyFrom  bool
	CopyFromPath string
	CopyFromRev  int64
}

// OpKind identifies which Editor method an Op invokes.
type OpKind int

const (
	OpOpenRoot OpKind = iota
	OpAddDirectory
	OpOpenDirectory
	OpChangeDirProp
	OpDeleteEntry
	OpAddFile
	OpOpenFile
	OpApplyTextDelta
	OpChangeFileProp
	OpCloseFile
	OpCloseDirectory
	OpCloseEdit
)

// Dial would return a Session backed by a real SVN remote-access
// library, which is explicitly outside this system's scope (spec.md
// §1) — no such library appears anywhere in this module's dependency
// pack. Production deployments link a Session implementation of their
// own and never call this function; it exists so main's wiring compiles
// and fails loudly rather than silently running against nothing.
func Dial(url string) (Session, error) {
	return nil, fmt.Errorf("svnsession: no SVN remote-access backend configured for %s; link a Session implementation", url)
}

// Fake is an in-memory Session driven by a fixed revision->script map
// and a fixed set of exportable paths, standing in for a real SVN
// repository in tests.
type Fake struct {
	UUID      string
	HeadRev   int64
	Logs      map[int64]LogEntry
	Scripts   map[int64][]Op
	Exports   map[string]map[string][]byte // "path@rev" -> relative file -> content
}

// NewFake returns an empty Fake session.
func NewFake(uuid string, head int64) *Fake {
	return &Fake{
		UUID:    uuid,
		HeadRev: head,
		Logs:    make(map[int64]LogEntry),
		Scripts: make(map[int64][]Op),
		Exports: make(map[string]map[string][]byte),
	}
}

func (f *Fake) GetUUID() (string, error) { return f.UUID, nil }

func (f *Fake) GetHeadRevision() (int64, error) { return f.HeadRev, nil }

func (f *Fake) GetLog(from, to int64) ([]LogEntry, error) {
	var out []LogEntry
	for r := from; r <= to; r++ {
		if entry, ok := f.Logs[r]; ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *Fake) DoReplay(rev int64, editor Editor) error {
	for _, op := range f.Scripts[rev] {
		var err error
		switch op.Kind {
		case OpOpenRoot:
			err = editor.OpenRoot()
		case OpAddDirectory:
			err = editor.AddDirectory(op.Path, op.HasCopyFrom, op.CopyFromPath, op.CopyFromRev)
		case OpOpenDirectory:
			err = editor.OpenDirectory(op.Path)
		case OpChangeDirProp:
			err = editor.ChangeDirProp(op.Path, op.Name, op.Value)
		case OpDeleteEntry:
			err = editor.DeleteEntry(op.Path)
		case OpAddFile:
			err = editor.AddFile(op.Path, op.HasCopyFrom, op.CopyFromPath, op.CopyFromRev)
		case OpOpenFile:
			err = editor.OpenFile(op.Path)
		case OpApplyTextDelta:
			err = editor.ApplyTextDelta(op.Path, op.Diff)
		case OpChangeFileProp:
			err = editor.ChangeFileProp(op.Path, op.Name, op.Value)
		case OpCloseFile:
			err = editor.CloseFile(op.Path)
		case OpCloseDirectory:
			err = editor.CloseDirectory(op.Path)
		case OpCloseEdit:
			err = editor.CloseEdit()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ExportPath implements replay.CopySource by copying pre-registered
// file content into destDir.
func (f *Fake) ExportPath(path string, rev int64, destDir string) error {
	key := pathRevKey(path, rev)
	files, ok := f.Exports[key]
	if !ok {
		return fmt.Errorf("svnsession: no fake export registered for %s@%d", path, rev)
	}
	for relPath, content := range files {
		full := filepath.Join(destDir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(full, content, 0644); err != nil {
			return err
		}
	}
	return nil
}

func pathRevKey(path string, rev int64) string {
	return path + "@" + strconv.FormatInt(rev, 10)
}
