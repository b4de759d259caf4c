// Package replaylog is an append-only, human-readable ledger of what
// the History Walker submitted for each revision: tree id, revision
// id, and object counts. It is adapted from the teacher's journal
// package (journal/journal.go) — same "struct holds an io.Writer,
// WriteHeader once then one record-writing method per event" shape —
// repurposed from Perforce's db.rev wire format (there is no Perforce
// journal to emit here) to operator-facing replay visibility and to
// give cmd/svngraph a place to read tree/revision ids from alongside
// the graph it renders.
package replaylog

import (
	"fmt"
	"io"

	"github.com/svnarchive/loader/objecthash"
)

// Entry is one revision's ledger line.
type Entry struct {
	Revnum     int64
	TreeID     objecthash.ID
	RevisionID objecthash.ID
	BlobCount  int
	DirCount   int
}

// Log is an append-only ledger writer.
type Log struct {
	w io.Writer
}

// New returns a Log that appends records to w.
func New(w io.Writer) *Log {
	return &Log{w: w}
}

// WriteHeader writes the ledger's column header line.
func (l *Log) WriteHeader(svnURL string) error {
	_, err := fmt.Fprintf(l.w, "# replay log for %s\n# revnum\ttree\trevision\tblobs\tdirs\n", svnURL)
	return err
}

// WriteRevision appends one revision's record.
func (l *Log) WriteRevision(e Entry) error {
	_, err := fmt.Fprintf(l.w, "%d\t%s\t%s\t%d\t%d\n", e.Revnum, e.TreeID, e.RevisionID, e.BlobCount, e.DirCount)
	return err
}
