// Package revision implements the Revision Builder: it assembles the
// commit-shaped manifest for one SVN revision, computes its
// identifier, and drives the ordered submission of blobs, directories,
// and the revision itself to the archive.
//
// Concurrency in SaveBlob/CreateArchiveFile (teacher's main.go) hands
// independent per-object work to a bounded pond.WorkerPool; Submit
// reuses the same shape to run a revision's blob and directory
// existence queries concurrently, on a pool of runtime.NumCPU()
// workers with pond.MinWorkers(2). Hashing and serialization happen
// before Submit is called, not on this pool.
package revision

import (
	"runtime"
	"strconv"
	"sync"

	"github.com/alitto/pond"
	"github.com/pkg/errors"
	"github.com/svnarchive/loader/objecthash"
)

// LogEntry is the subset of an SVN log record the Revision Builder
// needs.
type LogEntry struct {
	Revnum  int64
	Author  string
	Date    int64 // seconds since epoch
	Message string
}

// Manifest is everything needed to build one revision object.
type Manifest struct {
	TreeID   objecthash.ID
	ParentID objecthash.ID // empty for the first revision
	Log      LogEntry
	RepoUUID string
}

// Build computes the revision's identifier and serialized body,
// following spec §3/§4.E exactly: author/committer are the SVN author
// verbatim with no synthetic email, extra headers are
// svn_repo_uuid then svn_revision in that order, and the message is
// emitted with no trimming.
func Build(m Manifest) (objecthash.ID, []byte) {
	return objecthash.Commit(objecthash.CommitManifest{
		TreeID:         m.TreeID,
		ParentID:       m.ParentID,
		Author:         m.Log.Author,
		AuthorEpoch:    m.Log.Date,
		Committer:      m.Log.Author,
		CommitterEpoch: m.Log.Date,
		ExtraHeaders: []objecthash.CommitHeader{
			{Key: "svn_repo_uuid", Value: m.RepoUUID},
			{Key: "svn_revision", Value: strconv.FormatInt(m.Log.Revnum, 10)},
		},
		Message: m.Log.Message,
	})
}

// Blob pairs a content identifier with its bytes for submission.
type Blob struct {
	ID      objecthash.ID
	Content []byte
}

// Dir pairs a directory identifier with its serialized entry list.
type Dir struct {
	ID   objecthash.ID
	Body []byte
}

// Archive is the subset of the archive client the submission step
// needs (spec §6): batch existence checks plus the add calls, in the
// order this package must call them.
type Archive interface {
	ContentMissing(ids []objecthash.ID) ([]objecthash.ID, error)
	ContentAdd(blobs []Blob) error
	DirectoryMissing(ids []objecthash.ID) ([]objecthash.ID, error)
	DirectoryAdd(dirs []Dir) error
	RevisionMissing(ids []objecthash.ID) ([]objecthash.ID, error)
	RevisionAdd(id objecthash.ID, body []byte) error
}

// Submission is everything one revision needs to push to the archive:
// every blob and directory produced while replaying it, assembled by
// the caller (the Hash Tree doesn't track insertion order, so the
// Replay Editor or History Walker collects these as it goes), plus
// the finished revision manifest.
type Submission struct {
	Blobs        []Blob
	Dirs         []Dir // already in post-order; see Submit
	RevisionID   objecthash.ID
	RevisionBody []byte
}

// Submit pushes a revision's objects to the archive in the order
// spec §4.E/§5 requires: missing blobs, then missing directories
// (post-order, already guaranteed by the caller), then the revision
// itself, last. Existence filtering runs concurrently across the two
// object kinds since they're independent batches, using a bounded
// worker pool sized like the teacher's own blob-saving pool.
func Submit(archive Archive, s Submission) error {
	pondSize := runtime.NumCPU()
	pool := pond.New(pondSize, 0, pond.MinWorkers(2))
	defer pool.StopAndWait()

	var missingBlobIDs, missingDirIDs []objecthash.ID
	var blobErr, dirErr error
	var wg sync.WaitGroup

	wg.Add(2)
	pool.Submit(func() {
		defer wg.Done()
		ids := make([]objecthash.ID, len(s.Blobs))
		for i, b := range s.Blobs {
			ids[i] = b.ID
		}
		missingBlobIDs, blobErr = archive.ContentMissing(ids)
	})
	pool.Submit(func() {
		defer wg.Done()
		ids := make([]objecthash.ID, len(s.Dirs))
		for i, d := range s.Dirs {
			ids[i] = d.ID
		}
		missingDirIDs, dirErr = archive.DirectoryMissing(ids)
	})
	wg.Wait()
	if blobErr != nil {
		return errors.Wrap(blobErr, "revision: checking blob existence")
	}
	if dirErr != nil {
		return errors.Wrap(dirErr, "revision: checking directory existence")
	}

	if blobs := selectBlobs(s.Blobs, missingBlobIDs); len(blobs) > 0 {
		if err := archive.ContentAdd(blobs); err != nil {
			return errors.Wrap(err, "revision: adding blobs")
		}
	}
	if dirs := selectDirs(s.Dirs, missingDirIDs); len(dirs) > 0 {
		if err := archive.DirectoryAdd(dirs); err != nil {
			return errors.Wrap(err, "revision: adding directories")
		}
	}

	missingRev, err := archive.RevisionMissing([]objecthash.ID{s.RevisionID})
	if err != nil {
		return errors.Wrap(err, "revision: checking revision existence")
	}
	if len(missingRev) > 0 {
		if err := archive.RevisionAdd(s.RevisionID, s.RevisionBody); err != nil {
			return errors.Wrap(err, "revision: adding revision")
		}
	}
	return nil
}

func selectBlobs(all []Blob, missing []objecthash.ID) []Blob {
	want := idSet(missing)
	out := make([]Blob, 0, len(missing))
	for _, b := range all {
		if want[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

func selectDirs(all []Dir, missing []objecthash.ID) []Dir {
	want := idSet(missing)
	out := make([]Dir, 0, len(missing))
	for _, d := range all {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

func idSet(ids []objecthash.ID) map[objecthash.ID]bool {
	m := make(map[objecthash.ID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
