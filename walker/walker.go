// Package walker implements the History Walker: it orchestrates
// per-revision replay across one SVN session, resumes from a prior
// visit (detecting whether the source history was altered in the
// meantime), and emits the final snapshot, per spec §4.F.
package walker

import (
	"fmt"

	"github.com/emicklei/dot"
	"github.com/sirupsen/logrus"
	"github.com/svnarchive/loader/archive"
	"github.com/svnarchive/loader/config"
	"github.com/svnarchive/loader/hashtree"
	"github.com/svnarchive/loader/loaderror"
	"github.com/svnarchive/loader/objecthash"
	"github.com/svnarchive/loader/replay"
	"github.com/svnarchive/loader/replaylog"
	"github.com/svnarchive/loader/revision"
	"github.com/svnarchive/loader/svnsession"
	"github.com/svnarchive/loader/workingtree"
)

// VisitState is the resume checkpoint persisted by the external
// bookkeeping layer between loads of the same origin (spec §3); the
// walker only reads it at start and produces an updated one at end.
type VisitState struct {
	LastSVNRevision int64
	LastRevisionID  objecthash.ID
	LastSnapshotID  objecthash.ID
	RepoUUID        string
}

// Options configures one Walker run.
type Options struct {
	Config       *config.Config
	MaxRevisions int64 // 0 = unbounded (teacher: --max.commits)
	Ledger       *replaylog.Log
}

// Walker is the History Walker (spec §4.F).
type Walker struct {
	logger        *logrus.Logger
	session       svnsession.Session
	archiveClient archive.Client
	opts          Options

	graph      *dot.Graph
	graphNodes map[int64]dot.Node
}

// New returns a Walker ready to Run against session/archiveClient.
func New(logger *logrus.Logger, session svnsession.Session, archiveClient archive.Client, opts Options) *Walker {
	w := &Walker{logger: logger, session: session, archiveClient: archiveClient, opts: opts}
	if opts.Config != nil && opts.Config.GraphFile != "" {
		w.graph = dot.NewGraph(dot.Directed)
		w.graphNodes = make(map[int64]dot.Node)
	}
	return w
}

// Graph returns the accumulated revision-edge graph, or nil if no
// graph file was configured.
func (w *Walker) Graph() *dot.Graph {
	return w.graph
}

// Run executes spec §4.F's algorithm against prior (nil to start from
// scratch), returning the VisitState the caller should persist.
func (w *Walker) Run(prior *VisitState) (VisitState, error) {
	uuid, err := w.session.GetUUID()
	if err != nil {
		return VisitState{}, loaderror.NewVisit(loaderror.SvnProtocolError, err)
	}
	head, err := w.session.GetHeadRevision()
	if err != nil {
		return VisitState{}, loaderror.NewVisit(loaderror.SvnProtocolError, err)
	}

	wt, err := workingtree.New(w.opts.Config.WorkingDir)
	if err != nil {
		return VisitState{}, loaderror.NewVisit(loaderror.WorkingTreeIoError, err)
	}
	ht := hashtree.New()

	var startRev int64 = 1
	var parentID objecthash.ID

	if prior != nil && !w.opts.Config.StartFromScratch {
		w.logger.Infof("resuming from r%d (%s), verifying against current history", prior.LastSVNRevision, prior.LastRevisionID)
		recomputed, err := w.replayThrough(wt, ht, 1, prior.LastSVNRevision, uuid, false)
		if err != nil {
			return VisitState{}, err
		}
		if recomputed != prior.LastRevisionID {
			return VisitState{}, loaderror.NewVisit(loaderror.HistoryAltered,
				fmt.Errorf("r%d recomputed as %s, resume state claims %s", prior.LastSVNRevision, recomputed, prior.LastRevisionID))
		}
		startRev = prior.LastSVNRevision + 1
		parentID = prior.LastRevisionID
	}

	if w.opts.MaxRevisions > 0 && head-startRev+1 > w.opts.MaxRevisions {
		head = startRev + w.opts.MaxRevisions - 1
	}

	lastRev := startRev - 1
	if prior != nil && !w.opts.Config.StartFromScratch {
		lastRev = prior.LastSVNRevision
	}

	if startRev > head {
		return w.finish(lastRev, parentID, uuid)
	}

	lastID, err := w.replayThrough(wt, ht, startRev, head, uuid, true)
	if err != nil {
		return VisitState{}, err
	}
	return w.finish(head, lastID, uuid)
}

// replayThrough drives revisions [from, to] in order, threading the
// parent-id chain forward, and returns the final revision-id. When
// submit is false (the resume-verification pass) it still replays
// every revision through the Replay Editor and Revision Builder — the
// only local way to detect that some ancestor revision's metadata or
// content changed, since an author edit at an early revision changes
// that revision's id and therefore every descendant's "parent" field —
// but skips archive submission and ledger/graph bookkeeping.
func (w *Walker) replayThrough(wt *workingtree.Tree, ht *hashtree.Tree, from, to int64, uuid string, submit bool) (objecthash.ID, error) {
	var parentID objecthash.ID
	for rev := from; rev <= to; rev++ {
		id, err := w.replayOne(wt, ht, rev, uuid, parentID, submit)
		if err != nil {
			return "", err
		}
		parentID = id
	}
	return parentID, nil
}

func (w *Walker) replayOne(wt *workingtree.Tree, ht *hashtree.Tree, rev int64, uuid string, parentID objecthash.ID, submit bool) (objecthash.ID, error) {
	entries, err := w.session.GetLog(rev, rev)
	if err != nil {
		return "", loaderror.New(loaderror.SvnProtocolError, rev, err)
	}
	if len(entries) == 0 {
		return "", loaderror.New(loaderror.SvnProtocolError, rev, fmt.Errorf("no log entry for r%d", rev))
	}
	logEntry := entries[0]

	editor := replay.New(rev, wt, ht, w.session)
	if w.opts.Config != nil {
		editor.EOLOverride = w.opts.Config.ResolveEOLOverride
	}
	if err := w.session.DoReplay(rev, editor); err != nil {
		if le, ok := loaderror.As(err); ok {
			return "", le
		}
		return "", loaderror.New(loaderror.SvnProtocolError, rev, err)
	}

	treeID, touchedDirs := ht.ResolveTouched()
	revisionID, body := revision.Build(revision.Manifest{
		TreeID:   treeID,
		ParentID: parentID,
		Log: revision.LogEntry{
			Revnum:  logEntry.Revnum,
			Author:  logEntry.Author,
			Date:    logEntry.DateEpochUsec / 1_000_000,
			Message: logEntry.Message,
		},
		RepoUUID: uuid,
	})

	if !submit {
		return revisionID, nil
	}

	blobs := make([]revision.Blob, 0, len(editor.Blobs()))
	for id, content := range editor.Blobs() {
		blobs = append(blobs, revision.Blob{ID: id, Content: content})
	}
	dirs := make([]revision.Dir, 0, len(touchedDirs))
	for _, td := range touchedDirs {
		dirs = append(dirs, revision.Dir{ID: td.ID, Body: td.Body})
	}
	if err := revision.Submit(w.archiveClient, revision.Submission{
		Blobs:        blobs,
		Dirs:         dirs,
		RevisionID:   revisionID,
		RevisionBody: body,
	}); err != nil {
		return "", loaderror.New(loaderror.ArchiveError, rev, err)
	}

	w.recordGraphEdge(rev, revisionID, parentID)
	if w.opts.Ledger != nil {
		w.opts.Ledger.WriteRevision(replaylog.Entry{
			Revnum:     rev,
			TreeID:     treeID,
			RevisionID: revisionID,
			BlobCount:  len(blobs),
			DirCount:   len(dirs),
		})
	}
	w.logger.Debugf("r%d -> tree=%s revision=%s (%d blobs, %d dirs)", rev, treeID, revisionID, len(blobs), len(dirs))
	return revisionID, nil
}

func (w *Walker) recordGraphEdge(rev int64, revisionID, parentID objecthash.ID) {
	if w.graph == nil {
		return
	}
	node := w.graph.Node(fmt.Sprintf("r%d\n%s", rev, revisionID))
	w.graphNodes[rev] = node
	if parent, ok := w.graphNodes[rev-1]; ok {
		w.graph.Edge(parent, node, "")
	}
}

// finish emits and submits the final snapshot (spec §4.F step 6) and
// returns the VisitState to persist. lastRev/lastRevisionID are empty
// (0/"") when the origin has no revisions at all (spec §8 scenario 5).
func (w *Walker) finish(lastRev int64, lastRevisionID objecthash.ID, uuid string) (VisitState, error) {
	var branches []byte
	if lastRevisionID != "" {
		branches = []byte(fmt.Sprintf("HEAD %s\n", lastRevisionID))
	}
	snapshotID := objecthash.Blob(branches)
	snapshot := archive.Snapshot{ID: snapshotID, RevisionID: lastRevisionID}
	if err := w.archiveClient.SnapshotAdd(snapshot); err != nil {
		return VisitState{}, loaderror.NewVisit(loaderror.ArchiveError, err)
	}
	// One load is one visit; the visit-number sequencing a multi-visit
	// history would need is the bookkeeping layer's concern (spec §1),
	// so every visit here is reported as visit 1.
	if err := w.archiveClient.OriginVisitUpdate(w.opts.Config.SVNURL, 1, "full", snapshotID); err != nil {
		return VisitState{}, loaderror.NewVisit(loaderror.ArchiveError, err)
	}
	return VisitState{
		LastSVNRevision: lastRev,
		LastRevisionID:  lastRevisionID,
		LastSnapshotID:  snapshotID,
		RepoUUID:        uuid,
	}, nil
}
