package main

// svnfastexport program
// Replays a revision range through the same Replay Editor and Hash
// Tree the main loader uses, and writes the result out as a git
// fast-import stream so the replay can be verified against a real
// `git fast-import` instead of the archive client.

import (
	"fmt"
	"os"
	"time"

	libfastimport "github.com/rcowham/go-libgitfastimport"

	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/svnarchive/loader/hashtree"
	"github.com/svnarchive/loader/replay"
	"github.com/svnarchive/loader/svnsession"
	"github.com/svnarchive/loader/workingtree"
)

const (
	modeFile       = libfastimport.Mode(0100644)
	modeExecutable = libfastimport.Mode(0100755)
	modeSymlink    = libfastimport.Mode(0120000)
)

// SvnFastExport drives revisions through the Replay Editor and emits
// one git commit per revision on a single "HEAD" ref.
type SvnFastExport struct {
	logger  *logrus.Logger
	session svnsession.Session
	wt      *workingtree.Tree
	ht      *hashtree.Tree
}

// NewSvnFastExport returns an exporter rooted at a fresh Working Tree
// under dir.
func NewSvnFastExport(logger *logrus.Logger, session svnsession.Session, dir string) (*SvnFastExport, error) {
	wt, err := workingtree.New(dir)
	if err != nil {
		return nil, err
	}
	return &SvnFastExport{logger: logger, session: session, wt: wt, ht: hashtree.New()}, nil
}

// Export replays [from, to] and writes every resulting commit to
// backend.
func (x *SvnFastExport) Export(backend *libfastimport.Backend, from, to int64) error {
	prevFiles := x.ht.Files()
	mark := 0
	for rev := from; rev <= to; rev++ {
		entries, err := x.session.GetLog(rev, rev)
		if err != nil {
			return fmt.Errorf("r%d: %w", rev, err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("r%d: no log entry", rev)
		}
		logEntry := entries[0]

		editor := replay.New(rev, x.wt, x.ht, x.session)
		if err := x.session.DoReplay(rev, editor); err != nil {
			return fmt.Errorf("r%d: %w", rev, err)
		}
		x.ht.ResolveTouched()
		curFiles := x.ht.Files()

		mark++
		commit := libfastimport.CmdCommit{
			Ref:  "refs/heads/HEAD",
			Mark: mark,
			Author: libfastimport.Ident{
				Name:  logEntry.Author,
				Email: logEntry.Author + "@svn",
				Time:  time.Unix(logEntry.DateEpochUsec/1_000_000, 0),
			},
			Msg: logEntry.Message,
		}
		if mark > 1 {
			commit.From = fmt.Sprintf(":%d", mark-1)
		}
		backend.Do(commit)

		for path, fe := range curFiles {
			prev, existed := prevFiles[path]
			if existed && prev == fe {
				continue
			}
			var data []byte
			if fe.Perm == hashtree.PermSymlink {
				target, err := x.wt.ReadLink(path)
				if err != nil {
					return fmt.Errorf("r%d: reading link %s: %w", rev, path, err)
				}
				data = []byte(target)
			} else {
				data, err = x.wt.ReadFile(path)
				if err != nil {
					return fmt.Errorf("r%d: reading %s: %w", rev, path, err)
				}
			}
			blob := libfastimport.CmdBlob{Mark: mark*1_000_000 + len(curFiles), Data: string(data)}
			backend.Do(blob)
			backend.Do(libfastimport.FileModify{
				Path:    libfastimport.Path(path),
				Mode:    modeForPerm(fe.Perm),
				DataRef: fmt.Sprintf(":%d", blob.Mark),
			})
		}
		for path := range prevFiles {
			if _, ok := curFiles[path]; !ok {
				backend.Do(libfastimport.FileDelete{Path: libfastimport.Path(path)})
			}
		}
		backend.Do(libfastimport.CmdCommitEnd{})
		prevFiles = curFiles
	}
	return nil
}

func modeForPerm(perm string) libfastimport.Mode {
	switch perm {
	case hashtree.PermExecutable:
		return modeExecutable
	case hashtree.PermSymlink:
		return modeSymlink
	default:
		return modeFile
	}
}

func main() {
	var (
		svnURL = kingpin.Arg(
			"svnurl",
			"URL of the Subversion repository to replay.",
		).Required().String()
		fromRev = kingpin.Flag(
			"from",
			"First revision to replay.",
		).Default("1").Int64()
		toRev = kingpin.Flag(
			"to",
			"Last revision to replay (0 means head).",
		).Default("0").Int64()
		outputFile = kingpin.Flag(
			"output",
			"Git fast-import stream file to write.",
		).Short('o').Required().String()
		workingDir = kingpin.Flag(
			"working.dir",
			"Scratch directory for the Working Tree.",
		).Default(os.TempDir()).String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("svnfastexport")).Author("svnarchive")
	kingpin.CommandLine.Help = "Replays an SVN revision range and writes a git fast-import stream\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("%v", version.Print("svnfastexport"))
	logger.Infof("Starting %s, svn url: %s", startTime, *svnURL)

	session, err := svnsession.Dial(*svnURL)
	if err != nil {
		logger.Errorf("error connecting to %s: %v", *svnURL, err)
		os.Exit(1)
	}
	head := *toRev
	if head == 0 {
		head, err = session.GetHeadRevision()
		if err != nil {
			logger.Errorf("error fetching head revision: %v", err)
			os.Exit(1)
		}
	}

	x, err := NewSvnFastExport(logger, session, *workingDir)
	if err != nil {
		logger.Errorf("error creating working tree: %v", err)
		os.Exit(1)
	}

	out, err := os.Create(*outputFile)
	if err != nil {
		logger.Errorf("error creating output file: %v", err)
		os.Exit(1)
	}
	defer out.Close()
	backend := libfastimport.NewBackend(out, nil, nil)

	if err := x.Export(backend, *fromRev, head); err != nil {
		logger.Errorf("error exporting: %v", err)
		os.Exit(1)
	}
}
