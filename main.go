package main

// svnloader program
// Ingests the full history of a Subversion repository into a
// content-addressed, Git-compatible archive.
//
// Design:
// The main loop opens an SVN session and a History Walker, then drives
// Walker.Run once over the configured revision range (or resuming from
// a previously persisted VisitState, stored as a small JSON file,
// visit-state.json, inside the working directory). Every revision is replayed
// through the Replay Editor + Hash Tree + Revision Builder and
// submitted to the archive client as it goes; only the final
// VisitState is written back at the end of a successful run.

import (
	"encoding/json"
	"fmt"
	_ "net/http/pprof" // profiling only
	"os"
	"path/filepath"
	"time"

	"github.com/perforce/p4prometheus/version"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/svnarchive/loader/archive"
	"github.com/svnarchive/loader/config"
	"github.com/svnarchive/loader/replaylog"
	"github.com/svnarchive/loader/svnsession"
	"github.com/svnarchive/loader/walker"
)

func visitStatePath(workingDir string) string {
	return filepath.Join(workingDir, "visit-state.json")
}

func loadVisitState(workingDir string) (*walker.VisitState, error) {
	data, err := os.ReadFile(visitStatePath(workingDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var vs walker.VisitState
	if err := json.Unmarshal(data, &vs); err != nil {
		return nil, err
	}
	return &vs, nil
}

func saveVisitState(workingDir string, vs walker.VisitState) error {
	data, err := json.MarshalIndent(vs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(visitStatePath(workingDir), data, 0644)
}

func main() {
	var (
		configFile = kingpin.Flag(
			"config",
			"Config file for svnloader.",
		).Default("svnloader.yaml").Short('c').String()
		svnURL = kingpin.Arg(
			"svnurl",
			"URL of the Subversion repository to ingest.",
		).String()
		workingDir = kingpin.Flag(
			"working.dir",
			"Scratch directory for the Working Tree (overrides config).",
		).Short('w').String()
		startFromScratch = kingpin.Flag(
			"start.fresh",
			"Ignore any persisted visit state and reload from revision 1.",
		).Bool()
		maxRevisions = kingpin.Flag(
			"max.revisions",
			"Max number of revisions to replay this run.",
		).Short('m').Int64()
		outputGraph = kingpin.Flag(
			"graphfile",
			"Graphviz dot file to output the revision graph to.",
		).String()
		outputLedger = kingpin.Flag(
			"ledger",
			"Replay ledger file to append per-revision records to.",
		).String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Int()
		doProfile = kingpin.Flag(
			"profile",
			"Write a CPU profile for this run.",
		).Bool()
		dryrun = kingpin.Flag(
			"dryrun",
			"Replay and hash every revision but submit nothing to the archive.",
		).Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("svnloader")).Author("svnarchive")
	kingpin.CommandLine.Help = "Ingests the full history of a Subversion repository into a content-addressed archive\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if *doProfile {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(1)
	}
	if *svnURL != "" {
		cfg.SVNURL = *svnURL
	}
	if *workingDir != "" {
		cfg.WorkingDir = *workingDir
	}
	if *startFromScratch {
		cfg.StartFromScratch = true
	}
	if *outputGraph != "" {
		cfg.GraphFile = *outputGraph
	}

	startTime := time.Now()
	logger.Infof("%v", version.Print("svnloader"))
	logger.Infof("Starting %s, svn url: %s", startTime, cfg.SVNURL)

	if err := os.MkdirAll(cfg.WorkingDir, 0755); err != nil {
		logger.Errorf("error creating working dir: %v", err)
		os.Exit(1)
	}

	prior, err := loadVisitState(cfg.WorkingDir)
	if err != nil {
		logger.Errorf("error reading prior visit state: %v", err)
		os.Exit(1)
	}

	session, err := svnsession.Dial(cfg.SVNURL)
	if err != nil {
		logger.Errorf("error connecting to %s: %v", cfg.SVNURL, err)
		os.Exit(1)
	}
	var archiveClient archive.Client
	if *dryrun {
		logger.Infof("dryrun: submitting nothing, using an in-memory archive sink")
		archiveClient = archive.NewFake()
	} else {
		dialed, dialErr := archive.Dial()
		if dialErr != nil {
			logger.Errorf("error connecting to archive: %v", dialErr)
			os.Exit(1)
		}
		archiveClient = archive.NewCachingClient(archive.NewRetryingClient(dialed), archive.DefaultExistenceCacheCapacity)
	}

	opts := walker.Options{Config: cfg, MaxRevisions: *maxRevisions}
	if *outputLedger != "" {
		f, err := os.OpenFile(*outputLedger, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.Errorf("error opening ledger file: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		ledger := replaylog.New(f)
		if prior == nil {
			ledger.WriteHeader(cfg.SVNURL)
		}
		opts.Ledger = ledger
	}

	w := walker.New(logger, session, archiveClient, opts)
	state, err := w.Run(prior)
	if err != nil {
		logger.Errorf("error walking history: %v", err)
		os.Exit(1)
	}
	logger.Infof("Finished at r%d, revision %s, snapshot %s", state.LastSVNRevision, state.LastRevisionID, state.LastSnapshotID)

	if !*dryrun {
		if err := saveVisitState(cfg.WorkingDir, state); err != nil {
			logger.Errorf("error persisting visit state: %v", err)
			os.Exit(1)
		}
	}

	if cfg.GraphFile != "" && w.Graph() != nil {
		f, err := os.OpenFile(cfg.GraphFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			logger.Error(err)
		} else {
			defer f.Close()
			f.Write([]byte(w.Graph().String()))
		}
	}

	fmt.Fprintf(os.Stderr, "done in %s\n", time.Since(startTime))
}
