// Tests for svnloader

package main

import (
	"testing"

	"github.com/svnarchive/loader/walker"
)

func TestVisitStateRoundTripsThroughDisk(t *testing.T) {
	dir := t.TempDir()
	want := walker.VisitState{
		LastSVNRevision: 42,
		LastRevisionID:  "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		LastSnapshotID:  "cafebabecafebabecafebabecafebabecafebabe",
		RepoUUID:        "11111111-2222-3333-4444-555555555555",
	}
	if err := saveVisitState(dir, want); err != nil {
		t.Fatalf("saveVisitState: %v", err)
	}
	got, err := loadVisitState(dir)
	if err != nil {
		t.Fatalf("loadVisitState: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestLoadVisitStateMissingFileReturnsNilNoError(t *testing.T) {
	dir := t.TempDir()
	got, err := loadVisitState(dir)
	if err != nil {
		t.Fatalf("expected no error for a fresh working dir, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil visit state, got %+v", got)
	}
}
