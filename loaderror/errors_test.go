package loaderror

import (
	"fmt"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	err := New(SvndiffApplyError, 42, fmt.Errorf("bad opcode"))
	if !Is(err, SvndiffApplyError) {
		t.Fatalf("expected Is to match SvndiffApplyError")
	}
	if Is(err, HistoryAltered) {
		t.Fatalf("expected Is not to match a different kind")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(fmt.Errorf("plain"), SvnProtocolError) {
		t.Fatalf("expected Is to be false for a non-loaderror error")
	}
}

func TestErrorIncludesRevisionNumber(t *testing.T) {
	err := New(UnsupportedRevisionShape, 7, fmt.Errorf("unknown node kind"))
	msg := err.Error()
	if msg == "" {
		t.Fatalf("expected non-empty message")
	}
	want := "r7"
	if !contains(msg, want) {
		t.Fatalf("expected message %q to mention %q", msg, want)
	}
}

func TestAsRecoversTypedError(t *testing.T) {
	err := New(WorkingTreeIoError, 3, fmt.Errorf("disk full"))
	got, ok := As(err)
	if !ok {
		t.Fatalf("expected As to recover the typed error")
	}
	if got.Kind != WorkingTreeIoError || got.Rev != 3 {
		t.Fatalf("got %+v", got)
	}
	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Fatalf("expected As to fail for a non-loaderror error")
	}
}

func TestNewVisitHasNoRevision(t *testing.T) {
	err := NewVisit(HistoryAltered, fmt.Errorf("mismatch"))
	if err.Rev != 0 {
		t.Fatalf("expected zero revision for a visit-scoped error")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
