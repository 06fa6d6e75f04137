package logfields

import (
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"Task", KeyTask, "styles", Task("styles")},
		{"TaskKind", KeyTaskKind, "parallel", TaskKind("parallel")},
		{"RunID", KeyRunID, "r1", RunID("r1")},
		{"Status", KeyStatus, "failed", Status("failed")},
		{"FileSet", KeyFileSet, "scripts", FileSet("scripts")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Op", KeyOp, "WRITE", Op("WRITE")},
		{"Transform", KeyTransform, "copy", Transform("copy")},
		{"Command", KeyCommand, "node server.js", Command("node server.js")},
		{"Revision", KeyRevision, "abc1234", Revision("abc1234")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if v := Files(3); v.Key != KeyFiles || v.Value.Int64() != 3 {
		t.Fatalf("Files mismatch: %v", v)
	}
	if v := PID(42); v.Key != KeyPID || v.Value.Int64() != 42 {
		t.Fatalf("PID mismatch: %v", v)
	}
	if v := Duration(1500 * time.Microsecond); v.Key != KeyDurationMS || v.Value.Float64() != 1.5 {
		t.Fatalf("Duration mismatch: %v", v)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("Expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
