package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTask       = "task"
	KeyTaskKind   = "task_kind"
	KeyRunID      = "run_id"
	KeyStatus     = "status"
	KeyFileSet    = "fileset"
	KeyPath       = "path"
	KeyOp         = "op"
	KeyFiles      = "files"
	KeyTransform  = "transform"
	KeyDurationMS = "duration_ms"
	KeyPID        = "pid"
	KeyCommand    = "command"
	KeyRevision   = "revision"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Task(name string) slog.Attr      { return slog.String(KeyTask, name) }
func TaskKind(k string) slog.Attr     { return slog.String(KeyTaskKind, k) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func FileSet(name string) slog.Attr   { return slog.String(KeyFileSet, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Op(op string) slog.Attr          { return slog.String(KeyOp, op) }
func Files(n int) slog.Attr           { return slog.Int(KeyFiles, n) }
func Transform(name string) slog.Attr { return slog.String(KeyTransform, name) }
func PID(pid int) slog.Attr           { return slog.Int(KeyPID, pid) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Revision(r string) slog.Attr     { return slog.String(KeyRevision, r) }

// Duration records d in milliseconds under KeyDurationMS.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
