package sinktracer

import (
	"fmt"
	"os"
	"path/filepath"
)

// snapshotInterval is how many processed files pass between periodic
// partial-result writes; each new vulnerability also triggers one.
const snapshotInterval = 10

// SnapshotWriter persists partial results so an interrupted scan still
// leaves a best-effort result set behind, identical in shape to a
// completed scan's output.
type SnapshotWriter interface {
	WriteSnapshot(report *ReportInfo) error
}

// FileSnapshotWriter writes snapshots atomically to a single JSON file,
// named after the scan id.
type FileSnapshotWriter struct {
	Dir    string
	ScanID string
}

// WriteSnapshot replaces the snapshot file with the current report. The
// write goes through a temp file and rename so readers never observe a
// torn snapshot.
func (w *FileSnapshotWriter) WriteSnapshot(report *ReportInfo) error {
	if w.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(w.Dir, 0o750); err != nil {
		return err
	}
	final := filepath.Join(w.Dir, fmt.Sprintf("scan-%s.json", w.ScanID))
	tmp, err := os.CreateTemp(w.Dir, "scan-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := report.WriteJSON(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), final)
}
