package sinktracer

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCancelled marks a scan stopped by an explicit cancel request; the
// partial result set stays available.
var ErrCancelled = errors.New("scan cancelled")

// ErrScanTimeout marks the global deadline expiring; the scan still
// completes with whatever accumulated.
var ErrScanTimeout = errors.New("scan timeout exceeded")

// ConfigError rejects a request before any work starts. It is the only
// fatal error in the taxonomy.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid scan request: %s %s", e.Field, e.Reason)
}

// Error records a file that could not be parsed. Collected per path;
// never aborts the scan.
type Error struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// NewError creates an Error record.
func NewError(line int, err string) *Error {
	return &Error{Line: line, Err: err}
}

// sortErrors orders each file's parse errors by line.
func sortErrors(allErrors map[string][]Error) {
	for _, errs := range allErrors {
		sort.Slice(errs, func(i, j int) bool {
			return errs[i].Line < errs[j].Line
		})
	}
}
