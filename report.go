package sinktracer

import (
	"encoding/json"
	"io"

	"github.com/sinktracer/sinktracer/issue"
	"github.com/sinktracer/sinktracer/rules"
)

// Stats summarizes one scan run.
type Stats struct {
	Parsed     int     `json:"parsed"`
	TotalFiles int     `json:"totalFiles"`
	RatePerMin float64 `json:"ratePerMin"`
}

// ReportInfo is the scan response. Progress polls, periodic snapshots and
// the final result all share this shape so callers render them with the
// same code.
type ReportInfo struct {
	ScanID               string                `json:"scanId"`
	Status               Status                `json:"status"`
	Vulnerabilities      []issue.Vulnerability `json:"vulnerabilities"`
	TotalVulnerabilities int                   `json:"totalVulnerabilities"`
	Stats                Stats                 `json:"stats"`
	Errors               map[string][]Error    `json:"errors,omitempty"`
	BadPatterns          []rules.BadPattern    `json:"badPatterns,omitempty"`
}

// NewReportInfo instantiates an empty report.
func NewReportInfo() *ReportInfo {
	return &ReportInfo{Vulnerabilities: []issue.Vulnerability{}}
}

// WithVulnerabilities sets the findings and keeps the count consistent.
func (r *ReportInfo) WithVulnerabilities(vulns []issue.Vulnerability) *ReportInfo {
	r.Vulnerabilities = vulns
	r.TotalVulnerabilities = len(vulns)
	return r
}

// WriteJSON serializes the report for persistence or transport.
func (r *ReportInfo) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
