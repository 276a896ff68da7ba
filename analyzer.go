// (c) Copyright 2016 Hewlett Packard Enterprise Development LP
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sinktracer holds the central scanning logic: it enumerates a
// Java project, dispatches files across a bounded worker pool for
// indexing, runs taint backtracking from every selected sink occurrence
// and the template text scan, and accumulates scored vulnerabilities into
// a report it snapshots as it goes.
package sinktracer

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sinktracer/sinktracer/issue"
	"github.com/sinktracer/sinktracer/javasrc"
	"github.com/sinktracer/sinktracer/rules"
	"github.com/sinktracer/sinktracer/taint"
	"github.com/sinktracer/sinktracer/template"
)

// Analyzer orchestrates one scan. Workers parse files and hand results
// back over a channel; the analyzer alone merges them into the graph and
// the accumulator, so those structures need no per-worker locking.
type Analyzer struct {
	config Config
	logger *log.Logger

	state     *ScanState
	snapshots SnapshotWriter

	repo  *rules.Repository
	graph *javasrc.Graph

	mu            sync.Mutex
	vulns         []issue.Vulnerability
	fileErrors    map[string][]Error
	sinceSnapshot int
}

// NewAnalyzer builds an analyzer for the given request. The request is
// normalized but not validated here; Process validates before any work.
func NewAnalyzer(conf Config, logger *log.Logger) *Analyzer {
	conf.Normalize()
	if logger == nil {
		logger = log.New(os.Stderr, "[sinktracer] ", log.LstdFlags)
	}
	return &Analyzer{
		config:     conf,
		logger:     logger,
		state:      NewScanState(),
		graph:      javasrc.NewGraph(),
		fileErrors: make(map[string][]Error),
	}
}

// SetSnapshotWriter installs the partial-result persistence target.
func (a *Analyzer) SetSnapshotWriter(w SnapshotWriter) {
	a.snapshots = w
}

// State exposes the scan state handle for control and progress callers.
func (a *Analyzer) State() *ScanState {
	return a.state
}

// Pause requests the scan to block at the next between-file checkpoint.
func (a *Analyzer) Pause() (bool, string) { return a.state.Pause() }

// Resume unblocks a paused scan.
func (a *Analyzer) Resume() (bool, string) { return a.state.Resume() }

// Cancel stops the scan cooperatively; partial results stay retrievable.
func (a *Analyzer) Cancel() (bool, string) { return a.state.Cancel() }

// LoadRules reads and compiles the rule document. Called implicitly by
// Process; exposed so introspection works without starting a scan.
func (a *Analyzer) LoadRules() error {
	if a.repo != nil {
		return nil
	}
	repo, err := rules.Load(a.config.RulesPath)
	if err != nil {
		return &ConfigError{Field: "rulesPath", Reason: err.Error()}
	}
	for _, bad := range repo.BadPatterns() {
		a.logger.Printf("skipping malformed rule entry %s: %s", bad.RuleID, bad.Reason)
	}
	a.repo = repo
	return nil
}

// SinkTypes returns the distinct sink identifiers in the loaded rule
// document, for building a sinkTypes selection filter.
func (a *Analyzer) SinkTypes() ([]string, error) {
	if err := a.LoadRules(); err != nil {
		return nil, err
	}
	return a.repo.SinkTypes(), nil
}

// parseResult travels from a worker back to the orchestrator.
type parseResult struct {
	path   string
	parsed *javasrc.ParsedFile
	err    error
}

// Process runs the scan to completion: validation, enumeration, the
// indexing pool, backtracking per sink occurrence, and the template scan.
// Cancellation returns the partial report together with ErrCancelled; a
// global timeout completes with partial results and ErrScanTimeout so
// callers can tell a truncated report from a finished one.
func (a *Analyzer) Process(ctx context.Context) (*ReportInfo, error) {
	if err := a.config.Validate(); err != nil {
		a.state.finish(StatusFailed)
		return a.Report(), err
	}
	if err := a.LoadRules(); err != nil {
		a.state.finish(StatusFailed)
		return a.Report(), err
	}

	files, err := EnumerateFiles(a.config.ProjectPath)
	if err != nil {
		a.state.finish(StatusFailed)
		return a.Report(), &ConfigError{Field: "projectPath", Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(a.config.MaxSeconds)*time.Second)
	defer cancel()

	scanner := a.templateScanner()
	javaFiles, templateFiles := partitionFiles(files, scanner)
	a.state.start(len(javaFiles) + len(templateFiles))

	a.indexPhase(ctx, javaFiles)
	a.graph.BuildReverse()
	a.backtrackPhase(ctx)
	if scanner != nil {
		a.templatePhase(ctx, scanner, templateFiles)
	}

	switch {
	case a.state.Cancelled():
		a.state.finish(StatusCancelled)
		a.writeSnapshot()
		return a.Report(), ErrCancelled
	case ctx.Err() != nil:
		// global timeout completes with partial results, never fails
		a.logger.Printf("scan deadline reached, returning partial results")
		a.state.finish(StatusCompleted)
		a.writeSnapshot()
		return a.Report(), ErrScanTimeout
	default:
		a.state.finish(StatusCompleted)
	}
	a.writeSnapshot()
	return a.Report(), nil
}

func (a *Analyzer) templateScanner() *template.Scanner {
	if !a.config.TemplateScanEnabled() {
		return nil
	}
	return template.NewScanner(a.repo.Templates(a.config.SinkTypes), template.Options{
		ApplyMustSubstrings: a.config.ApplyMustSubstrings,
		Lite:                a.config.Engine == "lite" && !a.config.LiteEnrichEnabled(),
	})
}

// partitionFiles splits the enumeration into indexer input and template
// scanner input. A .java file can appear in both.
func partitionFiles(files []string, scanner *template.Scanner) (javaFiles, templateFiles []string) {
	for _, f := range files {
		if isJavaFile(f) {
			javaFiles = append(javaFiles, f)
		}
		if scanner != nil && scanner.Candidate(f) {
			templateFiles = append(templateFiles, f)
		}
	}
	return javaFiles, templateFiles
}

// indexPhase runs the bounded worker pool over the Java files. Workers
// only parse; the orchestrator goroutine merges every result so the graph
// and error map stay single-writer.
func (a *Analyzer) indexPhase(ctx context.Context, javaFiles []string) {
	// the substring gates match against method bodies, so they must be
	// retained even when the lite engine would otherwise drop them
	keepBodies := a.config.Engine == "full" || a.config.ApplyMustSubstrings
	results := make(chan parseResult)
	merged := make(chan struct{})

	go func() {
		defer close(merged)
		for res := range results {
			if res.err != nil {
				a.recordFileError(res.path, res.err)
			} else if res.parsed != nil {
				a.graph.AddFile(res.parsed)
			}
			a.state.advance(res.path)
			a.maybeSnapshot()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Workers)
dispatch:
	for _, rel := range javaFiles {
		// the pause checkpoint sits between files; a cancelled scan
		// stops dispatching here
		if !a.state.checkpoint() {
			break
		}
		select {
		case <-gctx.Done():
			break dispatch
		default:
		}
		rel := rel
		g.Go(func() error {
			parsed, err := a.parseFile(rel, keepBodies)
			select {
			case results <- parseResult{path: rel, parsed: parsed, err: err}:
			case <-gctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-merged
}

// parseFile reads and lexes one Java file, consulting the cross-scan
// parse cache first.
func (a *Analyzer) parseFile(rel string, keepBodies bool) (*javasrc.ParsedFile, error) {
	abs := filepath.Join(a.config.ProjectPath, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	key := parseKey{Path: abs, ModTime: info.ModTime().UnixNano(), Size: info.Size(), Bodies: keepBodies}
	if cached, ok := parseCache.Get(key); ok {
		return cached, nil
	}
	data, err := os.ReadFile(abs) // #nosec
	if err != nil {
		return nil, err
	}
	if countLines(data) > maxFileLines {
		return nil, errors.New("file exceeds line limit")
	}
	parsed, err := javasrc.ParseFile(rel, data, keepBodies)
	if err != nil {
		return nil, err
	}
	parseCache.Add(key, parsed)
	return parsed, nil
}

// backtrackPhase traces every selected sink occurrence backwards. Each
// sink's search runs synchronously so the per-chain deadline stays local.
func (a *Analyzer) backtrackPhase(ctx context.Context) {
	sinkRules := a.repo.Sinks(a.config.SinkTypes)
	hits := taint.FindSinkHits(a.graph, sinkRules, a.config.ApplyMustSubstrings)
	if len(hits) == 0 {
		return
	}

	mode := taint.ParseMode(a.config.Engine)
	bt := taint.NewBacktracker(a.graph, a.repo, taint.Options{
		Depth:               a.config.Depth,
		ApplyMustSubstrings: a.config.ApplyMustSubstrings,
	})
	scorer := taint.NewScorer(a.graph, a.repo, mode, a.config.LiteEnrichEnabled(), a.config.ApplyMustSubstrings)

	for _, hit := range hits {
		if !a.state.checkpoint() || ctx.Err() != nil {
			return
		}
		chains := bt.Trace(ctx, hit.Token)
		if len(chains) == 0 {
			// no reachable source means no finding
			continue
		}
		a.addVulnerability(scorer.Enrich(hit.Rule, hit.Token, chains))
	}
}

// templatePhase runs the pattern-only scan over template candidates.
func (a *Analyzer) templatePhase(ctx context.Context, scanner *template.Scanner, templateFiles []string) {
	for _, rel := range templateFiles {
		if !a.state.checkpoint() || ctx.Err() != nil {
			return
		}
		abs := filepath.Join(a.config.ProjectPath, filepath.FromSlash(rel))
		data, err := os.ReadFile(abs) // #nosec
		if err != nil {
			a.recordFileError(rel, err)
			a.state.advance(rel)
			continue
		}
		for _, vuln := range scanner.ScanFile(rel, data) {
			a.addVulnerability(vuln)
		}
		a.state.advance(rel)
		a.maybeSnapshot()
	}
}

func (a *Analyzer) recordFileError(path string, err error) {
	a.mu.Lock()
	a.fileErrors[path] = append(a.fileErrors[path], *NewError(0, err.Error()))
	a.mu.Unlock()
	a.logger.Printf("skipping %s: %v", path, err)
}

// addVulnerability appends one finding and snapshots immediately so an
// interrupted scan never loses a reported vulnerability.
func (a *Analyzer) addVulnerability(v issue.Vulnerability) {
	a.mu.Lock()
	a.vulns = append(a.vulns, v)
	a.mu.Unlock()
	a.writeSnapshot()
}

// maybeSnapshot persists every few processed files.
func (a *Analyzer) maybeSnapshot() {
	a.mu.Lock()
	a.sinceSnapshot++
	due := a.sinceSnapshot >= snapshotInterval
	if due {
		a.sinceSnapshot = 0
	}
	a.mu.Unlock()
	if due {
		a.writeSnapshot()
	}
}

func (a *Analyzer) writeSnapshot() {
	if a.snapshots == nil {
		return
	}
	if err := a.snapshots.WriteSnapshot(a.Report()); err != nil {
		a.logger.Printf("snapshot write failed: %v", err)
	}
}

// Report assembles the current result set. In-progress and final reports
// share the same shape.
func (a *Analyzer) Report() *ReportInfo {
	progress := a.state.Snapshot()
	a.mu.Lock()
	vulns := make([]issue.Vulnerability, len(a.vulns))
	copy(vulns, a.vulns)
	errs := make(map[string][]Error, len(a.fileErrors))
	for k, v := range a.fileErrors {
		errs[k] = append([]Error(nil), v...)
	}
	a.mu.Unlock()
	sortErrors(errs)

	report := NewReportInfo().WithVulnerabilities(vulns)
	report.ScanID = progress.ID
	report.Status = progress.Status
	report.Stats = Stats{
		Parsed:     progress.ParsedCount,
		TotalFiles: progress.TotalFiles,
		RatePerMin: progress.RatePerMin,
	}
	if len(errs) > 0 {
		report.Errors = errs
	}
	if a.repo != nil {
		report.BadPatterns = a.repo.BadPatterns()
	}
	return report
}

// Progress returns the live state snapshot plus partial findings.
func (a *Analyzer) Progress() *ReportInfo {
	return a.Report()
}

// ChainSources projects per-node file, line and snippet details onto a
// chain for external display. Read-only over already-parsed data.
func (a *Analyzer) ChainSources(chain []string) []issue.ChainNode {
	nodes := make([]issue.ChainNode, 0, len(chain))
	for i, token := range chain {
		argCount := -1
		if i > 0 {
			argCount = a.graph.CallArgs(chain[i-1], token)
		}
		node := issue.ChainNode{Function: token}
		if file, line, snippet, ok := a.graph.ExtractMethod(token, argCount); ok {
			node.File = file
			node.Line = line
			node.Snippet = snippet
		}
		nodes = append(nodes, node)
	}
	return nodes
}
