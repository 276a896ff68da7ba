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

// Package template scans markup and templating files by direct pattern
// matching: no call graph exists for these formats, so hits carry matched
// line numbers (groupLines) instead of call chains. Rule matching, the
// context window and the confidence model mirror the call-graph engine
// where they overlap.
package template

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	zxcvbn "github.com/ccojocar/zxcvbn-go"

	"github.com/sinktracer/sinktracer/issue"
	"github.com/sinktracer/sinktracer/rules"
)

var (
	// literal words worth a containment check before running the regex
	wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_.]{2,}`)
	// password=*** style masked values in config files
	maskedValuePattern = regexp.MustCompile(`(?i)(password|secret|key)\s*=\s*["']?\*+["']?`)
)

const (
	// DefaultContextWindow is the number of lines examined before and
	// after a hit for source co-occurrence and false-positive checks.
	DefaultContextWindow = 5
	// DefaultMinConfidence drops hits whose score never clears it.
	DefaultMinConfidence = 0.3
	// secretEntropyFloor gates entropy-marked rules: matched values
	// weaker than this are treated as placeholders, not leaked secrets.
	secretEntropyFloor = 3.0
	// DefaultEvalBudget caps regex evaluations per file so a pathological
	// template (generated markup, minified bundles) cannot stall a worker.
	DefaultEvalBudget = 200000

	maxLineLength = 10000
)

// javaRelatedExts always run through every template rule regardless of the
// rule's own extension routing.
var javaRelatedExts = map[string]bool{
	"java": true, "jsp": true, "jspx": true, "class": true,
}

// baseHints is the lightweight containment prefilter applied before any
// regex runs: a line that carries none of these and none of the rule's
// own literal hint words is skipped outright.
var baseHints = []string{
	"request.getparameter", "out.print", "out.println", "${", "<%=", "document.write",
	"response.setheader", "response.addheader", "pagecontext.getout", "sendredirect",
	"location.href",
	"<#", "#include", "#import", "#assign", "#if", "#list",
	"$!", "#set", "#parse", "#foreach",
	"th:", "@{",
}

// inputIndicators signal a source pattern near the hit; co-occurrence
// inside the context window raises confidence.
var inputIndicators = []string{
	"request.getparameter", "request.getinputstream", "request.getreader",
	"request.getattribute", "session.getattribute", "param.", "header.", "cookie.",
	"requestparam", "pathvariable", "requestbody",
}

var sanitizerIndicators = []string{
	"escapehtml", "htmlutils", "stringescapeutils", "owasp.encoder", "sanitize",
	"encode", "escapexml", "escapejavascript", "preparedstatement", "setstring",
	"canonicalize",
}

// Options configure one scanner instance. Zero values use the defaults.
type Options struct {
	ContextWindow       int
	MinConfidence       float64
	ApplyMustSubstrings bool
	// EvalBudget bounds regex evaluations per file; lines past the
	// budget go unscanned rather than delaying the scan.
	EvalBudget int
	// Lite disables the context and false-positive analysis, reporting
	// raw pattern hits with a fixed confidence.
	Lite bool
}

func (o Options) withDefaults() Options {
	if o.ContextWindow <= 0 {
		o.ContextWindow = DefaultContextWindow
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if o.EvalBudget <= 0 {
		o.EvalBudget = DefaultEvalBudget
	}
	return o
}

// Scanner matches template rules against raw file content. It is
// stateless across files except for hint-word memoization, so one
// instance may scan files sequentially; workers should use ScanFile's
// pure output and merge results themselves.
type Scanner struct {
	templates []*rules.Rule
	extMap    map[string][]*rules.Rule
	hints     map[string][]string
	opts      Options
}

// NewScanner routes each rule by its declared file extensions and
// precomputes the per-rule hint words from the raw patterns.
func NewScanner(templates []*rules.Rule, opts Options) *Scanner {
	s := &Scanner{
		templates: templates,
		extMap:    make(map[string][]*rules.Rule),
		hints:     make(map[string][]string),
		opts:      opts.withDefaults(),
	}
	for _, rule := range templates {
		for _, ext := range rule.FileExts {
			s.extMap[ext] = append(s.extMap[ext], rule)
		}
		if !rule.ForceRegex {
			s.hints[rule.ID] = hintWords(rule.RawPatterns)
		}
	}
	return s
}

// hintWords extracts literal words of three or more characters from the
// raw patterns; they join the base hints for the containment prefilter.
func hintWords(patterns []string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, h := range baseHints {
		if !seen[h] {
			seen[h] = true
			words = append(words, h)
		}
	}
	for _, pat := range patterns {
		for _, w := range wordPattern.FindAllString(pat, -1) {
			w = strings.ToLower(w)
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
	}
	return words
}

// Candidate reports whether the scanner has any rule routed to the file's
// extension, so the orchestrator can skip irrelevant files early.
func (s *Scanner) Candidate(path string) bool {
	ext := fileExt(path)
	return javaRelatedExts[ext] || len(s.extMap[ext]) > 0
}

func fileExt(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// hit is one matched line before grouping.
type hit struct {
	line       int
	confidence float64
}

// ScanFile matches every routed rule against the file content and returns
// the grouped findings. relPath is the project-relative path reported in
// the finding; content is the raw file text.
func (s *Scanner) ScanFile(relPath string, content []byte) []issue.Vulnerability {
	ext := fileExt(relPath)
	ruleSet := s.extMap[ext]
	if javaRelatedExts[ext] {
		ruleSet = s.templates
	}
	if len(ruleSet) == 0 {
		return nil
	}

	src := string(content)
	lines := strings.Split(src, "\n")
	var findings []issue.Vulnerability
	// one finding per (file, vulType): repeated hits of the same
	// weakness class in one file collapse into the first report
	vulTypeSeen := make(map[string]bool)
	budget := s.opts.EvalBudget

	for _, rule := range ruleSet {
		if vulTypeSeen[rule.VulType] {
			continue
		}
		hits := s.matchRule(rule, ext, lines, &budget)
		if len(hits) == 0 {
			continue
		}
		// first passing group wins: one finding per weakness class
		// per file keeps repeated hits from flooding the report
		for _, group := range groupAdjacent(hits) {
			if group.confidence < s.opts.MinConfidence {
				continue
			}
			findings = append(findings, s.finding(rule, relPath, group, src))
			vulTypeSeen[rule.VulType] = true
			break
		}
	}
	return findings
}

// matchRule collects the matching lines for one rule, applying the hint
// prefilter, substring gates, false-positive filter, entropy gate and the
// context confidence model.
func (s *Scanner) matchRule(rule *rules.Rule, ext string, lines []string, budget *int) []hit {
	hints := s.hints[rule.ID]
	var hits []hit
	for i, line := range lines {
		if *budget <= 0 {
			break
		}
		if len(line) > maxLineLength {
			continue
		}
		lower := strings.ToLower(line)
		if !rule.ForceRegex && len(hints) > 0 && !containsAny(lower, hints) {
			continue
		}
		matched := ""
		for _, p := range rule.Patterns() {
			*budget--
			if m := p.FindString(line); m != "" {
				matched = m
				break
			}
		}
		if matched == "" {
			continue
		}
		if s.opts.ApplyMustSubstrings && !rule.ContextAllowed(line, true) {
			continue
		}
		if rule.Entropy && !secretEntropy(matched) {
			continue
		}

		lineNo := i + 1
		if s.opts.Lite {
			hits = append(hits, hit{line: lineNo, confidence: 0.8})
			continue
		}
		if s.isFalsePositive(line, lines, lineNo) {
			continue
		}
		conf := s.contextScore(rule, lines, lineNo, ext)
		hits = append(hits, hit{line: lineNo, confidence: conf})
	}
	return hits
}

func containsAny(lower string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// secretEntropy decides whether a matched value looks like a real secret.
// The candidate token is the longest unquoted word of the match; weak or
// masked values (password=***, changeme) fail the gate.
func secretEntropy(match string) bool {
	token := match
	if idx := strings.LastIndexAny(match, "=:"); idx >= 0 && idx+1 < len(match) {
		token = match[idx+1:]
	}
	token = strings.Trim(strings.TrimSpace(token), `"'`)
	if len(token) < 8 || strings.Trim(token, "*") == "" {
		return false
	}
	return zxcvbn.PasswordStrength(token, nil).Entropy >= secretEntropyFloor*float64(len(token))/4
}

// isFalsePositive recognizes hits living in comments, fully quoted
// literals without template expressions, and masked config values.
func (s *Scanner) isFalsePositive(line string, lines []string, lineNo int) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "<!--") {
		return true
	}
	if inBlockComment(lines, lineNo, s.opts.ContextWindow) {
		return true
	}
	if strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) &&
		!strings.Contains(line, "${") && !strings.Contains(line, "<%=") && !strings.Contains(line, "$!") {
		return true
	}
	if maskedValuePattern.MatchString(line) {
		return true
	}
	return false
}

// inBlockComment walks the context window backwards looking for an
// unclosed block or HTML comment opener.
func inBlockComment(lines []string, lineNo, window int) bool {
	start := lineNo - 1 - window
	if start < 0 {
		start = 0
	}
	open := false
	for i := start; i < lineNo-1 && i < len(lines); i++ {
		l := lines[i]
		if strings.Contains(l, "/*") || strings.Contains(l, "<!--") {
			open = true
		}
		if strings.Contains(l, "*/") || strings.Contains(l, "-->") {
			open = false
		}
	}
	return open
}

// contextScore computes a hit's confidence from its surroundings: source
// pattern co-occurrence raises it, sanitizer indicators lower it, and
// JSP-family files get a small uplift because expression output there is
// rendered directly.
func (s *Scanner) contextScore(rule *rules.Rule, lines []string, lineNo int, ext string) float64 {
	window := s.opts.ContextWindow
	start := lineNo - 1 - window
	if start < 0 {
		start = 0
	}
	end := lineNo + window
	if end > len(lines) {
		end = len(lines)
	}
	context := strings.ToLower(strings.Join(lines[start:end], " "))

	score := issue.DefaultConfidence + rule.Specificity() - 0.15
	inputs := 0
	for _, src := range inputIndicators {
		if strings.Contains(context, src) {
			inputs++
		}
	}
	switch {
	case inputs >= 2:
		score += 0.25
	case inputs == 1:
		score += 0.15
	}
	sanitizers := 0
	for _, kw := range sanitizerIndicators {
		if strings.Contains(context, kw) {
			sanitizers++
		}
	}
	switch {
	case sanitizers >= 2:
		score -= 0.4
	case sanitizers == 1:
		score -= 0.25
	}
	if ext == "jsp" || ext == "jspx" {
		score += 0.05
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// group is a run of adjacent hit lines reported as one finding.
type group struct {
	start, end int
	lines      []int
	confidence float64
}

// groupAdjacent folds consecutive hit lines into ranges, keeping the best
// confidence seen inside each range.
func groupAdjacent(hits []hit) []group {
	sort.Slice(hits, func(i, j int) bool { return hits[i].line < hits[j].line })
	var groups []group
	for _, h := range hits {
		if n := len(groups); n > 0 && h.line == groups[n-1].end+1 {
			g := &groups[n-1]
			g.end = h.line
			g.lines = append(g.lines, h.line)
			if h.confidence > g.confidence {
				g.confidence = h.confidence
			}
			continue
		}
		groups = append(groups, group{start: h.line, end: h.line, lines: []int{h.line}, confidence: h.confidence})
	}
	return groups
}

// finding assembles a Vulnerability for one hit group. Severity starts at
// the rule's hint and is demoted when confidence is weak: below 0.5 a
// High finding drops to Medium, below 0.3 everything drops to Low.
// Template findings never carry call chains; their evidence is the
// grouped line set plus a numbered excerpt of the surrounding source.
func (s *Scanner) finding(rule *rules.Rule, relPath string, g group, src string) issue.Vulnerability {
	severity := rule.SeverityHint
	if g.confidence < 0.3 {
		severity = issue.Low
	} else if g.confidence < 0.5 && severity > issue.Medium {
		severity = issue.Medium
	}

	mode := "full"
	snippet := ""
	if s.opts.Lite {
		mode = "lite"
	} else {
		start := int64(g.start - issue.SnippetOffset)
		if start < 1 {
			start = 1
		}
		snippet, _ = issue.CodeSnippet(strings.NewReader(src), start, int64(g.end+issue.SnippetOffset))
	}
	return issue.Vulnerability{
		VulType:         rule.VulType,
		Sink:            rule.ID,
		SinkDescription: rule.Description,
		Severity:        severity,
		Confidence:      g.confidence,
		Patterns:        []string{rule.ID},
		ScanMode:        mode,
		FilePath:        relPath,
		GroupLines:      append([]int(nil), g.lines...),
		Snippet:         snippet,
	}
}
