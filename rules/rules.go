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

// Package rules loads and indexes the source, sink, sanitizer and template
// rule definitions that drive a scan. Rules are immutable after load and
// safe for concurrent use by all workers.
package rules

import (
	"regexp"
	"strings"

	"github.com/sinktracer/sinktracer/issue"
)

// Category partitions the rule set. Dispatch on the category is explicit;
// every category shares the same compiled matching machinery.
type Category int

const (
	// Source rules identify origins of untrusted data
	Source Category = iota
	// Sink rules identify dangerous operations
	Sink
	// Sanitizer rules identify functions presumed to neutralize taint
	Sanitizer
	// Template rules drive the pattern-only template scanner
	Template
)

// String returns the document key prefix for the category.
func (c Category) String() string {
	switch c {
	case Source:
		return "source"
	case Sink:
		return "sink"
	case Sanitizer:
		return "sanitizer"
	case Template:
		return "template"
	}
	return "unknown"
}

// signature is a compiled "Class:methodA|methodB" rule entry. Class
// matching accepts both fully qualified and short class names.
type signature struct {
	class      string
	classShort string
	methods    map[string]bool
}

// Rule is a single loaded rule with its pattern compiled at load time.
type Rule struct {
	ID              string
	Category        Category
	VulType         string
	Description     string
	SeverityHint    issue.Score
	LanguageContext string

	// Signature entries for source/sink/sanitizer rules.
	signatures []signature
	// Compiled regex patterns for template rules.
	patterns    []*regexp.Regexp
	RawPatterns []string

	FileExts          []string
	MustSubstrings    []string
	ExcludeSubstrings []string

	// Entropy marks secret-detection rules whose matched value must pass
	// an entropy gate before being reported.
	Entropy bool
	// ForceRegex skips the hint-word prefilter in the template scanner.
	ForceRegex bool
}

// MatchSignature reports whether a "Class:method" call signature matches
// one of the rule's signature entries. Matching is case-sensitive; class
// names compare on both the qualified and the short form.
func (r *Rule) MatchSignature(sig string) bool {
	cls, mtd, ok := splitSignature(sig)
	if !ok {
		return false
	}
	clsShort := shortName(cls)
	for _, s := range r.signatures {
		if (cls == s.class || clsShort == s.classShort) && s.methods[mtd] {
			return true
		}
	}
	return false
}

// MatchContent reports whether any of the rule's regex patterns match the
// given line of content.
func (r *Rule) MatchContent(line string) bool {
	for _, p := range r.patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// Patterns exposes the compiled regex patterns for callers that need to
// drive matching themselves (the template scanner memoizes matches).
func (r *Rule) Patterns() []*regexp.Regexp {
	return r.patterns
}

// Specificity scores how precise the rule's pattern is, feeding the
// confidence model. Signature literals beat regexes; mustSubstrings
// tighten either kind.
func (r *Rule) Specificity() float64 {
	score := 0.15
	if len(r.signatures) > 0 {
		score = 0.25
	}
	if len(r.MustSubstrings) > 0 {
		score += 0.05
	}
	return score
}

// ContextAllowed applies the mustSubstrings/excludeSubstrings precision
// control to the context window around a hit. When apply is false the rule
// matches unconditionally; both engines honor the toggle identically.
func (r *Rule) ContextAllowed(window string, apply bool) bool {
	if !apply {
		return true
	}
	lower := strings.ToLower(window)
	for _, sub := range r.ExcludeSubstrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return false
		}
	}
	for _, sub := range r.MustSubstrings {
		if !strings.Contains(lower, strings.ToLower(sub)) {
			return false
		}
	}
	return true
}

func splitSignature(sig string) (cls, mtd string, ok bool) {
	idx := strings.Index(sig, ":")
	if idx <= 0 || idx == len(sig)-1 {
		return "", "", false
	}
	cls = strings.TrimSpace(sig[:idx])
	mtd = strings.TrimSpace(sig[idx+1:])
	if cls == "" || mtd == "" {
		return "", "", false
	}
	return cls, mtd, true
}

func shortName(cls string) string {
	if idx := strings.LastIndex(cls, "."); idx >= 0 {
		return cls[idx+1:]
	}
	return cls
}

// compileSignature parses a "Class:methodA|methodB" entry.
func compileSignature(entry string) (signature, bool) {
	cls, methods, ok := splitSignature(entry)
	if !ok {
		return signature{}, false
	}
	set := make(map[string]bool)
	for _, m := range strings.Split(methods, "|") {
		m = strings.TrimSpace(m)
		if m != "" {
			set[m] = true
		}
	}
	if len(set) == 0 {
		return signature{}, false
	}
	return signature{class: cls, classShort: shortName(cls), methods: set}, true
}
