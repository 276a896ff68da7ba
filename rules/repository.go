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

package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sinktracer/sinktracer/issue"
)

// BadPattern records a rule entry that failed to compile. Bad patterns are
// diagnostics, never fatal: the rest of the document stays active.
type BadPattern struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// document is the on-disk rule file shape, accepted as JSON or YAML.
type document struct {
	SinkRules      []sinkRuleDoc     `json:"sink_rules" yaml:"sink_rules"`
	SourceRules    []sourceRuleDoc   `json:"source_rules" yaml:"source_rules"`
	SanitizerRules []sanitizerDoc    `json:"sanitizer_rules" yaml:"sanitizer_rules"`
	TemplateRules  []templateRuleDoc `json:"template_rules" yaml:"template_rules"`
}

type sinkRuleDoc struct {
	SinkName        string   `json:"sink_name" yaml:"sink_name"`
	SinkDesc        string   `json:"sink_desc" yaml:"sink_desc"`
	SeverityLevel   string   `json:"severity_level" yaml:"severity_level"`
	LanguageContext string   `json:"language_context" yaml:"language_context"`
	Sinks           []string `json:"sinks" yaml:"sinks"`
	MustSubstrings  []string `json:"must_substrings" yaml:"must_substrings"`
	ExcludeSubs     []string `json:"exclude_substrings" yaml:"exclude_substrings"`
}

type sourceRuleDoc struct {
	SourceName      string   `json:"source_name" yaml:"source_name"`
	Desc            string   `json:"desc" yaml:"desc"`
	LanguageContext string   `json:"language_context" yaml:"language_context"`
	Sources         []string `json:"sources" yaml:"sources"`
	MustSubstrings  []string `json:"must_substrings" yaml:"must_substrings"`
}

type sanitizerDoc struct {
	SanitizerName string   `json:"sanitizer_name" yaml:"sanitizer_name"`
	Desc          string   `json:"desc" yaml:"desc"`
	Sanitizers    []string `json:"sanitizers" yaml:"sanitizers"`
}

type templateRuleDoc struct {
	Name           string   `json:"name" yaml:"name"`
	VulType        string   `json:"vul_type" yaml:"vul_type"`
	Desc           string   `json:"desc" yaml:"desc"`
	Severity       string   `json:"severity" yaml:"severity"`
	FileExts       []string `json:"file_exts" yaml:"file_exts"`
	Patterns       []string `json:"patterns" yaml:"patterns"`
	MustSubstrings []string `json:"must_substrings" yaml:"must_substrings"`
	ExcludeSubs    []string `json:"exclude_substrings" yaml:"exclude_substrings"`
	Entropy        bool     `json:"entropy" yaml:"entropy"`
	ForceRegex     bool     `json:"force_regex" yaml:"force_regex"`
}

// Repository holds the category-indexed rule collections for one scan.
// Read-only after Load and safe for concurrent use.
type Repository struct {
	sources     map[string]*Rule
	sinks       map[string]*Rule
	sanitizers  map[string]*Rule
	templates   []*Rule
	badPatterns []BadPattern
}

// Load reads, validates and compiles a rule document. The format is chosen
// by file extension (.yaml/.yml, otherwise JSON). Schema violations and
// unreadable files are load errors; individual malformed patterns are not.
func Load(path string) (*Repository, error) {
	data, err := os.ReadFile(path) // #nosec
	if err != nil {
		return nil, fmt.Errorf("unable to read rules file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse compiles a rule document from raw bytes. ext selects YAML decoding
// for ".yaml"/".yml"; anything else is treated as JSON.
func Parse(data []byte, ext string) (*Repository, error) {
	if err := validateSchema(data, ext); err != nil {
		return nil, err
	}

	var doc document
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err := yaml.Unmarshal(data, &doc)
		if err != nil {
			return nil, fmt.Errorf("rules document is not valid YAML: %w", err)
		}
	default:
		decoder := json.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("rules document is not valid JSON: %w", err)
		}
	}

	repo := &Repository{
		sources:    make(map[string]*Rule),
		sinks:      make(map[string]*Rule),
		sanitizers: make(map[string]*Rule),
	}
	repo.loadSinks(doc.SinkRules)
	repo.loadSources(doc.SourceRules)
	repo.loadSanitizers(doc.SanitizerRules)
	repo.loadTemplates(doc.TemplateRules)
	return repo, nil
}

func (r *Repository) loadSinks(docs []sinkRuleDoc) {
	for i, d := range docs {
		id := d.SinkName
		if id == "" {
			id = fmt.Sprintf("SINK_%d", i)
		}
		severity, err := issue.ParseScore(d.SeverityLevel)
		if err != nil {
			r.badPatterns = append(r.badPatterns, BadPattern{RuleID: id, Reason: err.Error()})
		}
		rule := &Rule{
			ID:                id,
			Category:          Sink,
			VulType:           d.SinkName,
			Description:       d.SinkDesc,
			SeverityHint:      severity,
			LanguageContext:   d.LanguageContext,
			MustSubstrings:    d.MustSubstrings,
			ExcludeSubstrings: d.ExcludeSubs,
		}
		r.compileSignatures(rule, d.Sinks)
		if len(rule.signatures) > 0 {
			r.sinks[id] = rule
		}
	}
}

func (r *Repository) loadSources(docs []sourceRuleDoc) {
	for i, d := range docs {
		id := d.SourceName
		if id == "" {
			id = fmt.Sprintf("SOURCE_%d", i)
		}
		rule := &Rule{
			ID:              id,
			Category:        Source,
			VulType:         d.SourceName,
			Description:     d.Desc,
			LanguageContext: d.LanguageContext,
			MustSubstrings:  d.MustSubstrings,
		}
		r.compileSignatures(rule, d.Sources)
		if len(rule.signatures) > 0 {
			r.sources[id] = rule
		}
	}
}

func (r *Repository) loadSanitizers(docs []sanitizerDoc) {
	for i, d := range docs {
		id := d.SanitizerName
		if id == "" {
			id = fmt.Sprintf("SANITIZER_%d", i)
		}
		rule := &Rule{
			ID:          id,
			Category:    Sanitizer,
			VulType:     d.SanitizerName,
			Description: d.Desc,
		}
		r.compileSignatures(rule, d.Sanitizers)
		if len(rule.signatures) > 0 {
			r.sanitizers[id] = rule
		}
	}
}

func (r *Repository) loadTemplates(docs []templateRuleDoc) {
	for i, d := range docs {
		id := d.Name
		if id == "" {
			id = d.VulType
		}
		if id == "" {
			id = fmt.Sprintf("TEMPLATE_%d", i)
		}
		severity, err := issue.ParseScore(d.Severity)
		if err != nil {
			r.badPatterns = append(r.badPatterns, BadPattern{RuleID: id, Reason: err.Error()})
		}
		vulType := d.VulType
		if vulType == "" {
			vulType = id
		}
		rule := &Rule{
			ID:                id,
			Category:          Template,
			VulType:           vulType,
			Description:       d.Desc,
			SeverityHint:      severity,
			FileExts:          normalizeExts(d.FileExts),
			MustSubstrings:    d.MustSubstrings,
			ExcludeSubstrings: d.ExcludeSubs,
			Entropy:           d.Entropy,
			ForceRegex:        d.ForceRegex,
		}
		for _, pat := range d.Patterns {
			compiled, err := regexp.Compile("(?is)" + pat)
			if err != nil {
				r.badPatterns = append(r.badPatterns, BadPattern{RuleID: id, Reason: err.Error()})
				continue
			}
			rule.patterns = append(rule.patterns, compiled)
			rule.RawPatterns = append(rule.RawPatterns, pat)
		}
		if len(rule.patterns) > 0 {
			r.templates = append(r.templates, rule)
		}
	}
}

func (r *Repository) compileSignatures(rule *Rule, entries []string) {
	for _, entry := range entries {
		sig, ok := compileSignature(entry)
		if !ok {
			r.badPatterns = append(r.badPatterns, BadPattern{
				RuleID: rule.ID,
				Reason: fmt.Sprintf("invalid signature entry %q", entry),
			})
			continue
		}
		rule.signatures = append(rule.signatures, sig)
	}
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Lookup returns every rule in the category whose pattern matches the
// given signature or content token.
func (r *Repository) Lookup(cat Category, text string) []*Rule {
	var hits []*Rule
	switch cat {
	case Source, Sink, Sanitizer:
		for _, rule := range r.categoryIndex(cat) {
			if rule.MatchSignature(text) {
				hits = append(hits, rule)
			}
		}
	case Template:
		for _, rule := range r.templates {
			if rule.MatchContent(text) {
				hits = append(hits, rule)
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	return hits
}

func (r *Repository) categoryIndex(cat Category) map[string]*Rule {
	switch cat {
	case Source:
		return r.sources
	case Sink:
		return r.sinks
	case Sanitizer:
		return r.sanitizers
	}
	return nil
}

// Sinks returns the sink rules, optionally pre-filtered to the selected
// sink type identifiers. An empty filter keeps everything.
func (r *Repository) Sinks(types []string) []*Rule {
	selected := make(map[string]bool, len(types))
	for _, t := range types {
		selected[t] = true
	}
	var out []*Rule
	for _, rule := range r.sinks {
		if len(selected) == 0 || selected[rule.ID] {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Templates returns the template rules, optionally pre-filtered to the
// selected type identifiers.
func (r *Repository) Templates(types []string) []*Rule {
	selected := make(map[string]bool, len(types))
	for _, t := range types {
		selected[t] = true
	}
	var out []*Rule
	for _, rule := range r.templates {
		if len(selected) == 0 || selected[rule.ID] {
			out = append(out, rule)
		}
	}
	return out
}

// Sources returns all source rules.
func (r *Repository) Sources() []*Rule {
	out := make([]*Rule, 0, len(r.sources))
	for _, rule := range r.sources {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sanitizers returns all sanitizer rules.
func (r *Repository) Sanitizers() []*Rule {
	out := make([]*Rule, 0, len(r.sanitizers))
	for _, rule := range r.sanitizers {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SinkTypes returns the distinct sink identifiers currently loaded,
// covering both call-graph sink rules and template rules. Callers use this
// to build a selection filter applied before backtracking.
func (r *Repository) SinkTypes() []string {
	seen := make(map[string]bool)
	for id := range r.sinks {
		seen[id] = true
	}
	for _, rule := range r.templates {
		seen[rule.ID] = true
	}
	types := make([]string, 0, len(seen))
	for id := range seen {
		types = append(types, id)
	}
	sort.Strings(types)
	return types
}

// BadPatterns returns the malformed entries collected during load as
// (ruleId, reason) pairs for diagnostics.
func (r *Repository) BadPatterns() []BadPattern {
	return r.badPatterns
}
