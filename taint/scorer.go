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

package taint

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sinktracer/sinktracer/issue"
	"github.com/sinktracer/sinktracer/javasrc"
	"github.com/sinktracer/sinktracer/rules"
)

// Mode selects the enrichment depth.
type Mode int

const (
	// Full extracts snippets for every chain node and runs the complete
	// sanitizer and confidence analysis.
	Full Mode = iota
	// Lite produces chains only; sanitizer and confidence analysis runs
	// when liteEnrich is enabled, snippet extraction never does.
	Lite
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	if m == Lite {
		return "lite"
	}
	return "full"
}

// ParseMode maps the request string to a Mode, defaulting to Full.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, "lite") {
		return Lite
	}
	return Full
}

const (
	baseConfidence   = 0.5
	entryPointBonus  = 0.05
	shortChainBonus  = 0.1
	longChainPenalty = 0.1
	oneSanitizer     = 0.3
	manySanitizers   = 0.4
	patternBonus     = 0.1
	shortChainLen    = 3
	longChainLen     = 10
)

// sqlConcatPatterns flag string-built SQL in chain node bodies. A hit
// raises confidence for SQL-type sinks only.
var sqlConcatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\bStringBuilder\b.*append\s*\(`),
	regexp.MustCompile(`(?is)\bStringBuffer\b.*append\s*\(`),
	regexp.MustCompile(`(?i)sql\s*\+=\s*`),
	regexp.MustCompile(`String\.format\s*\(`),
}

// Scorer turns raw chains into scored Vulnerability records. Like the
// backtracker it is read-only after construction and shared by workers.
type Scorer struct {
	graph *javasrc.Graph
	repo  *rules.Repository
	mode  Mode
	// liteEnrich keeps sanitizer and confidence analysis in lite mode.
	liteEnrich bool
	applyMust  bool

	sourceHolders    map[string][]*rules.Rule
	sanitizerHolders map[string][]*rules.Rule
}

// NewScorer indexes the graph against source and sanitizer rules.
func NewScorer(g *javasrc.Graph, repo *rules.Repository, mode Mode, liteEnrich, applyMust bool) *Scorer {
	return &Scorer{
		graph:            g,
		repo:             repo,
		mode:             mode,
		liteEnrich:       liteEnrich,
		applyMust:        applyMust,
		sourceHolders:    indexHolders(g, repo.Sources(), applyMust),
		sanitizerHolders: indexHolders(g, repo.Sanitizers(), applyMust),
	}
}

// Enrich assembles a Vulnerability from every chain sharing one sink
// occurrence. Chains come in source-first order; confidence is the best
// chain's score and severity comes from the sink rule's hint, demoted one
// level when any chain was sanitized. Enrichment never discards a chain:
// when analysis is skipped or fails the chain keeps default confidence.
func (s *Scorer) Enrich(sinkRule *rules.Rule, sinkToken string, chains [][]string) issue.Vulnerability {
	vuln := issue.Vulnerability{
		VulType:         sinkRule.VulType,
		Sink:            sinkToken,
		SinkDescription: sinkRule.Description,
		Severity:        sinkRule.SeverityHint,
		Confidence:      issue.DefaultConfidence,
		ScanMode:        s.mode.String(),
		CallChains:      make([][]issue.ChainNode, 0, len(chains)),
	}

	enrich := s.mode == Full || s.liteEnrich
	sourceSet := make(map[string]bool)
	sanitizedSet := make(map[string]bool)
	patternSet := make(map[string]bool)
	best := 0.0

	for _, chain := range chains {
		vuln.CallChains = append(vuln.CallChains, s.chainNodes(chain))
		if !enrich {
			continue
		}
		sources := s.chainRules(chain, s.sourceHolders)
		sanitizers := s.chainRules(chain, s.sanitizerHolders)
		patterns := s.patternHits(sinkRule, chain)
		for _, r := range sources {
			sourceSet[r.ID] = true
		}
		for _, r := range sanitizers {
			sanitizedSet[r.ID] = true
		}
		for _, p := range patterns {
			patternSet[p] = true
		}
		if score := s.scoreChain(chain, sources, sanitizers, patterns); score > best {
			best = score
		}
	}

	vuln.ChainCount = len(vuln.CallChains)
	if enrich {
		vuln.Sources = sortedKeys(sourceSet)
		vuln.SanitizedBy = sortedKeys(sanitizedSet)
		vuln.Patterns = sortedKeys(patternSet)
		if len(chains) > 0 {
			vuln.Confidence = best
		}
		if len(vuln.SanitizedBy) > 0 {
			vuln.Severity = vuln.Severity.Demote()
		}
	}
	return vuln
}

// chainNodes materializes one chain into display nodes. Full mode attaches
// the body snippet; lite mode leaves it empty. Each node resolves against
// the argument count its predecessor was seen calling it with, so
// overloaded definitions land on the right method.
func (s *Scorer) chainNodes(chain []string) []issue.ChainNode {
	nodes := make([]issue.ChainNode, 0, len(chain))
	for i, token := range chain {
		argCount := -1
		if i > 0 {
			argCount = s.graph.CallArgs(chain[i-1], token)
		}
		node := issue.ChainNode{Function: token}
		if file, line, snippet, ok := s.graph.ExtractMethod(token, argCount); ok {
			node.File = file
			node.Line = line
			if s.mode == Full {
				node.Snippet = snippet
			}
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (s *Scorer) chainRules(chain []string, holders map[string][]*rules.Rule) []*rules.Rule {
	var out []*rules.Rule
	for _, token := range chain {
		for _, r := range holders[token] {
			out = appendRuleOnce(out, r)
		}
	}
	return out
}

// patternHits runs the text heuristics over the first chain nodes' bodies.
// Only the head of the chain is inspected to keep enrichment cheap.
func (s *Scorer) patternHits(sinkRule *rules.Rule, chain []string) []string {
	if s.mode != Full || !strings.Contains(strings.ToUpper(sinkRule.VulType), "SQL") {
		return nil
	}
	limit := len(chain)
	if limit > 3 {
		limit = 3
	}
	for i, token := range chain[:limit] {
		argCount := -1
		if i > 0 {
			argCount = s.graph.CallArgs(chain[i-1], token)
		}
		_, _, snippet, ok := s.graph.ExtractMethod(token, argCount)
		if !ok || snippet == "" {
			continue
		}
		for _, p := range sqlConcatPatterns {
			if p.MatchString(snippet) {
				return []string{"SQL_CONCAT_TEXT"}
			}
		}
	}
	return nil
}

// scoreChain computes one chain's confidence: the base score plus source
// rule specificity, a short-chain bonus or long-chain penalty, an entry
// point bonus, a pattern-hit bonus, minus the sanitizer penalty. The
// result is clamped to [0,1].
func (s *Scorer) scoreChain(chain []string, sources, sanitizers []*rules.Rule, patterns []string) float64 {
	score := baseConfidence
	if len(sources) > 0 {
		specificity := 0.0
		for _, r := range sources {
			if sp := r.Specificity(); sp > specificity {
				specificity = sp
			}
		}
		score += specificity
	}
	switch n := len(sanitizers); {
	case n >= 2:
		score -= manySanitizers
	case n == 1:
		score -= oneSanitizer
	}
	if len(chain) <= shortChainLen {
		score += shortChainBonus
	} else if len(chain) > longChainLen {
		score -= longChainPenalty
	}
	if len(chain) > 0 && s.graph.IsEntryPoint(chain[0]) {
		score += entryPointBonus
	}
	if len(patterns) > 0 {
		score += patternBonus
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
