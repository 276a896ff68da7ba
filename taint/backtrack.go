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

// Package taint implements bounded backward search over the approximate
// call graph: starting from a call site that matches a sink rule, it walks
// caller edges upward until it reaches a function that touches a source
// rule, collecting every distinct source-to-sink chain within the
// configured depth, chain cap and deadlines.
package taint

import (
	"context"
	"sort"
	"time"

	"github.com/sinktracer/sinktracer/javasrc"
	"github.com/sinktracer/sinktracer/rules"
)

const (
	// DefaultDepth bounds hops from sink function to candidate source.
	DefaultDepth = 15
	// DefaultMaxChains caps distinct paths collected per sink occurrence.
	DefaultMaxChains = 50
	// DefaultChainDeadline is the wall-clock budget for one sink's search.
	DefaultChainDeadline = 60 * time.Second
)

// Options bound a single backtracking run. Zero values fall back to the
// package defaults.
type Options struct {
	Depth         int
	MaxChains     int
	ChainDeadline time.Duration
	// ApplyMustSubstrings toggles the mustSubstrings/excludeSubstrings
	// context gate when matching rules against function bodies.
	ApplyMustSubstrings bool
}

func (o Options) withDefaults() Options {
	if o.Depth <= 0 {
		o.Depth = DefaultDepth
	}
	if o.MaxChains <= 0 {
		o.MaxChains = DefaultMaxChains
	}
	if o.ChainDeadline <= 0 {
		o.ChainDeadline = DefaultChainDeadline
	}
	return o
}

// SinkHit is one call site whose callee matches a sink rule. Token is the
// "Class:method" sink point that seeds the backward search.
type SinkHit struct {
	Rule  *rules.Rule
	Token string
}

// FindSinkHits scans every observed call edge against the sink rules and
// returns the distinct (rule, sink point) pairs, ordered for determinism.
// The mustSubstrings gate is evaluated against the calling function's
// body when apply is set.
func FindSinkHits(g *javasrc.Graph, sinkRules []*rules.Rule, apply bool) []SinkHit {
	type key struct {
		ruleID string
		token  string
	}
	seen := make(map[key]bool)
	var hits []SinkHit
	for _, e := range g.Edges() {
		for _, rule := range sinkRules {
			if !rule.MatchSignature(e.CalleeToken) {
				continue
			}
			if apply && len(rule.MustSubstrings)+len(rule.ExcludeSubstrings) > 0 {
				caller := g.Node(e.Caller)
				if caller == nil || !rule.ContextAllowed(caller.BodySnippet, true) {
					continue
				}
			}
			k := key{rule.ID, e.CalleeToken}
			if !seen[k] {
				seen[k] = true
				hits = append(hits, SinkHit{Rule: rule, Token: e.CalleeToken})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Rule.ID != hits[j].Rule.ID {
			return hits[i].Rule.ID < hits[j].Rule.ID
		}
		return hits[i].Token < hits[j].Token
	})
	return hits
}

// Backtracker runs the bounded backward search. It is read-only over the
// graph and rule repository, so one instance serves all workers.
type Backtracker struct {
	graph *javasrc.Graph
	repo  *rules.Repository
	opts  Options
	// sourceHolders maps a function token to the source rules whose
	// signatures appear among the function's outgoing calls.
	sourceHolders map[string][]*rules.Rule
}

// NewBacktracker indexes the graph's functions against the source rules
// once; the search itself only does map lookups per expansion.
func NewBacktracker(g *javasrc.Graph, repo *rules.Repository, opts Options) *Backtracker {
	b := &Backtracker{
		graph: g,
		repo:  repo,
		opts:  opts.withDefaults(),
	}
	b.sourceHolders = indexHolders(g, repo.Sources(), b.opts.ApplyMustSubstrings)
	return b
}

// indexHolders maps each function token to the rules matched by one of
// the function's outgoing call tokens.
func indexHolders(g *javasrc.Graph, ruleSet []*rules.Rule, apply bool) map[string][]*rules.Rule {
	holders := make(map[string][]*rules.Rule)
	for _, e := range g.Edges() {
		caller := g.Node(e.Caller)
		if caller == nil {
			continue
		}
		for _, rule := range ruleSet {
			if !rule.MatchSignature(e.CalleeToken) {
				continue
			}
			if apply && !rule.ContextAllowed(caller.BodySnippet, true) {
				continue
			}
			token := caller.Token()
			holders[token] = appendRuleOnce(holders[token], rule)
		}
	}
	return holders
}

func appendRuleOnce(list []*rules.Rule, rule *rules.Rule) []*rules.Rule {
	for _, r := range list {
		if r.ID == rule.ID {
			return list
		}
	}
	return append(list, rule)
}

// state is one in-flight path during BFS. path is ordered source-first;
// nodes is the per-path visited set that keeps cyclic graphs terminating
// while still letting one function appear in two completed chains.
type state struct {
	path  []string
	depth int
	nodes map[string]bool
}

// Trace collects every distinct source-to-sink chain ending at the given
// sink point. Exploration is breadth-first so the chain cap keeps the
// shortest, most direct paths. A chain whose search exceeds the per-chain
// deadline is abandoned, never emitted truncated; ctx cancellation stops
// the whole search with whatever completed so far.
func (b *Backtracker) Trace(ctx context.Context, sinkToken string) [][]string {
	var paths [][]string
	visited := make(map[string]map[int]bool)
	markVisited := func(token string, depth int) bool {
		depths := visited[token]
		if depths == nil {
			depths = make(map[int]bool)
			visited[token] = depths
		}
		if depths[depth] {
			return false
		}
		depths[depth] = true
		return true
	}

	start := time.Now()
	queue := []state{{
		path:  []string{sinkToken},
		depth: 0,
		nodes: map[string]bool{sinkToken: true},
	}}

	for len(queue) > 0 && len(paths) < b.opts.MaxChains {
		select {
		case <-ctx.Done():
			return paths
		default:
		}
		if time.Since(start) > b.opts.ChainDeadline {
			// deadline hit: in-progress paths are dropped wholesale
			return paths
		}

		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= b.opts.Depth-1 {
			continue
		}
		head := cur.path[0]
		for _, callerID := range b.graph.Callers(head) {
			caller := b.graph.Node(callerID)
			if caller == nil {
				continue
			}
			token := caller.Token()
			if cur.nodes[token] {
				continue
			}
			if !markVisited(token, cur.depth+1) {
				continue
			}
			if !b.graph.HasParameters(token) {
				// taint cannot flow into a zero-argument function
				continue
			}
			next := make([]string, 0, len(cur.path)+1)
			next = append(next, token)
			next = append(next, cur.path...)
			if len(b.sourceHolders[token]) > 0 {
				paths = append(paths, next)
				if len(paths) >= b.opts.MaxChains {
					return paths
				}
				continue
			}
			nodes := make(map[string]bool, len(cur.nodes)+1)
			for k := range cur.nodes {
				nodes[k] = true
			}
			nodes[token] = true
			queue = append(queue, state{path: next, depth: cur.depth + 1, nodes: nodes})
		}
	}
	return paths
}

// SourceRules returns the source rules whose signatures the given
// function token touches; the scorer uses this for specificity.
func (b *Backtracker) SourceRules(token string) []*rules.Rule {
	return b.sourceHolders[token]
}
