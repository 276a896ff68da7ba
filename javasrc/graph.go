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

package javasrc

import (
	"sort"
	"strings"
)

// Edge is one directed call edge in the graph arena. Caller indexes the
// node slice; the callee stays a token because it may resolve to zero,
// one or several definitions.
type Edge struct {
	Caller      int
	CalleeToken string
	Line        int
	ArgCount    int
}

// Graph is the whole-project approximate call graph. Nodes live in a flat
// arena indexed by id and edges are (index, token) pairs, which keeps the
// cyclic structure free of pointer cycles and cheap to share. The graph is
// written only by the orchestrator during the indexing phase and read-only
// afterwards.
type Graph struct {
	nodes   []FunctionSite
	byToken map[string][]int
	edges   []Edge
	// reverse maps a callee token to the callers that invoke it,
	// built once after indexing
	reverse map[string][]int
	// callArgs records the argument count observed on each
	// caller-to-callee pair so overloads can be disambiguated later
	callArgs map[callKey]int
	files    map[string]*ParsedFile
}

type callKey struct {
	caller string
	callee string
}

// NewGraph returns an empty call graph.
func NewGraph() *Graph {
	return &Graph{
		byToken:  make(map[string][]int),
		reverse:  make(map[string][]int),
		callArgs: make(map[callKey]int),
		files:    make(map[string]*ParsedFile),
	}
}

// AddFile merges one parsed file into the arena. Only the orchestrator
// calls this, so no locking happens here.
func (g *Graph) AddFile(pf *ParsedFile) {
	base := len(g.nodes)
	for i := range pf.Functions {
		fn := pf.Functions[i]
		id := base + i
		g.nodes = append(g.nodes, fn)
		g.byToken[fn.Token()] = append(g.byToken[fn.Token()], id)
	}
	for _, cs := range pf.CallSites {
		g.edges = append(g.edges, Edge{
			Caller:      base + cs.Caller,
			CalleeToken: cs.CalleeToken,
			Line:        cs.Line,
			ArgCount:    cs.ArgCount,
		})
	}
	g.files[pf.Path] = pf
}

// BuildReverse indexes edges by callee token. Call once after the last
// AddFile; backtracking reads the result concurrently.
func (g *Graph) BuildReverse() {
	g.reverse = make(map[string][]int, len(g.byToken))
	g.callArgs = make(map[callKey]int, len(g.edges))
	for _, e := range g.edges {
		g.reverse[e.CalleeToken] = append(g.reverse[e.CalleeToken], e.Caller)
		k := callKey{g.nodes[e.Caller].Token(), e.CalleeToken}
		if prev, seen := g.callArgs[k]; seen {
			if prev != e.ArgCount {
				// conflicting observations keep the ambiguity
				g.callArgs[k] = -1
			}
		} else {
			g.callArgs[k] = e.ArgCount
		}
	}
	for token, callers := range g.reverse {
		g.reverse[token] = dedupSorted(callers)
	}
}

// CallArgs returns the argument count observed on the edge between a
// caller and callee token, or -1 when the pair was never seen or its
// observations disagree.
func (g *Graph) CallArgs(callerToken, calleeToken string) int {
	if n, ok := g.callArgs[callKey{callerToken, calleeToken}]; ok {
		return n
	}
	return -1
}

func dedupSorted(ids []int) []int {
	sort.Ints(ids)
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// Node returns the function site stored under the given arena id.
func (g *Graph) Node(id int) *FunctionSite {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return &g.nodes[id]
}

// Len returns the number of indexed functions.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Edges returns every observed call edge for sink matching.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Callers returns the arena ids of every function that invokes the given
// callee token.
func (g *Graph) Callers(token string) []int {
	return g.reverse[token]
}

// Resolve maps a callee token to candidate definitions. When several
// same-named functions exist, candidates whose parameter count equals the
// observed argument count are preferred; if none line up, every candidate
// is returned — ambiguity is preserved rather than collapsed.
func (g *Graph) Resolve(token string, argCount int) []int {
	ids := g.byToken[token]
	if len(ids) <= 1 || argCount < 0 {
		return ids
	}
	var exact []int
	for _, id := range ids {
		if g.nodes[id].ParamCount == argCount {
			exact = append(exact, id)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return ids
}

// HasParameters reports whether the function takes at least one argument.
// A token with no known definition defaults to true so unresolved callers
// stay eligible during backtracking.
func (g *Graph) HasParameters(token string) bool {
	ids := g.byToken[token]
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if g.nodes[id].ParamCount > 0 {
			return true
		}
	}
	return false
}

// IsEntryPoint reports whether any definition of the token carries an
// HTTP mapping annotation.
func (g *Graph) IsEntryPoint(token string) bool {
	for _, id := range g.byToken[token] {
		if g.nodes[id].EntryPoint {
			return true
		}
	}
	return false
}

// File returns the parsed file for a path, when retained.
func (g *Graph) File(path string) *ParsedFile {
	return g.files[path]
}

// ExtractMethod finds the definition behind a "Class:method" token and
// returns its file, start line and body snippet. argCount disambiguates
// overloads the way Resolve does; pass -1 when the count is unknown.
// Used by enrichment and by the per-chain source lookup; it never
// re-reads the file system.
func (g *Graph) ExtractMethod(token string, argCount int) (file string, line int, snippet string, ok bool) {
	ids := g.Resolve(token, argCount)
	if len(ids) == 0 {
		// fall back to short-name matching for tokens whose class part
		// came through fully qualified
		if idx := strings.LastIndex(token, "."); idx >= 0 && idx < strings.Index(token, ":") {
			ids = g.Resolve(token[idx+1:], argCount)
		}
	}
	if len(ids) == 0 {
		return "", 0, "", false
	}
	fn := g.nodes[ids[0]]
	return fn.File, fn.StartLine, fn.BodySnippet, true
}
