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

// Package javasrc performs a lexical pass over Java source files to
// extract function boundaries and call sites, and assembles them into an
// approximate call graph. It deliberately does no type binding: callee
// resolution is name-based with a per-file symbol table, and ambiguous
// resolutions are preserved rather than collapsed.
package javasrc

import (
	"fmt"
	"strings"
	"unicode"
)

// FunctionSite is one extracted method definition. Boundaries come from
// brace tracking, so StartLine/EndLine frame the whole body.
type FunctionSite struct {
	Name        string
	Class       string
	File        string
	StartLine   int
	EndLine     int
	ParamCount  int
	EntryPoint  bool
	BodySnippet string
}

// Token returns the "Class:method" identity used throughout the call graph.
func (f *FunctionSite) Token() string {
	return f.Class + ":" + f.Name
}

// CallSite is one directed call edge observed inside a function body.
// CalleeToken is "Class:method" after best-effort receiver resolution.
type CallSite struct {
	Caller      int // index into ParsedFile.Functions
	CalleeToken string
	Line        int
	ArgCount    int
}

// ParsedFile is the per-file indexing result.
type ParsedFile struct {
	Path      string
	Functions []FunctionSite
	CallSites []CallSite
}

// mappingAnnotations mark HTTP entry points. Methods carrying one of these
// get an entry-point flag that feeds the confidence model.
var mappingAnnotations = map[string]bool{
	"GetMapping":     true,
	"PostMapping":    true,
	"RequestMapping": true,
	"PutMapping":     true,
	"DeleteMapping":  true,
	"Path":           true,
	"GET":            true,
	"POST":           true,
	"PUT":            true,
	"DELETE":         true,
}

var stmtKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"do": true, "else": true, "try": true, "finally": true, "return": true,
	"new": true, "synchronized": true, "throw": true, "case": true,
	"assert": true, "super": true, "this": true,
}

type scopeKind int

const (
	scopeClass scopeKind = iota
	scopeMethod
	scopeBlock
)

type scope struct {
	kind      scopeKind
	name      string // class name for scopeClass, function index as string unused
	funcIndex int    // valid for scopeMethod
	openDepth int
}

type parser struct {
	path      string
	lines     []string
	out       *ParsedFile
	symbols   map[string]string // variable -> declared base type, file scoped
	keepBody  bool
	scopes    []scope
	depth     int
	classes   int
	funcOpen  int // index of innermost open method, -1 when outside
	lastCallee map[int]string
}

// ParseFile runs the lexical pass over one file. keepBodies controls
// whether method body snippets are retained (full engine) or discarded
// after indexing (lite engine). A parse failure is returned, never
// panicked: the caller records it and moves on.
func ParseFile(path string, src []byte, keepBodies bool) (*ParsedFile, error) {
	p := &parser{
		path:       path,
		lines:      strings.Split(string(src), "\n"),
		out:        &ParsedFile{Path: path},
		symbols:    make(map[string]string),
		keepBody:   keepBodies,
		funcOpen:   -1,
		lastCallee: make(map[int]string),
	}

	clean := sanitize(string(src))
	cleanLines := strings.Split(clean, "\n")

	p.collectSymbols(cleanLines)
	if err := p.walk(cleanLines); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.classes == 0 && len(p.out.Functions) == 0 {
		return nil, fmt.Errorf("%s: no type declarations found", path)
	}
	return p.out, nil
}

// sanitize blanks out comments and string/char literals while keeping the
// byte layout, so brace tracking and line numbers stay accurate.
func sanitize(src string) string {
	out := []rune(src)
	const (
		code = iota
		lineComment
		blockComment
		strLit
		charLit
	)
	state := code
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case code:
			switch {
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = lineComment
				out[i] = ' '
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = blockComment
				out[i] = ' '
			case c == '"':
				state = strLit
			case c == '\'':
				state = charLit
			}
		case lineComment:
			if c == '\n' {
				state = code
			} else {
				out[i] = ' '
			}
		case blockComment:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i] = ' '
				out[i+1] = ' '
				i++
				state = code
			} else if c != '\n' {
				out[i] = ' '
			}
		case strLit:
			if c == '\\' && i+1 < len(out) {
				out[i] = ' '
				if out[i+1] != '\n' {
					out[i+1] = ' '
				}
				i++
			} else if c == '"' {
				state = code
			} else if c != '\n' {
				out[i] = ' '
			}
		case charLit:
			if c == '\\' && i+1 < len(out) {
				out[i] = ' '
				out[i+1] = ' '
				i++
			} else if c == '\'' {
				state = code
			} else if c != '\n' {
				out[i] = ' '
			}
		}
	}
	return string(out)
}

// collectSymbols builds the file-scoped variable symbol table used for
// receiver-type resolution: local declarations, fields and parameters all
// land in one flat map, matching a best-effort reading of the source.
func (p *parser) collectSymbols(lines []string) {
	for _, line := range lines {
		for _, m := range declPattern.FindAllStringSubmatch(line, -1) {
			varType := baseType(m[1])
			varName := m[2]
			if varType != "" && varName != "" && !stmtKeywords[varType] {
				p.symbols[varName] = varType
			}
		}
	}
}

// walk drives the brace-depth scan. A statement accumulator collects text
// between structural tokens; when a '{' opens, the accumulated statement
// decides whether the new scope is a class, a method or a plain block.
func (p *parser) walk(lines []string) error {
	var stmt strings.Builder
	for lineNo, line := range lines {
		for _, c := range line {
			switch c {
			case '{':
				p.openScope(strings.TrimSpace(stmt.String()), lineNo+1)
				stmt.Reset()
			case '}':
				p.closeScope(lineNo + 1)
				stmt.Reset()
			case ';':
				p.scanCalls(stmt.String(), lineNo+1)
				stmt.Reset()
			default:
				stmt.WriteRune(c)
			}
		}
		stmt.WriteRune('\n')
	}
	if p.depth != 0 {
		return fmt.Errorf("unbalanced braces (depth %d at end of file)", p.depth)
	}
	return nil
}

func (p *parser) openScope(stmt string, line int) {
	p.depth++
	if m := classPattern.FindStringSubmatch(stmt); m != nil {
		p.scopes = append(p.scopes, scope{kind: scopeClass, name: m[1], openDepth: p.depth})
		p.classes++
		return
	}
	if p.funcOpen < 0 && p.currentClass() != "" {
		if name, params, ok := methodSignature(stmt); ok {
			site := FunctionSite{
				Name:       name,
				Class:      p.currentClass(),
				File:       p.path,
				StartLine:  line,
				ParamCount: countParams(params),
				EntryPoint: hasMappingAnnotation(stmt),
			}
			p.recordParams(params)
			p.out.Functions = append(p.out.Functions, site)
			idx := len(p.out.Functions) - 1
			p.scopes = append(p.scopes, scope{kind: scopeMethod, funcIndex: idx, openDepth: p.depth})
			p.funcOpen = idx
			return
		}
	}
	p.scanCalls(stmt, line)
	p.scopes = append(p.scopes, scope{kind: scopeBlock, openDepth: p.depth})
}

func (p *parser) closeScope(line int) {
	if len(p.scopes) > 0 {
		top := p.scopes[len(p.scopes)-1]
		if top.openDepth == p.depth {
			p.scopes = p.scopes[:len(p.scopes)-1]
			if top.kind == scopeMethod {
				fn := &p.out.Functions[top.funcIndex]
				fn.EndLine = line
				if p.keepBody && fn.StartLine >= 1 && line <= len(p.lines) {
					fn.BodySnippet = strings.Join(p.lines[fn.StartLine-1:line], "\n")
				}
				p.funcOpen = p.enclosingMethod()
			}
		}
	}
	p.depth--
}

func (p *parser) enclosingMethod() int {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if p.scopes[i].kind == scopeMethod {
			return p.scopes[i].funcIndex
		}
	}
	return -1
}

func (p *parser) currentClass() string {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if p.scopes[i].kind == scopeClass {
			return p.scopes[i].name
		}
	}
	return ""
}

// recordParams folds a method's parameters into the symbol table so calls
// on a parameter resolve to its declared type.
func (p *parser) recordParams(params string) {
	for _, part := range splitTopLevel(params) {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) < 2 {
			continue
		}
		varType := baseType(fields[len(fields)-2])
		varName := fields[len(fields)-1]
		if varType != "" && isIdentifier(varName) {
			p.symbols[varName] = varType
		}
	}
}

// scanCalls extracts call sites from one accumulated statement. Receiver
// resolution order: symbol table, then the qualifier text itself (first
// dotted segment when it looks like a class). Chained calls after ')'
// inherit the class of the previous callee in the same function, and bare
// calls resolve to the enclosing class.
func (p *parser) scanCalls(stmt string, line int) {
	if p.funcOpen < 0 {
		return
	}
	caller := p.funcOpen

	for _, m := range qualifiedCallPattern.FindAllStringSubmatchIndex(stmt, -1) {
		qualifier := stmt[m[2]:m[3]]
		member := stmt[m[4]:m[5]]
		if stmtKeywords[qualifier] && qualifier != "this" {
			continue
		}
		cls := p.resolveQualifier(qualifier)
		p.addCall(caller, cls, member, argCountAt(stmt, m[5]), line)
	}
	for _, m := range chainedCallPattern.FindAllStringSubmatchIndex(stmt, -1) {
		member := stmt[m[2]:m[3]]
		cls := ""
		if prev := p.lastCallee[caller]; prev != "" {
			cls = strings.SplitN(prev, ":", 2)[0]
		}
		if cls == "" {
			cls = p.out.Functions[caller].Class
		}
		p.addCall(caller, cls, member, argCountAt(stmt, m[3]), line)
	}
	for _, m := range bareCallPattern.FindAllStringSubmatchIndex(stmt, -1) {
		name := stmt[m[2]:m[3]]
		if stmtKeywords[name] || mappingAnnotations[name] {
			continue
		}
		// skip hits the qualified pattern already consumed
		if m[2] > 0 && (stmt[m[2]-1] == '.' || stmt[m[2]-1] == '@') {
			continue
		}
		p.addCall(caller, p.out.Functions[caller].Class, name, argCountAt(stmt, m[3]), line)
	}
}

func (p *parser) resolveQualifier(qualifier string) string {
	if qualifier == "this" {
		return p.currentClass()
	}
	def := qualifier
	if idx := strings.Index(qualifier, "."); idx > 0 {
		first := qualifier[:idx]
		if r := []rune(first); len(r) > 0 && unicode.IsUpper(r[0]) {
			def = first
		}
	}
	if t, ok := p.symbols[qualifier]; ok {
		return baseType(t)
	}
	return baseType(def)
}

func (p *parser) addCall(caller int, cls, member string, argCount, line int) {
	if cls == "" || member == "" {
		return
	}
	token := cls + ":" + member
	p.out.CallSites = append(p.out.CallSites, CallSite{
		Caller:      caller,
		CalleeToken: token,
		Line:        line,
		ArgCount:    argCount,
	})
	p.lastCallee[caller] = token
}

// methodSignature decides whether a pre-brace statement is a method
// declaration. The trailing "name(params)" group is located by scanning
// backwards from the final ')' so annotation argument lists ahead of, or
// inside, the parameter list cannot confuse the match.
func methodSignature(stmt string) (name, params string, ok bool) {
	body := strings.TrimSpace(stmt)
	if idx := strings.LastIndex(body, "throws"); idx >= 0 && !strings.ContainsAny(body[idx:], "()") {
		body = strings.TrimSpace(body[:idx])
	}
	if !strings.HasSuffix(body, ")") {
		return "", "", false
	}
	depth := 0
	open := -1
	for i := len(body) - 1; i >= 0; i-- {
		switch body[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				open = i
			}
		}
		if open >= 0 {
			break
		}
	}
	if open <= 0 {
		return "", "", false
	}
	params = body[open+1 : len(body)-1]
	end := open
	for end > 0 && body[end-1] == ' ' {
		end--
	}
	start := end
	for start > 0 && isIdentByte(body[start-1]) {
		start--
	}
	name = body[start:end]
	if name == "" || stmtKeywords[name] {
		return "", "", false
	}
	// a declaration needs modifiers, a return type or an annotation ahead
	// of the name; a bare "name(args)" is a call, not a definition
	prefix := strings.TrimSpace(body[:start])
	if prefix == "" || strings.HasSuffix(prefix, ".") || strings.HasSuffix(prefix, "=") {
		return "", "", false
	}
	// "x = new Runnable() {" opens an anonymous class, not a method
	if fields := strings.Fields(prefix); len(fields) > 0 {
		if last := fields[len(fields)-1]; last == "new" || last == "return" || last == "=" {
			return "", "", false
		}
	}
	return name, params, true
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func hasMappingAnnotation(stmt string) bool {
	for _, m := range annotationPattern.FindAllStringSubmatch(stmt, -1) {
		if mappingAnnotations[m[1]] {
			return true
		}
	}
	return false
}

// countParams counts a parameter list's top-level entries, ignoring commas
// inside generic type arguments.
func countParams(params string) int {
	params = strings.TrimSpace(params)
	if params == "" {
		return 0
	}
	return len(splitTopLevel(params))
}

func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// argCountAt counts the arguments of the call whose '(' sits at the given
// offset. Nested parens and generics nest the depth counter.
func argCountAt(stmt string, parenOpen int) int {
	if parenOpen >= len(stmt) || stmt[parenOpen] != '(' {
		// the pattern match ends just before '('; search forward
		for parenOpen < len(stmt) && stmt[parenOpen] != '(' {
			parenOpen++
		}
		if parenOpen >= len(stmt) {
			return 0
		}
	}
	depth := 0
	count := 0
	sawContent := false
	for i := parenOpen; i < len(stmt); i++ {
		switch stmt[i] {
		case '(', '[', '<':
			depth++
		case ')', ']', '>':
			depth--
			if depth == 0 {
				if sawContent {
					count++
				}
				return count
			}
		case ',':
			if depth == 1 {
				count++
			}
		default:
			if depth >= 1 && !unicode.IsSpace(rune(stmt[i])) {
				sawContent = true
			}
		}
	}
	return count
}

// baseType strips generics and array markers off a declared type.
func baseType(t string) string {
	if idx := strings.Index(t, "<"); idx >= 0 {
		t = t[:idx]
	}
	t = strings.TrimSuffix(t, "[]")
	if idx := strings.LastIndex(t, "."); idx >= 0 {
		t = t[idx+1:]
	}
	return strings.TrimSpace(t)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if !unicode.IsLetter(c) && c != '_' && c != '$' && (i == 0 || !unicode.IsDigit(c)) {
			return false
		}
	}
	return true
}
