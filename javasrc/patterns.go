package javasrc

import "regexp"

// Compiled once at package init; every worker shares them read-only.
var (
	classPattern = regexp.MustCompile(`\b(?:class|interface|enum)\s+([A-Za-z_$][\w$]*)`)

	annotationPattern = regexp.MustCompile(`@\s*([A-Za-z_$][\w$]*)`)

	// Type var = ..., Type var;, Type var, — declarations feeding the
	// symbol table. Types start uppercase by Java convention; generic
	// arguments are swallowed in one non-greedy group.
	declPattern = regexp.MustCompile(`\b([A-Z][\w$]*(?:<[^<>;={}]*>)?(?:\[\])*)\s+([a-z_$][\w$]*)\s*[=;,)]`)

	// receiver.method( — the receiver may be a dotted path
	qualifiedCallPattern = regexp.MustCompile(`([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)\s*\.\s*([A-Za-z_$][\w$]*)\s*\(`)

	// ).method( — a chained call whose receiver is the previous result
	chainedCallPattern = regexp.MustCompile(`\)\s*\.\s*([A-Za-z_$][\w$]*)\s*\(`)

	// method( with no receiver — resolved against the enclosing class
	bareCallPattern = regexp.MustCompile(`(?:^|[^.\w$@])([a-z_$][\w$]*)\s*\(`)
)
