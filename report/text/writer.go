package text

import (
	_ "embed" // use go embed to import template
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/gookit/color"

	"github.com/sinktracer/sinktracer"
	"github.com/sinktracer/sinktracer/issue"
)

var (
	errorTheme   = color.New(color.FgLightWhite, color.BgRed)
	warningTheme = color.New(color.FgBlack, color.BgYellow)
	defaultTheme = color.New(color.FgWhite, color.BgBlack)

	//go:embed template.txt
	templateContent string
)

// WriteReport write a (colorized) report in text format
func WriteReport(w io.Writer, data *sinktracer.ReportInfo, enableColor bool) error {
	t, e := template.
		New("sinktracer").
		Funcs(plainTextFuncMap(enableColor)).
		Parse(templateContent)
	if e != nil {
		return e
	}

	return t.Execute(w, data)
}

func plainTextFuncMap(enableColor bool) template.FuncMap {
	funcs := template.FuncMap{
		"highlight":  highlight,
		"danger":     color.Danger.Render,
		"notice":     color.Notice.Render,
		"join":       func(items []string) string { return strings.Join(items, ", ") },
		"lines":      joinLines,
		"inc":        func(i int) int { return i + 1 },
		"printChain": printChain,
		"indent":     indentSnippet,
	}
	if !enableColor {
		funcs["highlight"] = func(t string, s issue.Score) string { return t }
		funcs["danger"] = fmt.Sprint
		funcs["notice"] = fmt.Sprint
	}
	return funcs
}

// highlight returns content t colored based on Score
func highlight(t string, s issue.Score) string {
	switch s {
	case issue.Critical, issue.High:
		return errorTheme.Sprint(t)
	case issue.Medium:
		return warningTheme.Sprint(t)
	default:
		return defaultTheme.Sprint(t)
	}
}

func joinLines(lines []int) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, strconv.Itoa(l))
	}
	return strings.Join(parts, ", ")
}

// indentSnippet shifts a numbered source excerpt under its finding.
func indentSnippet(snippet string) string {
	trimmed := strings.TrimRight(snippet, "\n")
	return "      " + strings.ReplaceAll(trimmed, "\n", "\n      ")
}

// printChain renders a call chain as "source -> ... -> sink".
func printChain(chain []issue.ChainNode) string {
	parts := make([]string, 0, len(chain))
	for _, node := range chain {
		parts = append(parts, node.Function)
	}
	return strings.Join(parts, " -> ")
}
