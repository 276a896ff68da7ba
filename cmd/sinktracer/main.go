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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sinktracer/sinktracer"
	"github.com/sinktracer/sinktracer/report"
)

const usageText = `
sinktracer - Java taint backtracking auditor

sinktracer indexes a Java source tree into an approximate call graph and
backtracks from rule-matched sink calls to rule-matched sources, scoring
each confirmed source-to-sink chain. Template files (JSP, Freemarker,
Velocity, Thymeleaf) are scanned by direct pattern matching.

VERSION: %s
GIT TAG: %s
BUILD DATE: %s

USAGE:

	# Scan a project with a rule document
	$ sinktracer -rules rules.json /path/to/project

	# Fast chain-only scan, json results to a file
	$ sinktracer -rules rules.yaml -engine lite -fmt=json -out=results.json /path/to/project

	# Trace only selected sink types
	$ sinktracer -rules rules.json -sink-types SQLI,RCE /path/to/project

	# List the sink types a rule document provides
	$ sinktracer -rules rules.json -show-sink-types

`

var (
	// rule document (json or yaml)
	flagRules = flag.String("rules", "", "Path to the rule document (JSON or YAML)")

	// engine mode
	flagEngine = flag.String("engine", "full", "Scan engine: full or lite")

	// backtracking depth
	flagDepth = flag.Int("depth", sinktracer.DefaultDepth, "Maximum backtracking depth from sink to source")

	// global scan deadline
	flagMaxSeconds = flag.Int("max-seconds", sinktracer.DefaultMaxSeconds, "Global scan timeout in seconds")

	// sink type pre-filter
	flagSinkTypes = flag.String("sink-types", "", "Comma separated sink type identifiers to trace (default all)")

	// template pipeline toggle
	flagTemplateScan = flag.String("template-scan", "on", "Template file scanning: on or off")

	// lite enrichment toggle
	flagLiteEnrich = flag.String("lite-enrich", "on", "Sanitizer and confidence analysis in lite mode: on or off")

	// mustSubstrings precision control
	flagMustSubstrings = flag.Bool("must-substrings", false, "Apply rule mustSubstrings/excludeSubstrings context gates")

	// worker pool size
	flagWorkers = flag.Int("workers", 0, "Indexing worker pool size (default GOMAXPROCS)")

	// snapshot directory for partial results
	flagSnapshotDir = flag.String("snapshot-dir", "", "Directory for periodic partial-result snapshots")

	// format output
	flagFormat = flag.String("fmt", "text", "Set output format. Valid options are: json, yaml, or text")

	// output file
	flagOutput = flag.String("out", "", "Set output file for results")

	// print sink types and exit
	flagShowSinkTypes = flag.Bool("show-sink-types", false, "List the sink types in the rule document and exit")

	// quiet
	flagQuiet = flag.Bool("quiet", false, "Only show output when vulnerabilities are found")

	// log to file or stderr
	flagLogfile = flag.String("log", "", "Log messages to file rather than stderr")

	// sort the findings by severity
	flagSortVulns = flag.Bool("sort", true, "Sort findings by severity")

	logger *log.Logger
)

// #nosec
func usage() {
	fmt.Fprintf(os.Stderr, usageText, Version, GitTag, BuildDate)
	fmt.Fprint(os.Stderr, "OPTIONS:\n\n")
	flag.PrintDefaults()
	fmt.Fprint(os.Stderr, "\n")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	flag.Usage = usage
	flag.Parse()
	prepareVersionInfo()

	logWriter := os.Stderr
	if *flagLogfile != "" {
		var e error
		logWriter, e = os.Create(*flagLogfile)
		if e != nil {
			log.Fatal(e)
		}
	}
	logger = log.New(logWriter, "[sinktracer] ", log.LstdFlags)

	conf := sinktracer.Config{
		RulesPath:           *flagRules,
		SinkTypes:           splitCSV(*flagSinkTypes),
		Depth:               *flagDepth,
		Engine:              *flagEngine,
		MaxSeconds:          *flagMaxSeconds,
		TemplateScan:        *flagTemplateScan,
		LiteEnrich:          *flagLiteEnrich,
		ApplyMustSubstrings: *flagMustSubstrings,
		Workers:             *flagWorkers,
	}

	if *flagShowSinkTypes {
		conf.Normalize()
		analyzer := sinktracer.NewAnalyzer(conf, logger)
		types, err := analyzer.SinkTypes()
		if err != nil {
			logger.Fatal(err)
		}
		for _, t := range types {
			fmt.Println(t)
		}
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "project path expected")
		usage()
		os.Exit(1)
	}
	conf.ProjectPath = flag.Arg(0)

	analyzer := sinktracer.NewAnalyzer(conf, logger)
	if *flagSnapshotDir != "" {
		analyzer.SetSnapshotWriter(&sinktracer.FileSnapshotWriter{
			Dir:    *flagSnapshotDir,
			ScanID: analyzer.State().ID(),
		})
	}

	result, err := analyzer.Process(context.Background())
	if err != nil && !errors.Is(err, sinktracer.ErrCancelled) && !errors.Is(err, sinktracer.ErrScanTimeout) {
		logger.Fatal(err)
	}

	if *flagSortVulns {
		sortVulnerabilities(result.Vulnerabilities)
	}

	if *flagQuiet && result.TotalVulnerabilities == 0 {
		os.Exit(0)
	}

	out := os.Stdout
	enableColor := *flagFormat == "text"
	if *flagOutput != "" {
		var e error
		out, e = os.Create(*flagOutput)
		if e != nil {
			logger.Fatal(e)
		}
		defer out.Close()
		enableColor = false
	}
	if e := report.CreateReport(out, *flagFormat, enableColor, result); e != nil {
		logger.Fatal(e)
	}

	if result.TotalVulnerabilities > 0 {
		os.Exit(1)
	}
}
