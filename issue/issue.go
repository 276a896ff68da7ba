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

// Package issue defines the vulnerability records emitted by the scan
// engines and the severity scale shared across them.
package issue

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Score type used by severity values
type Score int

const (
	// Low severity
	Low Score = iota
	// Medium severity
	Medium
	// High severity
	High
	// Critical severity
	Critical
)

// SnippetOffset defines the number of lines captured before
// the beginning and after the end of a code snippet
const SnippetOffset = 1

// DefaultConfidence is assigned when enrichment is skipped or fails.
const DefaultConfidence = 0.5

// String converts a Score into a string
func (c Score) String() string {
	switch c {
	case Critical:
		return "CRITICAL"
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	case Low:
		return "LOW"
	}
	return "UNDEFINED"
}

// MarshalJSON is used to convert a Score object into a JSON representation
func (c Score) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts the string form produced by MarshalJSON.
func (c *Score) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	score, err := ParseScore(s)
	if err != nil {
		return err
	}
	*c = score
	return nil
}

// ParseScore converts a severity name into a Score. Matching is
// case-insensitive on the first letter only, which covers both the
// "Critical" style used in rule documents and the "CRITICAL" wire form.
func ParseScore(s string) (Score, error) {
	if s == "" {
		return Medium, nil
	}
	switch s[0] {
	case 'C', 'c':
		return Critical, nil
	case 'H', 'h':
		return High, nil
	case 'M', 'm':
		return Medium, nil
	case 'L', 'l':
		return Low, nil
	}
	return Medium, fmt.Errorf("unknown severity %q", s)
}

// Demote lowers a severity by one level. Low stays Low; severity is never
// promoted by this path.
func (c Score) Demote() Score {
	if c > Low {
		return c - 1
	}
	return Low
}

// ChainNode is a single element of a source-to-sink call chain. Function is
// the "Class:method" signature token; File, Line and Snippet are filled by
// enrichment in full mode and by the per-chain source lookup.
type ChainNode struct {
	Function string `json:"function"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// Vulnerability is produced when one or more raw chains share the same sink
// occurrence, or by a template hit. Immutable once emitted.
type Vulnerability struct {
	VulType         string        `json:"vul_type"`
	Sink            string        `json:"sink"`
	SinkDescription string        `json:"sink_desc"`
	Severity        Score         `json:"severity"`
	Confidence      float64       `json:"confidence"`
	Sources         []string      `json:"sources"`
	SanitizedBy     []string      `json:"sanitized_by"`
	Patterns        []string      `json:"patterns"`
	CallChains      [][]ChainNode `json:"call_chains"`
	ChainCount      int           `json:"chain_count"`
	ScanMode        string        `json:"scan_mode"`
	FilePath        string        `json:"file_path,omitempty"`
	GroupLines      []int         `json:"group_lines,omitempty"`
	// Snippet carries the numbered source excerpt around a template hit;
	// chain findings keep their evidence on the chain nodes instead.
	Snippet string `json:"snippet,omitempty"`
}

// Location renders the primary location of the finding for display.
func (v Vulnerability) Location() string {
	if v.FilePath != "" && len(v.GroupLines) > 0 {
		first, last := v.GroupLines[0], v.GroupLines[len(v.GroupLines)-1]
		if first == last {
			return fmt.Sprintf("%s:%d", v.FilePath, first)
		}
		return fmt.Sprintf("%s:%d-%d", v.FilePath, first, last)
	}
	if len(v.CallChains) > 0 {
		chain := v.CallChains[0]
		if len(chain) > 0 {
			tail := chain[len(chain)-1]
			if tail.File != "" {
				return fmt.Sprintf("%s:%d", tail.File, tail.Line)
			}
			return tail.Function
		}
	}
	return v.Sink
}

// ChainSignatures flattens a chain into its signature tokens.
func ChainSignatures(chain []ChainNode) []string {
	sigs := make([]string, 0, len(chain))
	for _, node := range chain {
		sigs = append(sigs, node.Function)
	}
	return sigs
}

// CodeSnippet extracts the numbered lines [start,end] from the reader.
func CodeSnippet(r io.Reader, start, end int64) (string, error) {
	if start > end {
		return "", fmt.Errorf("invalid snippet range %d-%d", start, end)
	}
	var pos int64
	var buf bytes.Buffer
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		pos++
		if pos > end {
			break
		} else if pos >= start && pos <= end {
			fmt.Fprintf(&buf, "%d: %s\n", pos, scanner.Text())
		}
	}
	return buf.String(), scanner.Err()
}
