package main

import (
	"sort"

	"github.com/sinktracer/sinktracer/issue"
)

type sortBySeverity []issue.Vulnerability

func (s sortBySeverity) Len() int { return len(s) }

func (s sortBySeverity) Less(i, j int) bool {
	if s[i].Severity == s[j].Severity {
		if s[i].Confidence == s[j].Confidence {
			if s[i].VulType == s[j].VulType {
				return s[i].Sink < s[j].Sink
			}
			return s[i].VulType < s[j].VulType
		}
		return s[i].Confidence > s[j].Confidence
	}
	return s[i].Severity > s[j].Severity
}

func (s sortBySeverity) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// sortVulnerabilities sorts the findings by severity in descending order
func sortVulnerabilities(vulns []issue.Vulnerability) {
	sort.Sort(sortBySeverity(vulns))
}
