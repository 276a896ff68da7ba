package sinktracer_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sinktracer/sinktracer"
	"github.com/sinktracer/sinktracer/issue"
	"github.com/sinktracer/sinktracer/testutils"
)

var quietLogger = log.New(io.Discard, "", 0)

// scanFixture wires a temp project, a rules file and an analyzer together.
type scanFixture struct {
	project  *testutils.TestProject
	analyzer *sinktracer.Analyzer
	config   sinktracer.Config
}

func newScanFixture(rulesDoc string, samples ...testutils.JavaSample) *scanFixture {
	GinkgoHelper()
	project := testutils.NewTestProject()
	Expect(project).ToNot(BeNil())
	for _, s := range samples {
		project.AddFile(s.Path, s.Code)
	}
	Expect(project.Write()).To(Succeed())
	rulesPath, err := project.RulesFile("rules.json", rulesDoc)
	Expect(err).ToNot(HaveOccurred())

	conf := sinktracer.NewConfig()
	conf.ProjectPath = project.Path
	conf.RulesPath = rulesPath
	return &scanFixture{project: project, config: conf}
}

func (f *scanFixture) run() (*sinktracer.ReportInfo, error) {
	f.analyzer = sinktracer.NewAnalyzer(f.config, quietLogger)
	return f.analyzer.Process(context.Background())
}

func (f *scanFixture) close() {
	f.project.Close()
}

// cancelOnSnapshot cancels the scan the moment the first snapshot is
// written, which happens when the first vulnerability is recorded.
type cancelOnSnapshot struct {
	analyzer **sinktracer.Analyzer
	reports  []*sinktracer.ReportInfo
}

func (c *cancelOnSnapshot) WriteSnapshot(report *sinktracer.ReportInfo) error {
	c.reports = append(c.reports, report)
	(*c.analyzer).Cancel()
	return nil
}

var _ = Describe("Analyzer", func() {
	Context("when scanning single-file projects", func() {
		samples := []testutils.JavaSample{
			testutils.SampleDirectChain,
			testutils.SampleSanitizedChain,
			testutils.SampleDeepChain,
			testutils.SampleNoSource,
			testutils.SampleRecursion,
			testutils.SampleCommandExec,
			testutils.SampleXSSTemplate,
			testutils.SampleCleanTemplate,
		}
		for _, sample := range samples {
			sample := sample
			It("should report "+filepath.Base(sample.Path)+" correctly", func() {
				fixture := newScanFixture(testutils.SampleRulesJSON, sample)
				defer fixture.close()

				report, err := fixture.run()
				Expect(err).ToNot(HaveOccurred())
				Expect(report.Status).To(Equal(sinktracer.StatusCompleted))
				Expect(report.Vulnerabilities).To(HaveLen(sample.Expects))
				Expect(report.TotalVulnerabilities).To(Equal(sample.Expects))
			})
		}
	})

	Context("when tracing a direct request-to-query flow", func() {
		var fixture *scanFixture
		var report *sinktracer.ReportInfo

		BeforeEach(func() {
			fixture = newScanFixture(testutils.SampleRulesJSON, testutils.SampleDirectChain)
			var err error
			report, err = fixture.run()
			Expect(err).ToNot(HaveOccurred())
		})

		AfterEach(func() {
			fixture.close()
		})

		It("should describe the finding completely", func() {
			vuln := report.Vulnerabilities[0]
			Expect(vuln.VulType).To(Equal("SQLI"))
			Expect(vuln.Sink).To(Equal("Statement:executeQuery"))
			Expect(vuln.Severity).To(Equal(issue.High))
			Expect(vuln.Sources).To(Equal([]string{"HTTP_PARAM"}))
			Expect(vuln.SanitizedBy).To(BeEmpty())
			Expect(vuln.ScanMode).To(Equal("full"))
		})

		It("should keep the chain count consistent with the chains", func() {
			vuln := report.Vulnerabilities[0]
			Expect(vuln.ChainCount).To(Equal(len(vuln.CallChains)))
			for _, chain := range vuln.CallChains {
				Expect(len(chain)).To(BeNumerically("<=", fixture.config.Depth))
			}
		})

		It("should order chains source first, sink last", func() {
			chain := report.Vulnerabilities[0].CallChains[0]
			Expect(chain[0].Function).To(Equal("UserController:findUser"))
			Expect(chain[len(chain)-1].Function).To(Equal("Statement:executeQuery"))
		})

		It("should account for every dispatched file in the stats", func() {
			Expect(report.Stats.Parsed).To(Equal(report.Stats.TotalFiles))
			Expect(report.Stats.TotalFiles).To(BeNumerically(">", 0))
		})

		It("should project file, line and snippet details for a chain", func() {
			chain := report.Vulnerabilities[0].CallChains[0]
			tokens := make([]string, 0, len(chain))
			for _, node := range chain {
				tokens = append(tokens, node.Function)
			}

			nodes := fixture.analyzer.ChainSources(tokens)
			Expect(nodes).To(HaveLen(len(tokens)))
			Expect(nodes[0].Function).To(Equal("UserController:findUser"))
			Expect(nodes[0].File).To(Equal(testutils.SampleDirectChain.Path))
			Expect(nodes[0].Line).To(BeNumerically(">", 0))
			Expect(nodes[0].Snippet).ToNot(BeEmpty())
			// the external sink endpoint has no definition to project
			last := nodes[len(nodes)-1]
			Expect(last.Function).To(Equal("Statement:executeQuery"))
			Expect(last.File).To(BeEmpty())
		})
	})

	Context("when a sanitizer guards the sink", func() {
		It("should demote severity and lower confidence", func() {
			sanitized := newScanFixture(testutils.SampleRulesJSON, testutils.SampleSanitizedChain)
			defer sanitized.close()
			direct := newScanFixture(testutils.SampleRulesJSON, testutils.SampleDirectChain)
			defer direct.close()

			sanitizedReport, err := sanitized.run()
			Expect(err).ToNot(HaveOccurred())
			directReport, err := direct.run()
			Expect(err).ToNot(HaveOccurred())

			sv := sanitizedReport.Vulnerabilities[0]
			dv := directReport.Vulnerabilities[0]
			Expect(sv.SanitizedBy).To(Equal([]string{"ESCAPE_JAVA"}))
			Expect(sv.Severity).To(Equal(issue.Medium))
			Expect(dv.Severity).To(Equal(issue.High))
			Expect(sv.Confidence).To(BeNumerically("<", dv.Confidence))
		})
	})

	Context("when scanning the whole sample set at once", func() {
		It("should group chains per sink occurrence", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON,
				testutils.SampleDirectChain,
				testutils.SampleSanitizedChain,
				testutils.SampleDeepChain,
				testutils.SampleNoSource,
				testutils.SampleRecursion,
				testutils.SampleCommandExec,
				testutils.SampleXSSTemplate,
				testutils.SampleCleanTemplate,
			)
			defer fixture.close()

			report, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Vulnerabilities).To(HaveLen(4))

			bySink := make(map[string]issue.Vulnerability)
			for _, v := range report.Vulnerabilities {
				bySink[v.Sink] = v
			}
			Expect(bySink).To(HaveKey("Statement:executeQuery"))
			Expect(bySink).To(HaveKey("Statement:executeUpdate"))
			Expect(bySink).To(HaveKey("Runtime:exec"))
			Expect(bySink).To(HaveKey("JSP_ECHO"))
			Expect(bySink["Statement:executeQuery"].ChainCount).To(Equal(3),
				"three distinct files funnel into the same sink point")
		})

		It("should produce the same findings on a repeated scan", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON,
				testutils.SampleDirectChain,
				testutils.SampleCommandExec,
				testutils.SampleXSSTemplate,
			)
			defer fixture.close()

			first, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			second, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())

			Expect(second.TotalVulnerabilities).To(Equal(first.TotalVulnerabilities))
			sinks := func(r *sinktracer.ReportInfo) map[string]int {
				out := make(map[string]int)
				for _, v := range r.Vulnerabilities {
					out[v.Sink] = v.ChainCount
				}
				return out
			}
			Expect(sinks(second)).To(Equal(sinks(first)))
		})
	})

	Context("when the depth bound cuts the search short", func() {
		It("should drop chains that exceed it", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON, testutils.SampleDeepChain)
			defer fixture.close()

			fixture.config.Depth = 3
			report, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Vulnerabilities).To(BeEmpty())

			fixture.config.Depth = 4
			report, err = fixture.run()
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Vulnerabilities).To(HaveLen(1))
		})
	})

	Context("when running the lite engine", func() {
		It("should skip enrichment when lite enrich is off", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON, testutils.SampleSanitizedChain)
			defer fixture.close()
			fixture.config.Engine = "lite"
			fixture.config.LiteEnrich = "off"

			report, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			vuln := report.Vulnerabilities[0]
			Expect(vuln.ScanMode).To(Equal("lite"))
			Expect(vuln.Confidence).To(Equal(issue.DefaultConfidence))
			Expect(vuln.Sources).To(BeEmpty())
			Expect(vuln.SanitizedBy).To(BeEmpty())
		})

		It("should keep sanitizer analysis when lite enrich is on", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON, testutils.SampleSanitizedChain)
			defer fixture.close()
			fixture.config.Engine = "lite"
			fixture.config.LiteEnrich = "on"

			report, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			vuln := report.Vulnerabilities[0]
			Expect(vuln.ScanMode).To(Equal("lite"))
			Expect(vuln.SanitizedBy).To(Equal([]string{"ESCAPE_JAVA"}))
			for _, node := range vuln.CallChains[0] {
				Expect(node.Snippet).To(BeEmpty(), "lite mode never extracts snippets")
			}
		})
	})

	Context("when substring gates are enabled", func() {
		It("should match the same findings under both engines", func() {
			counts := make(map[string]int)
			for _, engine := range []string{"full", "lite"} {
				fixture := newScanFixture(testutils.SampleRulesMustSubstrings, testutils.SampleDirectChain)
				fixture.config.Engine = engine
				fixture.config.ApplyMustSubstrings = true

				report, err := fixture.run()
				Expect(err).ToNot(HaveOccurred())
				counts[engine] = report.TotalVulnerabilities
				fixture.close()
			}
			Expect(counts["lite"]).To(Equal(counts["full"]))
			Expect(counts["full"]).To(Equal(1))
		})
	})

	Context("when a sink type filter is supplied", func() {
		It("should trace only the selected sinks", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON,
				testutils.SampleDirectChain,
				testutils.SampleCommandExec,
				testutils.SampleXSSTemplate,
			)
			defer fixture.close()
			fixture.config.SinkTypes = []string{"RCE"}

			report, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Vulnerabilities).To(HaveLen(1))
			Expect(report.Vulnerabilities[0].VulType).To(Equal("RCE"))
		})

		It("should expose the loadable sink types", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON)
			defer fixture.close()
			fixture.analyzer = sinktracer.NewAnalyzer(fixture.config, quietLogger)

			types, err := fixture.analyzer.SinkTypes()
			Expect(err).ToNot(HaveOccurred())
			Expect(types).To(Equal([]string{"JSP_ECHO", "RCE", "SQLI"}))
		})
	})

	Context("when the template scan is disabled", func() {
		It("should skip template findings entirely", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON, testutils.SampleXSSTemplate)
			defer fixture.close()
			fixture.config.TemplateScan = "off"

			report, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Vulnerabilities).To(BeEmpty())
		})
	})

	Context("when a file cannot be parsed", func() {
		It("should record the error and keep scanning", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON, testutils.SampleDirectChain)
			defer fixture.close()
			broken := filepath.Join(fixture.project.Path, "src", "Broken.java")
			Expect(os.WriteFile(broken, []byte("public class Broken {\n"), 0o644)).To(Succeed())

			report, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Status).To(Equal(sinktracer.StatusCompleted))
			Expect(report.Errors).To(HaveKey("src/Broken.java"))
			Expect(report.Vulnerabilities).To(HaveLen(1))
		})
	})

	Context("when the rule document carries a malformed pattern", func() {
		It("should surface it without failing the scan", func() {
			fixture := newScanFixture(testutils.SampleRulesOneBadPattern, testutils.SampleDirectChain)
			defer fixture.close()

			report, err := fixture.run()
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Status).To(Equal(sinktracer.StatusCompleted))
			Expect(report.BadPatterns).To(HaveLen(1))
			Expect(report.BadPatterns[0].RuleID).To(Equal("BROKEN"))
		})
	})

	Context("when the request is invalid", func() {
		It("should fail before doing any work", func() {
			analyzer := sinktracer.NewAnalyzer(sinktracer.NewConfig(), quietLogger)
			report, err := analyzer.Process(context.Background())
			assertConfigError(err, "projectPath")
			Expect(report.Status).To(Equal(sinktracer.StatusFailed))
			Expect(report.Vulnerabilities).To(BeEmpty())
		})
	})

	Context("when the scan is cancelled mid-flight", func() {
		It("should return the partial report with ErrCancelled", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON,
				testutils.SampleDirectChain,
				testutils.SampleXSSTemplate,
			)
			defer fixture.close()

			fixture.analyzer = sinktracer.NewAnalyzer(fixture.config, quietLogger)
			hook := &cancelOnSnapshot{analyzer: &fixture.analyzer}
			fixture.analyzer.SetSnapshotWriter(hook)

			report, err := fixture.analyzer.Process(context.Background())
			Expect(err).To(MatchError(sinktracer.ErrCancelled))
			Expect(report.Status).To(Equal(sinktracer.StatusCancelled))
			Expect(report.Vulnerabilities).To(HaveLen(1),
				"the finding recorded before cancellation stays in the report")
			Expect(report.Vulnerabilities[0].Sink).To(Equal("Statement:executeQuery"))
		})
	})

	Context("when the global deadline expires", func() {
		It("should complete with partial results and the timeout sentinel", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON, testutils.SampleDirectChain)
			defer fixture.close()

			ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
			defer cancel()
			fixture.analyzer = sinktracer.NewAnalyzer(fixture.config, quietLogger)

			report, err := fixture.analyzer.Process(ctx)
			Expect(err).To(MatchError(sinktracer.ErrScanTimeout))
			Expect(report.Status).To(Equal(sinktracer.StatusCompleted))
			Expect(report.Vulnerabilities).To(BeEmpty(),
				"backtracking never starts once the deadline has passed")
		})
	})

	Context("when a snapshot directory is configured", func() {
		It("should leave a readable snapshot behind", func() {
			fixture := newScanFixture(testutils.SampleRulesJSON, testutils.SampleDirectChain)
			defer fixture.close()

			snapDir, err := os.MkdirTemp("", "sinktracer_snap")
			Expect(err).ToNot(HaveOccurred())
			defer os.RemoveAll(snapDir)

			fixture.analyzer = sinktracer.NewAnalyzer(fixture.config, quietLogger)
			writer := &sinktracer.FileSnapshotWriter{Dir: snapDir, ScanID: fixture.analyzer.State().ID()}
			fixture.analyzer.SetSnapshotWriter(writer)

			report, err := fixture.analyzer.Process(context.Background())
			Expect(err).ToNot(HaveOccurred())

			data, err := os.ReadFile(filepath.Join(snapDir, "scan-"+report.ScanID+".json"))
			Expect(err).ToNot(HaveOccurred())
			var restored sinktracer.ReportInfo
			Expect(json.Unmarshal(data, &restored)).To(Succeed())
			Expect(restored.ScanID).To(Equal(report.ScanID))
			Expect(restored.TotalVulnerabilities).To(Equal(report.TotalVulnerabilities))
			Expect(restored.Status).To(Equal(sinktracer.StatusCompleted))
		})
	})
})
