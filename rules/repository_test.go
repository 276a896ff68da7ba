package rules_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sinktracer/sinktracer/rules"
	"github.com/sinktracer/sinktracer/testutils"
)

var _ = Describe("Repository", func() {
	Context("when loading a JSON document", func() {
		var repo *rules.Repository

		BeforeEach(func() {
			var err error
			repo, err = rules.Parse([]byte(testutils.SampleRulesJSON), ".json")
			Expect(err).ToNot(HaveOccurred())
		})

		It("should load every category", func() {
			Expect(repo.Sinks(nil)).To(HaveLen(2))
			Expect(repo.Sources()).To(HaveLen(1))
			Expect(repo.Sanitizers()).To(HaveLen(1))
			Expect(repo.Templates(nil)).To(HaveLen(1))
			Expect(repo.BadPatterns()).To(BeEmpty())
		})

		It("should list sink types across sink and template rules", func() {
			Expect(repo.SinkTypes()).To(Equal([]string{"JSP_ECHO", "RCE", "SQLI"}))
		})

		It("should match sinks on the fully qualified class name", func() {
			hits := repo.Lookup(rules.Sink, "java.sql.Statement:executeQuery")
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].ID).To(Equal("SQLI"))
		})

		It("should match sinks on the short class name", func() {
			hits := repo.Lookup(rules.Sink, "Statement:executeUpdate")
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].ID).To(Equal("SQLI"))
		})

		It("should not match an unlisted method", func() {
			Expect(repo.Lookup(rules.Sink, "Statement:close")).To(BeEmpty())
		})

		It("should match template content against compiled patterns", func() {
			hits := repo.Lookup(rules.Template, `out.println("<%= name %>");`)
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].ID).To(Equal("JSP_ECHO"))
			Expect(hits[0].VulType).To(Equal("XSS"))
		})

		It("should filter sinks by selected type", func() {
			filtered := repo.Sinks([]string{"RCE"})
			Expect(filtered).To(HaveLen(1))
			Expect(filtered[0].ID).To(Equal("RCE"))
		})

		It("should keep the file extension filter on template rules", func() {
			tmpl := repo.Templates(nil)[0]
			Expect(tmpl.FileExts).To(ContainElements("jsp", "jspx"))
		})
	})

	Context("when loading the same rules from YAML", func() {
		It("should produce the same sink rules as the JSON form", func() {
			jsonRepo, err := rules.Parse([]byte(testutils.SampleRulesJSON), ".json")
			Expect(err).ToNot(HaveOccurred())
			yamlRepo, err := rules.Parse([]byte(testutils.SampleRulesYAML), ".yaml")
			Expect(err).ToNot(HaveOccurred())

			Expect(yamlRepo.Lookup(rules.Sink, "Statement:executeQuery")).To(HaveLen(1))
			Expect(yamlRepo.Sources()).To(HaveLen(1))
			Expect(yamlRepo.Sanitizers()).To(HaveLen(1))
			Expect(yamlRepo.Templates(nil)).To(HaveLen(1))
			Expect(jsonRepo.Lookup(rules.Sink, "Statement:executeQuery")[0].SeverityHint).
				To(Equal(yamlRepo.Lookup(rules.Sink, "Statement:executeQuery")[0].SeverityHint))
		})
	})

	Context("when a document contains a malformed pattern", func() {
		It("should keep the valid rules and report one bad pattern", func() {
			repo, err := rules.Parse([]byte(testutils.SampleRulesOneBadPattern), ".json")
			Expect(err).ToNot(HaveOccurred())

			active := len(repo.Sinks(nil)) + len(repo.Sources()) + len(repo.Sanitizers()) + len(repo.Templates(nil))
			Expect(active).To(Equal(9))

			bad := repo.BadPatterns()
			Expect(bad).To(HaveLen(1))
			Expect(bad[0].RuleID).To(Equal("BROKEN"))
			Expect(bad[0].Reason).ToNot(BeEmpty())
		})
	})

	Context("when a document violates the schema", func() {
		It("should reject a sink rule without sink entries", func() {
			doc := `{"sink_rules": [{"sink_name": "X", "severity_level": "High"}]}`
			_, err := rules.Parse([]byte(doc), ".json")
			Expect(err).To(HaveOccurred())
		})

		It("should reject documents that are not valid JSON", func() {
			_, err := rules.Parse([]byte(`{"sink_rules": [`), ".json")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when loading secret detection rules", func() {
		It("should carry the entropy and forced-regex flags", func() {
			repo, err := rules.Parse([]byte(testutils.SampleSecretRules), ".json")
			Expect(err).ToNot(HaveOccurred())
			tmpl := repo.Templates(nil)
			Expect(tmpl).To(HaveLen(1))
			Expect(tmpl[0].Entropy).To(BeTrue())
			Expect(tmpl[0].ForceRegex).To(BeTrue())
		})
	})
})
