package rules_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sinktracer/sinktracer/rules"
	"github.com/sinktracer/sinktracer/testutils"
)

var _ = Describe("Rule", func() {
	Context("when scoring pattern specificity", func() {
		It("should rank signature rules above regex rules", func() {
			repo, err := rules.Parse([]byte(testutils.SampleRulesJSON), ".json")
			Expect(err).ToNot(HaveOccurred())

			sink := repo.Lookup(rules.Sink, "Statement:executeQuery")[0]
			tmpl := repo.Templates(nil)[0]
			Expect(sink.Specificity()).To(BeNumerically(">", tmpl.Specificity()))
		})
	})

	Context("when applying context substring controls", func() {
		var rule *rules.Rule

		BeforeEach(func() {
			rule = &rules.Rule{
				ID:                "CTX",
				MustSubstrings:    []string{"request"},
				ExcludeSubstrings: []string{"// safe"},
			}
		})

		It("should match unconditionally when the toggle is off", func() {
			Expect(rule.ContextAllowed("nothing relevant here", false)).To(BeTrue())
		})

		It("should require every must substring", func() {
			Expect(rule.ContextAllowed("String q = request.getParameter(\"id\");", true)).To(BeTrue())
			Expect(rule.ContextAllowed("String q = constant;", true)).To(BeFalse())
		})

		It("should reject windows containing an exclude substring", func() {
			Expect(rule.ContextAllowed("request.getParameter(\"id\"); // safe", true)).To(BeFalse())
		})

		It("should compare substrings case-insensitively", func() {
			Expect(rule.ContextAllowed("REQUEST.getHeader(\"x\")", true)).To(BeTrue())
		})
	})
})
