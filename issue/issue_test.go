package issue_test

import (
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sinktracer/sinktracer/issue"
)

var _ = Describe("Score", func() {
	Context("when parsing severity names", func() {
		It("should accept full names case-insensitively", func() {
			for name, want := range map[string]issue.Score{
				"low":      issue.Low,
				"Medium":   issue.Medium,
				"HIGH":     issue.High,
				"Critical": issue.Critical,
			} {
				got, err := issue.ParseScore(name)
				Expect(err).ToNot(HaveOccurred())
				Expect(got).To(Equal(want))
			}
		})

		It("should reject unknown names", func() {
			_, err := issue.ParseScore("sideways")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when demoting severity", func() {
		It("should step down one level and stop at low", func() {
			Expect(issue.Critical.Demote()).To(Equal(issue.High))
			Expect(issue.High.Demote()).To(Equal(issue.Medium))
			Expect(issue.Medium.Demote()).To(Equal(issue.Low))
			Expect(issue.Low.Demote()).To(Equal(issue.Low))
		})
	})

	Context("when serializing", func() {
		It("should round-trip through JSON as its name", func() {
			data, err := json.Marshal(issue.High)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal(`"HIGH"`))

			var s issue.Score
			Expect(json.Unmarshal(data, &s)).To(Succeed())
			Expect(s).To(Equal(issue.High))
		})
	})
})

var _ = Describe("Vulnerability", func() {
	It("should report the sink location of the first chain", func() {
		v := issue.Vulnerability{
			Sink: "Statement:executeQuery",
			CallChains: [][]issue.ChainNode{{
				{Function: "C:handler", File: "src/C.java", Line: 10},
				{Function: "Statement:executeQuery", File: "src/C.java", Line: 20},
			}},
		}
		Expect(v.Location()).To(ContainSubstring("src/C.java"))
	})

	It("should fall back to the file path for template findings", func() {
		v := issue.Vulnerability{Sink: "JSP_ECHO", FilePath: "web/index.jsp", GroupLines: []int{7}}
		Expect(v.Location()).To(ContainSubstring("web/index.jsp"))
	})

	It("should flatten a chain into its signature tokens", func() {
		chain := []issue.ChainNode{{Function: "A:a"}, {Function: "S:sink"}}
		Expect(issue.ChainSignatures(chain)).To(Equal([]string{"A:a", "S:sink"}))
	})
})

var _ = Describe("CodeSnippet", func() {
	It("should extract the numbered window around a line", func() {
		src := "one\ntwo\nthree\nfour\nfive\n"
		out, err := issue.CodeSnippet(strings.NewReader(src), 3, 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(ContainSubstring("three"))
	})
})
