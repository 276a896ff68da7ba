package sinktracer_test

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sinktracer/sinktracer"
	"github.com/sinktracer/sinktracer/testutils"
)

var _ = Describe("Config", func() {
	Context("when created with defaults", func() {
		It("should fill every defaulted field", func() {
			c := sinktracer.NewConfig()
			Expect(c.Depth).To(Equal(sinktracer.DefaultDepth))
			Expect(c.MaxSeconds).To(Equal(sinktracer.DefaultMaxSeconds))
			Expect(c.Engine).To(Equal("full"))
			Expect(c.TemplateScan).To(Equal("on"))
			Expect(c.LiteEnrich).To(Equal("on"))
			Expect(c.Workers).To(BeNumerically(">", 0))
			Expect(c.TemplateScanEnabled()).To(BeTrue())
			Expect(c.LiteEnrichEnabled()).To(BeTrue())
		})
	})

	Context("when loading a request from JSON", func() {
		It("should apply the document and default the rest", func() {
			var c sinktracer.Config
			req := `{"projectPath": "/srv/app", "rulesPath": "/etc/rules.json", "engine": "lite", "depth": 5}`
			_, err := c.ReadFrom(strings.NewReader(req))
			Expect(err).ToNot(HaveOccurred())
			Expect(c.ProjectPath).To(Equal("/srv/app"))
			Expect(c.Engine).To(Equal("lite"))
			Expect(c.Depth).To(Equal(5))
			Expect(c.MaxSeconds).To(Equal(sinktracer.DefaultMaxSeconds))
		})

		It("should round-trip through WriteTo", func() {
			c := sinktracer.NewConfig()
			c.ProjectPath = "/srv/app"
			var buf bytes.Buffer
			_, err := c.WriteTo(&buf)
			Expect(err).ToNot(HaveOccurred())

			var back sinktracer.Config
			_, err = back.ReadFrom(&buf)
			Expect(err).ToNot(HaveOccurred())
			Expect(back).To(Equal(c))
		})

		It("should reject malformed JSON", func() {
			var c sinktracer.Config
			_, err := c.ReadFrom(strings.NewReader(`{"depth": `))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when validating a request", func() {
		var project *testutils.TestProject
		var rulesPath string
		var conf sinktracer.Config

		BeforeEach(func() {
			project = testutils.NewTestProject()
			Expect(project).ToNot(BeNil())
			Expect(project.Write()).To(Succeed())
			var err error
			rulesPath, err = project.RulesFile("rules.json", testutils.SampleRulesJSON)
			Expect(err).ToNot(HaveOccurred())

			conf = sinktracer.NewConfig()
			conf.ProjectPath = project.Path
			conf.RulesPath = rulesPath
		})

		AfterEach(func() {
			project.Close()
		})

		It("should accept a complete request", func() {
			Expect(conf.Validate()).To(Succeed())
		})

		It("should require a project path", func() {
			conf.ProjectPath = ""
			assertConfigError(conf.Validate(), "projectPath")
		})

		It("should require the project path to be a directory", func() {
			conf.ProjectPath = rulesPath
			assertConfigError(conf.Validate(), "projectPath")
		})

		It("should require a rules path", func() {
			conf.RulesPath = ""
			assertConfigError(conf.Validate(), "rulesPath")
		})

		It("should require the rules path to be a file", func() {
			conf.RulesPath = project.Path
			assertConfigError(conf.Validate(), "rulesPath")
		})

		It("should reject an unknown engine", func() {
			conf.Engine = "turbo"
			assertConfigError(conf.Validate(), "engine")
		})

		It("should reject an unknown toggle value", func() {
			conf.TemplateScan = "yes"
			assertConfigError(conf.Validate(), "templateScan")
		})
	})
})

func assertConfigError(err error, field string) {
	GinkgoHelper()
	var cerr *sinktracer.ConfigError
	Expect(errors.As(err, &cerr)).To(BeTrue(), "expected a config error, got %v", err)
	Expect(cerr.Field).To(Equal(field))
}
