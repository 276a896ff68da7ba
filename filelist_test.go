package sinktracer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sinktracer/sinktracer"
	"github.com/sinktracer/sinktracer/testutils"
)

var _ = Describe("EnumerateFiles", func() {
	var project *testutils.TestProject

	BeforeEach(func() {
		project = testutils.NewTestProject()
		Expect(project).ToNot(BeNil())
		project.AddFile("src/Main.java", "public class Main {}\n")
		project.AddFile("web/index.jsp", "<html></html>\n")
		project.AddFile("README.md", "readme\n")
		project.AddFile("target/Generated.java", "public class Generated {}\n")
		project.AddFile("node_modules/pkg/x.js", "x\n")
		project.AddFile(".idea/workspace.xml", "<xml/>\n")
		project.AddFile("src/.hidden.java", "public class Hidden {}\n")
		Expect(project.Write()).To(Succeed())
	})

	AfterEach(func() {
		project.Close()
	})

	It("should return project-relative slash paths", func() {
		files, err := sinktracer.EnumerateFiles(project.Path)
		Expect(err).ToNot(HaveOccurred())
		Expect(files).To(ContainElements("src/Main.java", "web/index.jsp", "README.md"))
	})

	It("should skip build output and dependency directories", func() {
		files, err := sinktracer.EnumerateFiles(project.Path)
		Expect(err).ToNot(HaveOccurred())
		Expect(files).ToNot(ContainElement("target/Generated.java"))
		Expect(files).ToNot(ContainElement("node_modules/pkg/x.js"))
	})

	It("should skip dot directories and dot files", func() {
		files, err := sinktracer.EnumerateFiles(project.Path)
		Expect(err).ToNot(HaveOccurred())
		Expect(files).ToNot(ContainElement(".idea/workspace.xml"))
		Expect(files).ToNot(ContainElement("src/.hidden.java"))
	})

	It("should fail on a missing root", func() {
		_, err := sinktracer.EnumerateFiles("/definitely/not/a/real/path")
		Expect(err).To(HaveOccurred())
	})
})
