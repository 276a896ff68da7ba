package main

// Version is the build version
var Version string

// GitTag is the git tag of the build
var GitTag string

// BuildDate is the date when the build was created
var BuildDate string

// prepareVersionInfo sets a fallback version when the build did not
// inject one (e.g. a plain go install).
func prepareVersionInfo() {
	if Version == "" {
		Version = "dev"
	}
}
