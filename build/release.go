package build

const (
	// Version is the current version of chunkfsd.
	Version = "0.3.1"

	// Release is the type of this build. It is either "dev", "standard", or
	// "testing", and controls things like debug mode and log verbosity.
	Release = "standard"

	// IssuesURL is the URL where bugs should be reported.
	IssuesURL = "https://github.com/uplo-tech/chunkfs/issues"
)

var (
	// ReleaseTag is set externally by the build process, e.g. "rc1".
	ReleaseTag = ""
)
