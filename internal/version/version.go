package version

// Version contains the buildflow binary version.
// It is set via build-time ldflags in release builds:
// go build -ldflags "-X git.home.luguber.info/inful/buildflow/internal/version.Version=v1.0.0".
var Version = "dev"

// Build metadata, also injected via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	if GitCommit == "unknown" {
		return Version
	}
	return Version + " (" + GitCommit + ", built " + BuildTime + ")"
}
