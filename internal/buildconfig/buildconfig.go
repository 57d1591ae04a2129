package buildconfig

import "fmt"

// Set with -ldflags "-X github.com/switchboard-labs/switchboard/internal/buildconfig.version=..."
var (
	version = "dev"
	commit  = "unknown"
	date    = ""
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// BuildDate is empty for local builds.
func BuildDate() string {
	return date
}

// String renders the one-line banner printed by --version.
func String() string {
	s := fmt.Sprintf("switchboard %s (%s)", version, commit)
	if date != "" {
		s += " built " + date
	}
	return s
}
