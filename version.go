package escrowd

import "fmt"

// Release numbers of the daemon.
const (
	Maj = 0
	Min = 1
	Fix = 0
)

// Suffix is set for builds that are not a tagged release.
const Suffix = "-dev"

var version = fmt.Sprintf("v%d.%d.%d%s", Maj, Min, Fix, Suffix)

// GitCommit is set with -ldflags at build time.
var GitCommit = ""

// Version returns the release, followed by the commit the binary was built
// from when known. It is reported by the version command and the /info
// endpoint.
func Version() string {
	if GitCommit == "" {
		return version
	}
	return version + " " + GitCommit
}
