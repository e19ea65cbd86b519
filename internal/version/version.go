package version

import (
	"fmt"
	"strings"
)

// Set at build time with -ldflags "-X".
var (
	App       = "expense-auth"
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
	BuildOS   string
	BuildArch string
)

// String is the one-line form logged at startup, e.g. "expense-auth v1.2.0 (abc1234)".
func String() string {
	s := App + " " + getVersion()
	if GitCommit != "" {
		s += " (" + getShortCommit() + ")"
	}
	return s
}

// PrintVersion prints the version information
func PrintVersion() {
	fmt.Print(details())
}

func details() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s\n", App, getVersion())
	if GitCommit != "" {
		fmt.Fprintf(&b, "Git commit: %s\n", getShortCommit())
	}
	if BuildTime != "" {
		fmt.Fprintf(&b, "Build time: %s\n", BuildTime)
	}
	if GoVersion != "" {
		fmt.Fprintf(&b, "Go version: %s\n", GoVersion)
	}
	if BuildOS != "" && BuildArch != "" {
		fmt.Fprintf(&b, "Built for: %s/%s\n", BuildOS, BuildArch)
	}
	return b.String()
}

func getShortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

func getVersion() string {
	if Version != "" {
		return Version
	}
	return "dev"
}
