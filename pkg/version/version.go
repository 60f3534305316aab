// Package version reports build metadata for the running binary, read from
// the module's embedded build info rather than ldflags, so `go install` and
// plain `go build` both produce a binary that can identify itself.
package version

import "runtime/debug"

// AppName identifies this service in startup logs and in the build metadata
// returned by Current.
const AppName = "agentrt"

// Info is the build metadata surfaced on /info and in startup logs.
type Info struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	GoVersion string `json:"go_version"`
	Dirty     bool   `json:"dirty"`
}

// Current reads build info from the binary itself. Revision and Dirty are
// empty/false when built outside a VCS checkout (e.g. `go install` from a
// module cache).
func Current() Info {
	info := Info{App: AppName, Version: "dev"}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

// String renders a one-line summary for startup logs.
func (i Info) String() string {
	rev := i.Revision
	if rev == "" {
		rev = "unknown"
	}
	if i.Dirty {
		rev += "+dirty"
	}
	return i.App + " " + i.Version + " (" + rev + ", " + i.GoVersion + ")"
}
