package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Overridden at release time with -ldflags -X
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() *Info {
	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i *Info) String() string {
	return fmt.Sprintf("savegem %s (%s, %s) built %s", i.Short(), i.GitCommit, i.Platform, i.BuildTime)
}

// Short drops a leading "v" so tags and plain versions print the same
func (i *Info) Short() string {
	return strings.TrimPrefix(i.Version, "v")
}

// UserAgent is sent with every Drive request
func (i *Info) UserAgent() string {
	return fmt.Sprintf("savegem/%s (%s)", i.Short(), i.Platform)
}
