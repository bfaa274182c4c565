// Package version holds build metadata for the inkwell binary. The variables
// are stamped with -ldflags at build time, e.g.
//
//	go build -ldflags "-X inkwell/internal/version.Version=v1.4.0" ./cmd/inkwell
package version

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or short commit hash.
	Version = "unknown"

	// BuildDate is the UTC build timestamp in RFC3339.
	BuildDate = "unknown"

	// GitCommit is the full commit SHA.
	GitCommit = "unknown"
)

// Info is the build metadata plus per-process identity.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the build metadata. InstanceID is generated on the first
// call and stays fixed for the life of the process.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.NewString(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}

// String is the -version output.
func (i Info) String() string {
	return fmt.Sprintf("inkwell %s (commit %s, built %s)", i.Version, i.GitCommit, i.BuildDate)
}
