package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set at build time with -ldflags
var (
	Version   string
	BuildDate string
	GitCommit string
)

// VersionInfo describes the build of the CLI
type VersionInfo struct {
	Version   string `json:"version,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
}

// NewVersionInfo builds the version information from build flags
func NewVersionInfo() VersionInfo {
	ver := VersionInfo{
		Version:   "dev",
		BuildDate: BuildDate,
		GitCommit: GitCommit,
	}
	if Version != "" {
		ver.Version = Version
	}
	return ver
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("Version: %s\nBuild date: %s\nCommit: %s\n", v.Version, v.BuildDate, v.GitCommit)
}

// versionCmd prints the version of the CLI
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of porcupine",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), NewVersionInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
