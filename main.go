package main

import (
	"fmt"
	"os"

	"github.com/flanksource/lintsvc/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	dirty   = "unknown"
)

func main() {
	cmd.SetVersionInfo(GetVersionInfo)

	if len(os.Args) > 1 && os.Args[1] == "-version" {
		printVersion()
		os.Exit(0)
	}
	cmd.Execute()
}

// printVersion prints the version information
func printVersion() {
	status := "clean"
	if dirty == "true" {
		status = "dirty"
		version += "-dirty"
	}
	fmt.Printf("lintsvc version %s (commit: %s, built: %s, %s)\n", version, commit, date, status)
}

// GetVersionInfo returns version information for use by cmd package
func GetVersionInfo() (string, string, string, bool) {
	isDirty := dirty == "true"
	versionStr := version
	if isDirty {
		versionStr += "-dirty"
	}
	return versionStr, commit, date, isDirty
}
