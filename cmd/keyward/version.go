// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"encoding/json"
	"runtime"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/httpapi"
)

// buildInfo is printed by the version command.
type buildInfo struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	Date       string `json:"date"`
	APIVersion string `json:"apiVersion"`
	GoVersion  string `json:"goVersion"`
}

func currentBuildInfo() buildInfo {
	return buildInfo{
		Version:    version,
		Commit:     commit,
		Date:       date,
		APIVersion: httpapi.APIVersion(),
		GoVersion:  runtime.Version(),
	}
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build and API version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := currentBuildInfo()
			if jsonOutput {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return oops.Code("VERSION_FORMAT_FAILED").Wrap(err)
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Printf("keyward %s (commit: %s, built: %s)\n", info.Version, info.Commit, info.Date)
			cmd.Printf("api version %s, %s\n", info.APIVersion, info.GoVersion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
