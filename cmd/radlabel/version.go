package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/radlabel/internal/classify"
	"github.com/jackzampolin/radlabel/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := newPrinter(cmd)
		if err != nil {
			return err
		}
		return printer.Print(struct {
			Version   string   `json:"version" yaml:"version"`
			Go        string   `json:"go" yaml:"go"`
			Commit    string   `json:"commit" yaml:"commit"`
			Date      string   `json:"date" yaml:"date"`
			Protocols []string `json:"protocols" yaml:"protocols"`
		}{
			Version:   version.GitRelease,
			Go:        version.GoInfo,
			Commit:    version.GitCommit,
			Date:      version.GitCommitDate,
			Protocols: classify.ProtocolNames(),
		})
	},
}
