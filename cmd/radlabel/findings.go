package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/radlabel/internal/findings"
)

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List the findings and the label legend",
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := newPrinter(cmd)
		if err != nil {
			return err
		}

		legend := []legendEntry{
			{findings.Yes, "the finding is present"},
			{findings.No, "the finding is mentioned as absent"},
			{findings.Maybe, "the report is uncertain about the finding"},
			{findings.Undefined, "the report does not mention the finding"},
		}
		return printer.Print(struct {
			Findings []string      `json:"findings" yaml:"findings"`
			Labels   []legendEntry `json:"labels" yaml:"labels"`
		}{
			Findings: findings.Names(),
			Labels:   legend,
		})
	},
}

type legendEntry struct {
	Label   findings.Label `json:"label" yaml:"label"`
	Meaning string         `json:"meaning" yaml:"meaning"`
}
