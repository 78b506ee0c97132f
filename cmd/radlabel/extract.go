package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/radlabel/internal/classify"
	"github.com/jackzampolin/radlabel/internal/extract"
)

var extractSchema string

var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Extract the JSON object from a raw model response",
	Long: `Run the response extractor on a raw model response and print the
recovered object. Reads stdin when no file (or "-") is given.

With --schema the object is also validated against the label map
("labels") or the mention map ("mentions").

Examples:
  radlabel extract response.txt
  pbpaste | radlabel extract --schema labels -f json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := newPrinter(cmd)
		if err != nil {
			return err
		}

		raw, err := readInput(cmd, args)
		if err != nil {
			return err
		}

		obj, err := extract.Object(string(raw))
		if err != nil {
			return err
		}

		if extractSchema != "" {
			v, err := schemaValidator(extractSchema)
			if err != nil {
				return err
			}
			if err := v.Validate(obj); err != nil {
				return err
			}
		}

		return printer.Print(obj)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSchema, "schema", "", "validate against: labels or mentions")
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

func schemaValidator(name string) (*extract.Validator, error) {
	switch name {
	case "labels":
		return extract.NewValidator("label_map", classify.LabelSchema())
	case "mentions":
		return extract.NewValidator("mention_map", classify.MentionSchema())
	default:
		return nil, fmt.Errorf("unknown schema %q (want labels or mentions)", name)
	}
}
