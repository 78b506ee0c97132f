package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/radlabel/internal/home"
	"github.com/jackzampolin/radlabel/internal/llmcall"
)

var (
	traceFilter  llmcall.QueryFilter
	traceFailed  bool
	traceSummary bool
)

var traceCmd = &cobra.Command{
	Use:   "trace [file]",
	Short: "Inspect a call trace written by label --trace",
	Long: `Print recorded label service calls from a trace file. Without a file the
most recent trace in ~/.radlabel/traces is read.

Examples:
  radlabel trace calls.jsonl --patient p1
  radlabel trace --failed -f json
  radlabel trace --summary`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := newPrinter(cmd)
		if err != nil {
			return err
		}

		path, err := tracePathArg(args)
		if err != nil {
			return err
		}
		calls, err := llmcall.Load(path)
		if err != nil {
			return err
		}

		filter := traceFilter
		if traceFailed {
			failed := false
			filter.Success = &failed
		}

		if traceSummary {
			return printer.Print(struct {
				File        string         `json:"file" yaml:"file"`
				Calls       int            `json:"calls" yaml:"calls"`
				ByPromptKey map[string]int `json:"by_prompt_key" yaml:"by_prompt_key"`
			}{
				File:        path,
				Calls:       len(llmcall.List(calls, filter)),
				ByPromptKey: llmcall.CountByPromptKey(calls, filter),
			})
		}
		return printer.Print(llmcall.List(calls, filter))
	},
}

func init() {
	f := traceCmd.Flags()
	f.StringVar(&traceFilter.RunID, "run", "", "filter by run id")
	f.StringVar(&traceFilter.PatientID, "patient", "", "filter by patient id")
	f.StringVar(&traceFilter.ReportID, "report", "", "filter by report id")
	f.StringVar(&traceFilter.PromptKey, "prompt-key", "", "filter by prompt key")
	f.StringVar(&traceFilter.Provider, "provider", "", "filter by provider")
	f.IntVar(&traceFilter.Limit, "limit", 0, "maximum calls to print")
	f.IntVar(&traceFilter.Offset, "offset", 0, "calls to skip")
	f.BoolVar(&traceFailed, "failed", false, "only failed calls")
	f.BoolVar(&traceSummary, "summary", false, "print call counts per prompt key")
}

// tracePathArg returns the explicit file or the newest trace in the home directory.
func tracePathArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	h, err := home.New(homeDir)
	if err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(h.TracesDir(), "*.jsonl"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no traces in %s", h.TracesDir())
	}
	sort.Slice(matches, func(i, j int) bool {
		return modTime(matches[i]).Before(modTime(matches[j]))
	})
	return matches[len(matches)-1], nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
