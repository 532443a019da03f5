package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/provn-io/provn/pkg/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline <fingerprint>",
	Short: "Run the five-stage verification pipeline for a fingerprint",
	Args:  cobra.ExactArgs(1),
	Run:   runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}

func runPipeline(cmd *cobra.Command, args []string) {
	var report pipeline.Report
	path := fmt.Sprintf("/proofs/%s/verification", url.PathEscape(args[0]))
	if err := getJSON(path, &report); err != nil {
		fail("pipeline: %v", err)
	}

	for _, stage := range report.Stages {
		switch stage.Status {
		case pipeline.StatusSuccess:
			color.New(color.FgGreen).Printf("  ✓ %-12s", stage.Name)
		case pipeline.StatusError:
			color.New(color.FgRed).Printf("  ✗ %-12s", stage.Name)
		default:
			fmt.Printf("  - %-12s", stage.Name)
		}
		fmt.Printf(" %s\n", stage.Message)
	}

	fmt.Println()
	if report.Valid {
		color.New(color.FgGreen, color.Bold).Println("VERIFIED")
		fmt.Printf("  token:  %s\n", report.TokenID)
		fmt.Printf("  holder: %s\n", report.Holder)
		fmt.Printf("  record: %s\n", report.LedgerRef)
	} else {
		color.New(color.FgRed, color.Bold).Println("NOT VERIFIED")
		os.Exit(1)
	}
}
