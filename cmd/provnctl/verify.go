package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/provn-io/provn/pkg/manifest"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <manifest.json>",
	Short: "Verify a decoded authenticity manifest",
	Args:  cobra.ExactArgs(1),
	Run:   runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fail("reading manifest: %v", err)
	}

	var store manifest.Store
	if err := json.Unmarshal(data, &store); err != nil {
		fail("decoding manifest: %v", err)
	}

	var verdict manifest.TrustVerdict
	if err := postJSON("/verify", &store, &verdict); err != nil {
		fail("verify: %v", err)
	}

	if verdict.IsValid {
		color.New(color.FgGreen, color.Bold).Println("VALID")
	} else {
		color.New(color.FgRed, color.Bold).Println("INVALID")
	}

	fmt.Printf("  signer:    %s\n", verdict.RootSigner)
	fmt.Printf("  generator: %s\n", verdict.ClaimGenerator)
	fmt.Printf("  source:    %s\n", verdict.Source)
	if verdict.BindingHash != "" {
		fmt.Printf("  binding:   %s\n", verdict.BindingHash)
	}
	for _, reason := range verdict.Reasons {
		color.New(color.FgYellow).Printf("  reason: %s\n", reason)
	}

	if !verdict.IsValid {
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
