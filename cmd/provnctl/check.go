package main

import (
	"fmt"
	"net/url"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/provn-io/provn/pkg/resolve"
)

var checkIssuer string

var checkCmd = &cobra.Command{
	Use:   "check <fingerprint>",
	Short: "Check whether a live duplicate proof exists",
	Args:  cobra.ExactArgs(1),
	Run:   runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkIssuer, "issuer", "", "issuer identity to scope the check to")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	var check resolve.DuplicateCheck
	path := fmt.Sprintf("/proofs/%s/duplicate?issuer=%s", url.PathEscape(args[0]), url.QueryEscape(checkIssuer))
	if err := getJSON(path, &check); err != nil {
		fail("check: %v", err)
	}

	if check.IsDuplicate {
		color.New(color.FgYellow, color.Bold).Println("DUPLICATE")
		fmt.Printf("  blocking token: %s\n", check.BlockingTokenID)
		fmt.Printf("  record:         %s\n", check.LedgerRef)
	} else {
		color.New(color.FgGreen).Println("no live duplicate")
	}
}
