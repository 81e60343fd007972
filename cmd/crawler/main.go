// Package main runs one crawl of the KfW 300 and Interhyp rate pages and
// writes the combined snapshot.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	outFlag          string
	kfwHTMLFlag      string
	interhypHTMLFlag string
	renderFlag       bool
)

var rootCmd = &cobra.Command{
	Use:           "crawler",
	Short:         "Scrape KfW 300 and Interhyp mortgage rates into a JSON snapshot",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCrawl,
}

func init() {
	rootCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Path of the JSON snapshot (overrides ZINSEN_OUTPUT)")
	rootCmd.Flags().StringVar(&kfwHTMLFlag, "kfw-html", "", "Read the KfW page from this file instead of the network")
	rootCmd.Flags().StringVar(&interhypHTMLFlag, "interhyp-html", "", "Read the Interhyp page from this file instead of the network")
	rootCmd.Flags().BoolVar(&renderFlag, "render", false, "Render the KfW page in a headless browser (overrides KFW_RENDER)")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
