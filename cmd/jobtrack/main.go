package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor bool
	colorOn bool
)

var rootCmd = &cobra.Command{
	Use:   "jobtrack",
	Short: "Track job applications from the terminal",
	Long: `jobtrack keeps a list of your job applications with their status,
follow-up dates and attached CV and cover letter.

Run "jobtrack start" to serve the backend, then sign in with
"jobtrack auth signin" and manage records with "jobtrack jobs".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		colorOn = colorEnabled()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(followUpsCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
