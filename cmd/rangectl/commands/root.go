// Package commands implements the rangectl CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "rangectl",
	Short: "rangectl - RangeCloud command line client",
	Long: `rangectl talks to a RangeCloud server over either listener.

Point it at the private listener with a client certificate for
administrative work, or at the public listener with a bearer token.
Connection details can be stored as named contexts:

  rangectl context set default --server https://localhost:8443 \
      --executor root --client-cert admin.crt --client-key admin.key

Use "rangectl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rangectl %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ServerURL, "server", "", "Server URL (overrides the stored context)")
	flags.StringVar(&cmdutil.Flags.Executor, "executor", "", "User to execute actions as")
	flags.StringVar(&cmdutil.Flags.Token, "token", "", "Single-shot bearer token for the public listener")
	flags.StringVar(&cmdutil.Flags.ClientCert, "client-cert", "", "Client certificate for the private listener")
	flags.StringVar(&cmdutil.Flags.ClientKey, "client-key", "", "Client key for the private listener")
	flags.StringVar(&cmdutil.Flags.CACert, "ca-cert", "", "CA certificate to verify the server against")
	flags.BoolVar(&cmdutil.Flags.Insecure, "insecure", false, "Skip server certificate verification")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format: table, json or yaml")
	flags.BoolVarP(&cmdutil.Flags.Verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statisticsCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(actionCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(reportCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
