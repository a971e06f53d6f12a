package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/internal/cli/output"
	"github.com/rangelabs/rangecloud/internal/cli/prompt"
)

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

var testCmd = &cobra.Command{
	Use:   "test [data]",
	Short: "Send a test action and print the echo",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		data := "ping"
		if len(args) == 1 {
			data = args[0]
		}

		ctx, cancel := commandContext()
		defer cancel()

		echo, err := client.Test(ctx, data)
		if err != nil {
			return err
		}
		fmt.Println(echo)
		return nil
	},
}

var statisticsCmd = &cobra.Command{
	Use:     "statistics",
	Aliases: []string{"stats"},
	Short:   "Show server statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		stats, err := client.Statistics(ctx)
		if err != nil {
			return err
		}
		// Statistics are a nested document; tables do not fit.
		format, err := cmdutil.GetOutputFormatParsed()
		if err != nil {
			return err
		}
		if format == output.FormatYAML {
			return output.PrintYAML(os.Stdout, stats)
		}
		return output.PrintJSON(os.Stdout, stats)
	},
}

var stopForce bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, err := prompt.ConfirmWithForce("Stop the server?", stopForce)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}

		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		reply, err := client.Stop(ctx)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	},
}

func init() {
	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "Skip confirmation")
}
