package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/pkg/models"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Submit reports to the archive",
}

var (
	reportFile    string
	reportComment string
)

var reportSubmitCmd = &cobra.Command{
	Use:   "submit [text]",
	Short: "Submit a report",
	Long: `Submit a report to the archive.

The report body comes from the argument, from --file, or from stdin
when neither is given:

  rangectl report submit "disk check failed on node 3"
  rangectl report submit --file crash.txt --comment "after upgrade"
  journalctl -u rangecloud | rangectl report submit`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body string
		switch {
		case len(args) == 1 && reportFile != "":
			return fmt.Errorf("give the report as an argument or via --file, not both")
		case len(args) == 1:
			body = args[0]
		case reportFile != "":
			content, err := os.ReadFile(reportFile)
			if err != nil {
				return fmt.Errorf("failed to read %q: %w", reportFile, err)
			}
			body = string(content)
		default:
			content, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			body = string(content)
		}

		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		id, err := client.SubmitReport(ctx, models.ReportRecord{
			Report:  body,
			Comment: reportComment,
		})
		if err != nil {
			return fmt.Errorf("failed to submit report: %w", err)
		}
		fmt.Printf("Report archived as %s\n", id)
		return nil
	},
}

func init() {
	reportSubmitCmd.Flags().StringVar(&reportFile, "file", "", "Read the report body from this file")
	reportSubmitCmd.Flags().StringVar(&reportComment, "comment", "", "Optional comment stored with the report")

	reportCmd.AddCommand(reportSubmitCmd)
}
