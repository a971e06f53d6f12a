package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/internal/cli/output"
	"github.com/rangelabs/rangecloud/pkg/models"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "List and run catalog processes",
}

type processTable []models.ProcessInfo

func (pt processTable) Headers() []string {
	return []string{"NAME", "EXECUTABLE", "ARGUMENTS", "OWNER"}
}

func (pt processTable) Rows() [][]string {
	rows := make([][]string, 0, len(pt))
	for _, p := range pt {
		owner := p.AccessRights.Owner.User + ":" + p.AccessRights.Owner.Group
		rows = append(rows, []string{p.Name, p.Executable, strings.Join(p.Arguments, " "), owner})
	}
	return rows
}

var processListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the processes the executor may run",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		processes, err := client.ListProcesses(ctx)
		if err != nil {
			return fmt.Errorf("failed to list processes: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, processes, len(processes) == 0, "No processes found.", processTable(processes))
	},
}

var processRunArgs []string

var processRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a catalog process and print its output",
	Long: `Run a catalog process and print its output.

Argument values are given as key=value pairs:

  rangectl process run backup --arg target=store --arg level=full`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := make(map[string]string, len(processRunArgs))
		for _, pair := range processRunArgs {
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				return fmt.Errorf("invalid argument %q, expected key=value", pair)
			}
			values[key] = value
		}

		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		response, err := client.RunProcess(ctx, args[0], values)
		if err != nil {
			return fmt.Errorf("process failed: %w", err)
		}
		fmt.Println(response.ResponseMessage)
		return nil
	},
}

func init() {
	processRunCmd.Flags().StringArrayVar(&processRunArgs, "arg", nil, "Argument value as key=value (repeatable)")

	processCmd.AddCommand(processListCmd)
	processCmd.AddCommand(processRunCmd)
}

var _ output.TableRenderer = processTable{}
