package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/internal/cli/output"
	"github.com/rangelabs/rangecloud/internal/cli/prompt"
	"github.com/rangelabs/rangecloud/pkg/models"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage directory groups",
}

type groupTable []models.GroupInfo

func (gt groupTable) Headers() []string {
	return []string{"NAME"}
}

func (gt groupTable) Rows() [][]string {
	rows := make([][]string, 0, len(gt))
	for _, g := range gt {
		rows = append(rows, []string{g.Name})
	}
	return rows
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List directory groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		groups, err := client.ListGroups(ctx)
		if err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, groups, len(groups) == 0, "No groups found.", groupTable(groups))
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		created, err := client.AddGroup(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to add group: %w", err)
		}
		fmt.Printf("Created group %q\n", created.Name)
		return nil
	},
}

var groupRemoveForce bool

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a group and strip it from all members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, err := prompt.ConfirmWithForce(
			fmt.Sprintf("Remove group %q?", args[0]), groupRemoveForce)
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

		if err := client.RemoveGroup(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to remove group: %w", err)
		}
		fmt.Printf("Removed group %q\n", args[0])
		return nil
	},
}

func init() {
	groupRemoveCmd.Flags().BoolVarP(&groupRemoveForce, "force", "f", false, "Skip confirmation")

	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupAddCmd)
	groupCmd.AddCommand(groupRemoveCmd)
}

var _ output.TableRenderer = groupTable{}
