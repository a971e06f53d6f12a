package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/internal/cli/output"
	"github.com/rangelabs/rangecloud/pkg/models"
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Inspect the action catalog",
}

type actionTable []models.ActionInfo

func (at actionTable) Headers() []string {
	return []string{"NAME", "OWNER", "MODE"}
}

func (at actionTable) Rows() [][]string {
	rows := make([][]string, 0, len(at))
	for _, a := range at {
		owner := a.AccessRights.Owner.User + ":" + a.AccessRights.Owner.Group
		mode := fmt.Sprintf("%d%d%d",
			a.AccessRights.Mode.User, a.AccessRights.Mode.Group, a.AccessRights.Mode.Other)
		rows = append(rows, []string{a.Name, owner, mode})
	}
	return rows
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List actions with their access rights",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		actions, err := client.ListActions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list actions: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, actions, len(actions) == 0, "No actions found.", actionTable(actions))
	},
}

func init() {
	actionCmd.AddCommand(actionListCmd)
}

var _ output.TableRenderer = actionTable{}
