package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/internal/cli/output"
	"github.com/rangelabs/rangecloud/internal/cli/prompt"
	"github.com/rangelabs/rangecloud/pkg/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage directory users and their tokens",
}

type userTable []models.UserInfo

func (ut userTable) Headers() []string {
	return []string{"NAME", "GROUPS"}
}

func (ut userTable) Rows() [][]string {
	rows := make([][]string, 0, len(ut))
	for _, u := range ut {
		rows = append(rows, []string{u.Name, strings.Join(u.GroupNames, ",")})
	}
	return rows
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List directory users",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		users, err := client.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, users, len(users) == 0, "No users found.", userTable(users))
	},
}

var userInfoCmd = &cobra.Command{
	Use:   "info [name]",
	Short: "Show one user (defaults to the executor)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		user, err := client.UserInfo(ctx, name)
		if err != nil {
			return err
		}
		return cmdutil.PrintOutput(os.Stdout, user, false, "", userTable{user})
	},
}

var userAddGroups []string

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a user with explicit group membership",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groups := userAddGroups
		if len(groups) == 0 {
			groups = []string{models.UsersGroupName}
		}

		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		created, err := client.AddUser(ctx, models.UserInfo{Name: args[0], GroupNames: groups})
		if err != nil {
			return fmt.Errorf("failed to add user: %w", err)
		}
		fmt.Printf("Created user %q (groups: %s)\n", created.Name, strings.Join(created.GroupNames, ", "))
		return nil
	},
}

var userRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Self-register a user with the standard membership",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		created, err := client.RegisterUser(ctx, args[0])
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		fmt.Printf("Registered user %q\n", created.Name)
		return nil
	},
}

var userRemoveForce bool

var userRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a user from the directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, err := prompt.ConfirmWithForce(
			fmt.Sprintf("Remove user %q?", args[0]), userRemoveForce)
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

		if err := client.RemoveUser(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to remove user: %w", err)
		}
		fmt.Printf("Removed user %q\n", args[0])
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage single-shot tokens",
}

type tokenTable []models.AuthToken

func (tt tokenTable) Headers() []string {
	return []string{"ID", "USER", "VALID UNTIL"}
}

func (tt tokenTable) Rows() [][]string {
	rows := make([][]string, 0, len(tt))
	for _, t := range tt {
		validity := time.Unix(t.ValidityDate, 0).Format(time.RFC3339)
		rows = append(rows, []string{t.ID, t.ResourceName, validity})
	}
	return rows
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate [name]",
	Short: "Mint a single-shot token (defaults to the executor)",
	Long: `Mint a single-shot token for a user.

The secret is printed exactly once; it is consumed by the server on its
first use, valid or not.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		token, err := client.GenerateToken(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		fmt.Printf("Token for %s (valid until %s):\n%s\n",
			token.ResourceName,
			time.Unix(token.ValidityDate, 0).Format(time.RFC3339),
			token.Content)
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "List a user's outstanding tokens (secrets are not shown)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		tokens, err := client.ListTokens(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to list tokens: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, tokens, len(tokens) == 0, "No tokens outstanding.", tokenTable(tokens))
	},
}

var tokenRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Revoke a token by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		if err := client.RemoveToken(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to remove token: %w", err)
		}
		fmt.Printf("Removed token %s\n", args[0])
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringSliceVar(&userAddGroups, "group", nil, "Group membership (repeatable, default: users)")
	userRemoveCmd.Flags().BoolVarP(&userRemoveForce, "force", "f", false, "Skip confirmation")

	tokenCmd.AddCommand(tokenGenerateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenRemoveCmd)

	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userInfoCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userRegisterCmd)
	userCmd.AddCommand(userRemoveCmd)
	userCmd.AddCommand(tokenCmd)
}

var _ output.TableRenderer = userTable{}
var _ output.TableRenderer = tokenTable{}
