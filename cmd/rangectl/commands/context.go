package commands

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/internal/cli/credentials"
	"github.com/rangelabs/rangecloud/internal/cli/prompt"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage stored server contexts",
}

var (
	ctxServer     string
	ctxExecutor   string
	ctxClientCert string
	ctxClientKey  string
	ctxCACert     string
	ctxInsecure   bool
)

var contextSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a context",
	Long: `Create or update a named connection context.

Without --server the command asks for the connection details
interactively.

Examples:
  # Administrative context against the private listener
  rangectl context set default --server https://localhost:8443 \
      --executor root --client-cert admin.crt --client-key admin.key

  # Public listener context
  rangectl context set public --server https://cloud.example.com:8080 --executor alice`,
	Args: cobra.ExactArgs(1),
	RunE: runContextSet,
}

var contextUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Switch to a context, interactively when no name is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}

		var name string
		if len(args) == 1 {
			name = args[0]
		} else {
			names := store.ListContexts()
			if len(names) == 0 {
				return fmt.Errorf("no contexts stored")
			}
			name, err = prompt.SelectString("Context", names)
			if err != nil {
				return err
			}
		}

		if err := store.UseContext(name); err != nil {
			return err
		}
		fmt.Printf("Switched to context %q\n", name)
		return nil
	},
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored contexts",
	RunE:  runContextList,
}

var contextDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if err := store.DeleteContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted context %q\n", args[0])
		return nil
	},
}

func init() {
	contextSetCmd.Flags().StringVar(&ctxServer, "server", "", "Server URL (required)")
	contextSetCmd.Flags().StringVar(&ctxExecutor, "executor", "", "Default executor")
	contextSetCmd.Flags().StringVar(&ctxClientCert, "client-cert", "", "Client certificate for mutual TLS")
	contextSetCmd.Flags().StringVar(&ctxClientKey, "client-key", "", "Client key for mutual TLS")
	contextSetCmd.Flags().StringVar(&ctxCACert, "ca-cert", "", "CA certificate to verify the server against")
	contextSetCmd.Flags().BoolVar(&ctxInsecure, "insecure", false, "Skip server certificate verification")

	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextUseCmd)
	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextDeleteCmd)
}

func runContextSet(cmd *cobra.Command, args []string) error {
	if ctxServer == "" {
		var err error
		if ctxServer, err = prompt.InputRequired("Server URL"); err != nil {
			return err
		}
		if ctxExecutor == "" {
			if ctxExecutor, err = prompt.InputOptional("Executor"); err != nil {
				return err
			}
		}
	}

	parsed, err := url.Parse(ctxServer)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
		ctxServer = parsed.String()
	}

	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if err := store.SetContext(args[0], &credentials.Context{
		ServerURL:  ctxServer,
		Executor:   ctxExecutor,
		ClientCert: ctxClientCert,
		ClientKey:  ctxClientKey,
		CACert:     ctxCACert,
		Insecure:   ctxInsecure,
	}); err != nil {
		return err
	}

	fmt.Printf("Context %q saved to %s\n", args[0], store.ConfigPath())
	return nil
}

type contextList struct {
	current string
	store   *credentials.Store
}

func (cl contextList) Headers() []string {
	return []string{"CURRENT", "NAME", "SERVER", "EXECUTOR", "AUTH"}
}

func (cl contextList) Rows() [][]string {
	rows := make([][]string, 0)
	for _, name := range cl.store.ListContexts() {
		ctx, err := cl.store.GetContext(name)
		if err != nil {
			continue
		}
		marker := ""
		if name == cl.current {
			marker = "*"
		}
		auth := "none"
		if ctx.HasClientCert() {
			auth = "client-cert"
		}
		rows = append(rows, []string{marker, name, ctx.ServerURL, ctx.Executor, auth})
	}
	return rows
}

func runContextList(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}

	names := store.ListContexts()
	list := contextList{current: store.GetCurrentContextName(), store: store}
	return cmdutil.PrintOutput(os.Stdout, names, len(names) == 0, "No contexts stored.", list)
}
