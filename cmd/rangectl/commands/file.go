package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/internal/cli/output"
	"github.com/rangelabs/rangecloud/pkg/models"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage stored files",
}

// fileTable renders file metadata rows.
type fileTable []models.FileInfo

func (ft fileTable) Headers() []string {
	return []string{"ID", "PATH", "SIZE", "VERSION", "OWNER", "UPDATED"}
}

func (ft fileTable) Rows() [][]string {
	rows := make([][]string, 0, len(ft))
	for _, f := range ft {
		owner := f.AccessRights.Owner.User + ":" + f.AccessRights.Owner.Group
		updated := time.Unix(f.UpdatedAt, 0).Format(time.RFC3339)
		rows = append(rows, []string{f.ID, f.Path, strconv.FormatInt(f.Size, 10), f.Version, owner, updated})
	}
	return rows
}

var fileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List files visible to the executor",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		files, err := client.ListFiles(ctx)
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}
		return cmdutil.PrintOutput(os.Stdout, files, len(files) == 0, "No files found.", fileTable(files))
	},
}

var fileInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show one file's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		info, err := client.FileInfo(ctx, args[0])
		if err != nil {
			return err
		}
		return cmdutil.PrintOutput(os.Stdout, info, false, "", fileTable{info})
	},
}

var fileUploadPath string

var fileUploadCmd = &cobra.Command{
	Use:   "upload <local-file>",
	Short: "Upload a file",
	Long: `Upload a local file to the store.

Examples:
  # Store under the local file's name
  rangectl file upload report.txt

  # Store under an explicit logical path
  rangectl file upload report.txt --path docs/report.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", args[0], err)
		}

		path := fileUploadPath
		if path == "" {
			path = args[0]
		}

		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		info, err := client.UploadFile(ctx, path, content)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		fmt.Printf("Stored %s as %s (%d bytes)\n", path, info.ID, info.Size)
		return nil
	},
}

var fileDownloadOutput string

var fileDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a file's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		content, err := client.DownloadFile(ctx, args[0])
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}

		if fileDownloadOutput == "" || fileDownloadOutput == "-" {
			_, err := os.Stdout.Write(content)
			return err
		}
		if err := os.WriteFile(fileDownloadOutput, content, 0o644); err != nil {
			return fmt.Errorf("failed to write %q: %w", fileDownloadOutput, err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(content), fileDownloadOutput)
		return nil
	},
}

var fileRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetClient()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		if err := client.RemoveFile(ctx, args[0]); err != nil {
			return fmt.Errorf("remove failed: %w", err)
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

func init() {
	fileUploadCmd.Flags().StringVar(&fileUploadPath, "path", "", "Logical path in the store (default: local file name)")
	fileDownloadCmd.Flags().StringVarP(&fileDownloadOutput, "output-file", "O", "", "Write content to this file instead of stdout")

	fileCmd.AddCommand(fileListCmd)
	fileCmd.AddCommand(fileInfoCmd)
	fileCmd.AddCommand(fileUploadCmd)
	fileCmd.AddCommand(fileDownloadCmd)
	fileCmd.AddCommand(fileRemoveCmd)
}

var _ output.TableRenderer = fileTable{}
