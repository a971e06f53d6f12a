package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/cmd/rangectl/cmdutil"
	"github.com/rangelabs/rangecloud/internal/bytesize"
	"github.com/rangelabs/rangecloud/internal/cli/output"
	"github.com/rangelabs/rangecloud/internal/cli/timeutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and statistics",
	Long: `Check the server's health endpoint and, when the executor may read
them, the service statistics.

Examples:
  rangectl status
  rangectl status -o json`,
	RunE: runStatus,
}

// serverStatus combines the health probe with the statistics document.
type serverStatus struct {
	Healthy    bool           `json:"healthy" yaml:"healthy"`
	Message    string         `json:"message" yaml:"message"`
	Version    string         `json:"version,omitempty" yaml:"version,omitempty"`
	StartedAt  string         `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime     string         `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Statistics map[string]any `json:"statistics,omitempty" yaml:"statistics,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	status := serverStatus{Message: "Server is not reachable"}

	if resp, err := client.Health(ctx); err == nil {
		status.Healthy = resp.Status == "healthy"
		status.StartedAt = resp.Data.StartedAt
		status.Uptime = resp.Data.Uptime
		if status.Healthy {
			status.Message = "Server is running and healthy"
		} else {
			status.Message = fmt.Sprintf("Server is running but unhealthy: %s", resp.Error)
		}
	} else if status.Message == "Server is not reachable" {
		status.Message = fmt.Sprintf("Server is not reachable: %v", err)
	}

	// Statistics need read access on the statistics action; a plain
	// health probe should still succeed without it.
	if stats, err := client.Statistics(ctx); err == nil {
		status.Statistics = stats
		if general, ok := stats["general"].(map[string]any); ok {
			status.Version, _ = general["version"].(string)
		}
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
		return nil
	}
}

func printStatusTable(status serverStatus) {
	fmt.Println()
	if status.Healthy {
		fmt.Println("  Status:   running")
	} else {
		fmt.Println("  Status:   unavailable")
	}
	if status.Version != "" {
		fmt.Printf("  Version:  %s\n", status.Version)
	}
	if status.StartedAt != "" {
		fmt.Printf("  Started:  %s\n", timeutil.FormatTime(status.StartedAt))
	}
	if status.Uptime != "" {
		fmt.Printf("  Uptime:   %s\n", timeutil.FormatUptime(status.Uptime))
	}

	if services, ok := status.Statistics["services"].([]any); ok {
		fmt.Println()
		for _, entry := range services {
			svc, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name, _ := svc["service"].(string)
			if name != "fileManager" {
				continue
			}
			if files, ok := svc["files"].(float64); ok {
				fmt.Printf("  Files:    %d\n", int64(files))
			}
			if bytes, ok := svc["bytes"].(float64); ok {
				fmt.Printf("  Stored:   %s\n", bytesize.ByteSize(bytes).String())
			}
		}
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
