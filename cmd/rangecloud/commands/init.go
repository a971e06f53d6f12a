package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rangelabs/rangecloud/pkg/config"
)

var (
	initCloudDir string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the cloud directory",
	Long: `Initialize the on-disk cloud directory layout and write a default
configuration file to <cloud-dir>/etc/configuration.json.

Examples:
  # Initialize under /srv/rangecloud
  rangecloud init --cloud-dir /srv/rangecloud

  # Overwrite an existing configuration
  rangecloud init --cloud-dir /srv/rangecloud --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initCloudDir, "cloud-dir", "", "Root of the cloud directory layout (required)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	_ = initCmd.MarkFlagRequired("cloud-dir")
}

func runInit(cmd *cobra.Command, args []string) error {
	cloudDir, err := filepath.Abs(initCloudDir)
	if err != nil {
		return fmt.Errorf("failed to resolve cloud directory: %w", err)
	}

	cfg := config.GetDefaultConfig(cloudDir)

	for _, dir := range []string{
		cfg.EtcDir(),
		cfg.CertServerDir(),
		cfg.CertCADir(),
		cfg.StoreDir(),
		cfg.LogDir(),
		cfg.VarDir(),
		cfg.ProcessesDir(),
		cfg.ReportsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %q: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	fmt.Printf("Cloud directory initialized at: %s\n", cloudDir)
	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Place the server certificate and key in %s\n", cfg.CertServerDir())
	fmt.Printf("  2. Place the client CA certificate in %s\n", cfg.CertCADir())
	fmt.Printf("  3. Start the server with: rangecloud start --config %s\n", configPath)

	return nil
}
