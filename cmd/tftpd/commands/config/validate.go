package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nullboot/tftpd/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate the tftpd configuration without starting the server.

Examples:
  tftpd config validate
  tftpd config validate --config /etc/tftpd/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Println("configuration is valid")
	return nil
}
