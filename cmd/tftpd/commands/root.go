// Package commands implements the tftpd CLI command tree: a cobra root
// command with a persistent --config flag and one subcommand per verb.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nullboot/tftpd/cmd/tftpd/commands/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "tftpd",
	Short: "tftpd is a read-only TFTP server",
	Long: `tftpd serves files over TFTP (RFC 1350) with support for the
option extension (RFC 2347), blksize (RFC 2348), timeout and tsize
(RFC 2349), and windowsize (RFC 7440).

Only read requests are served; the server never accepts writes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file (default: $XDG_CONFIG_HOME/tftpd/config.yaml)")
	rootCmd.AddCommand(config.Cmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root cobra command, for generating docs or
// shell completions.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetConfigFile returns the --config flag value, or "" if unset.
func GetConfigFile() string {
	return configFile
}

// PrintErr writes an error to stderr in a consistent form.
func PrintErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// Exit prints err (if non-nil) and exits with status 1.
func Exit(err error) {
	if err != nil {
		PrintErr(err)
		os.Exit(1)
	}
}
