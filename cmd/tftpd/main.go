package main

import (
	"fmt"
	"os"

	"github.com/nullboot/tftpd/cmd/tftpd/commands"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	commands.Version = version

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
