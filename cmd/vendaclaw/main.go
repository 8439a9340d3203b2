// Package main is the entry point for the VendaClaw CLI.
package main

import (
	"fmt"
	"os"

	"github.com/vendaclaw/vendaclaw/cmd/vendaclaw/commands"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	rootCmd := commands.NewRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}
}
