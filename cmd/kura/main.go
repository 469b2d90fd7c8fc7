// Package main is the entry point for the Kura object storage server.
package main

import (
	"os"

	"github.com/harukado/kura/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
