// Package main is the entry point for the snapc CLI.
package main

import (
	"os"

	"github.com/runger/snapc/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
