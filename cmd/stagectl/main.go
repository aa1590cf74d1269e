// Package main is the entry point for the stagectl CLI tool.
package main

import (
	"os"

	"github.com/calm-green-heron/stagewise/cmd/stagectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
