// Package main is the entry point for the dendrite CLI tool.
package main

import (
	"os"

	"github.com/aidanlsb/dendrite/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
