// Package main is the leapbundle command.
package main

import (
	"os"

	"github.com/leapstack-labs/leapbundle/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
