// Package main is the entry point for the tablesheet CLI binary.
package main

import (
	"os"

	"tablesheet/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
