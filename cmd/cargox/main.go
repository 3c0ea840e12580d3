// Package main is the entry point for the cargox CLI.
package main

import (
	"os"

	"github.com/tobyg/cargox/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
