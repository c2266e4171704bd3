// Package main is the entry point for the pgtunnel binary: PostgreSQL dump
// tools wrapped with transparent SSH tunnel support.
package main

import (
	"os"

	"pgtunnel/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
