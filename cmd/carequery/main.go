// Package main provides the entry point for the carequery CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"carequery/internal/cli"
)

func main() {
	// Local .env keeps credentials out of shell history; absence is fine.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
