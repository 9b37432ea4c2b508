package main

import (
	"os"

	"github.com/gyaneshwarpardhi/sense/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
