// Package main is the entry point for flare.
package main

import (
	"os"

	"github.com/oncallops/flare/cmd/flare/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
