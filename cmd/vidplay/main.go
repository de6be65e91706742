// Package main is the entry point for the vidplay application.
package main

import (
	"os"

	"github.com/jmylchreest/vidplay/cmd/vidplay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
