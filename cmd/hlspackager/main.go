// Package main is the entry point for the hlspackager application.
package main

import (
	"os"

	"github.com/nullshard/hlspackager/cmd/hlspackager/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
