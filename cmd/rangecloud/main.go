package main

import (
	"os"

	"github.com/rangelabs/rangecloud/cmd/rangecloud/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
