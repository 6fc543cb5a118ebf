package main

import (
	"os"

	"flowcore/cmd/flowctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
