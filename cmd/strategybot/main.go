package main

import (
	"os"

	"strategybot/cmd/strategybot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
